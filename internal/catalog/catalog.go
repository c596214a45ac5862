package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"agenda/pkg/model"
)

var (
	ErrUnknownService = errors.New("unknown service")

	ErrDuplicateService = errors.New("duplicate service name")
)

// Catalog resolves service names to their definition. Implementations are read-only.
type Catalog interface {
	Get(ctx context.Context, name string) (model.Service, error)
	List(ctx context.Context) ([]model.Service, error)
}

// Static is a Catalog seeded once from configuration.
type Static struct {
	mu       sync.RWMutex
	services map[string]model.Service
}

func NewStatic(services []model.Service) (*Static, error) {
	s := &Static{services: make(map[string]model.Service, len(services))}
	for _, svc := range services {
		if _, ok := s.services[svc.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name)
		}
		s.services[svc.Name] = svc
	}
	return s, nil
}

func (s *Static) Get(ctx context.Context, name string) (model.Service, error) {
	if err := ctx.Err(); err != nil {
		return model.Service{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[name]
	if !ok {
		return model.Service{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return svc, nil
}

// List returns the services ordered by name.
func (s *Static) List(ctx context.Context) ([]model.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
