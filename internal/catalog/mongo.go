package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Services"

// Mongo reads the service catalog from a MongoDB collection. The collection is managed
// elsewhere; nothing here writes to it.
type Mongo struct {
	collection  *mongo.Collection
	readTimeout time.Duration
}

func NewMongo(db *mongo.Database, readTimeout time.Duration) *Mongo {
	return &Mongo{
		collection:  db.Collection(CollectionName),
		readTimeout: readTimeout,
	}
}

// withTimeout applies readTimeout unless the caller's deadline is sooner.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *Mongo) Get(ctx context.Context, name string) (model.Service, error) {
	ctx, cancel := withTimeout(ctx, m.readTimeout)
	defer cancel()

	var svc model.Service
	err := m.collection.FindOne(ctx, bson.M{"name": name}).Decode(&svc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Service{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
		}
		return model.Service{}, fmt.Errorf("failed to find service: %w", err)
	}
	return svc, nil
}

func (m *Mongo) List(ctx context.Context) ([]model.Service, error) {
	ctx, cancel := withTimeout(ctx, m.readTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer cursor.Close(ctx)

	var services []model.Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}
