package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

// Handler mounts its routes on a router owned by the application.
type Handler interface {
	RegisterRoutes(router *httprouter.Router)
}

// Pinger is a dependency the readiness endpoint checks, such as the catalog database.
type Pinger interface {
	Ping(ctx context.Context) error
}
