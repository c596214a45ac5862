package mongo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "agenda/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type TransactionFunc func(ctx mongo.SessionContext) error

// TransactionManager runs fn in a multi-document transaction. Transactions need a replica set;
// WithTransaction retries fn on transient errors, so fn must be safe to run more than once.
type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
	opts   *options.TransactionOptions
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	commitTimeout := 10 * time.Second
	return &mongoTransactionManager{
		client: client,
		opts: options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()).
			SetMaxCommitTime(&commitTimeout),
	}
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return translateMongoError(fmt.Errorf("failed to start session: %w", err))
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	}, m.opts)
	if err != nil {
		return translateMongoError(err)
	}
	return nil
}

func translateMongoError(err error) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Wrap(err, apperrors.CodeConflict, "A service with this name already exists", http.StatusConflict)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "Catalog database is unavailable", http.StatusServiceUnavailable)
	default:
		return fmt.Errorf("transaction failed: %w", err)
	}
}
