package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"agenda/internal/catalog"
	"agenda/internal/migrations/mongo/validators"
	dbmongo "agenda/pkg/db/mongo"
	"agenda/pkg/logger"
	"agenda/pkg/model"
)

var ServicesIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	},
}

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// RunMigration creates the catalog collections with their schema validators and indexes.
// It is safe to run repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	collections := map[string]collectionDef{
		catalog.CollectionName: {
			Indexes:   ServicesIndexes,
			Validator: validators.ServiceValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}

// SeedServices makes the catalog collection hold exactly services, in one transaction.
func SeedServices(ctx context.Context, tx dbmongo.TransactionManager, db *mongo.Database, services []model.Service) error {
	coll := db.Collection(catalog.CollectionName)
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}

	return tx.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := coll.DeleteMany(sc, bson.M{"name": bson.M{"$nin": names}}); err != nil {
			return fmt.Errorf("failed to remove stale services: %w", err)
		}
		for _, svc := range services {
			_, err := coll.ReplaceOne(sc, bson.M{"name": svc.Name}, svc, options.Replace().SetUpsert(true))
			if err != nil {
				return fmt.Errorf("failed to upsert service %s: %w", svc.Name, err)
			}
		}
		return nil
	})
}
