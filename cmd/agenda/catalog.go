package main

import (
	"context"
	"fmt"
	"time"

	migrations "agenda/internal/migrations/mongo"
	"agenda/pkg/config"
	dbmongo "agenda/pkg/db/mongo"

	"github.com/spf13/cobra"
)

const migrationTimeout = 120 * time.Second

// newCatalogCmd manages the MongoDB service catalog read by serve when MONGO_URI is set.
func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the MongoDB service catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog collection, schema validator and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalogDB(cmd.Context(), func(ctx context.Context, cfg *config.Config) error {
				return migrations.RunMigration(ctx, cfg.Client.Mongo.Database(cfg.MongoDatabaseName), cfg.Log)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Replace the catalog with the services configured in SERVICES",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalogDB(cmd.Context(), func(ctx context.Context, cfg *config.Config) error {
				tx := dbmongo.NewTransactionManager(cfg.Client.Mongo)
				db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
				if err := migrations.SeedServices(ctx, tx, db, cfg.Services); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d services\n", len(cfg.Services))
				return nil
			})
		},
	})

	return cmd
}

func withCatalogDB(ctx context.Context, fn func(ctx context.Context, cfg *config.Config) error) error {
	cfg := config.Load(ServiceName)
	if !cfg.UseMongo() {
		return fmt.Errorf("%s is required for catalog commands", config.EnvMongoURI)
	}
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	return fn(ctx, cfg)
}
