package main

import (
	"context"
	"errors"

	"agenda/internal/openinghours"
	"agenda/internal/reservations/events"
	"agenda/internal/reservations/handler"
	"agenda/internal/reservations/service"
	"agenda/pkg/app"
	"agenda/pkg/config"
	"agenda/pkg/contracts"
	"agenda/pkg/kafka"
	kafka_config "agenda/pkg/kafka/config"
	kafka_middleware "agenda/pkg/kafka/middleware"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reservation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	return cmd
}

func serve(ctx context.Context) error {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Agenda service", "version", Version)

	serverApp := app.NewApplication()
	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var opts []service.Option
	var kcfg *kafka_config.Config
	metrics := kafka_middleware.NewMetrics()
	if cfg.KafkaEnabled {
		var err error
		kcfg, err = kafka_config.Load()
		if err != nil {
			return err
		}
		kcfg.LogConfiguration(cfg.Log)

		producer, err := kafka.NewProducer(kcfg, kcfg.ReservationsTopic, cfg.Log)
		if err != nil {
			return err
		}
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(metrics.ProducerMiddleware())
		serverApp.OnShutdown(func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
			cfg.Log.Info("Kafka stats", "stats", metrics.Snapshot())
		})
		opts = append(opts, service.WithPublisher(events.NewKafkaPublisher(producer, ServiceName)))
	}

	mgr, err := newManager(cfg, opts...)
	if err != nil {
		return err
	}

	var svc service.ReservationService = mgr
	if cfg.ConfirmationEnabled {
		confirming := service.NewConfirmingManager(mgr, cfg.ConfirmationWindow)
		go confirming.RunSweeper(workers, cfg.SweepInterval)
		svc = confirming
		cfg.Log.Info("Reservation confirmation enabled", "window", cfg.ConfirmationWindow)
	}

	if kcfg != nil {
		consumer, err := kafka.NewConsumer(kcfg, kcfg.OpeningHoursTopic, openinghours.NewHandler(mgr, cfg.Log).Handle, cfg.Log)
		if err != nil {
			return err
		}
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(metrics.ConsumerMiddleware())
		go func() {
			if err := consumer.Start(workers); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, kafka.ErrConsumerClosed) {
				cfg.Log.Error("Opening hours consumer stopped", "error", err)
			}
		}()
		serverApp.OnShutdown(func() {
			if err := consumer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka consumer", "error", err)
			}
		})
	}

	// hooks run in reverse: workers must stop before the producer closes
	serverApp.OnShutdown(cancelWorkers)

	var db contracts.Pinger
	if cfg.UseMongo() {
		db = cfg.Client
	}
	cal := mgr.Calendar()

	serverApp.SetApp(
		cfg,
		handler.NewHealthHandler(db, cal.Len, cfg.Log),
		handler.NewReservationHandler(svc, cfg.AdminUsers, cfg.Location, cfg.Log),
	)
	return serverApp.Run(ctx)
}
