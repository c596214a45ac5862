package main

import (
	"fmt"
	"time"

	"agenda/internal/calendar"
	"agenda/internal/catalog"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/service"
	"agenda/internal/reservations/validator"
	"agenda/pkg/config"
)

// newCalendar opens the configured daily hours for CalendarDays days from today. Slots that
// can no longer be booked in advance are left out.
func newCalendar(cfg *config.Config, now time.Time) (*calendar.Calendar, error) {
	policy := cfg.Policy()
	cal, err := calendar.FromOpeningHours(calendar.BuildOptions{
		SlotDuration: policy.SlotDuration(),
		OpeningHours: policy.OpeningHours,
		From:         now.In(policy.Loc()),
		Days:         cfg.CalendarDays,
		NotBefore:    now.Add(policy.MinAdvanceBooking()),
	})
	if err != nil {
		return nil, fmt.Errorf("build calendar: %w", err)
	}
	return cal, nil
}

func newCatalog(cfg *config.Config) (catalog.Catalog, error) {
	if cfg.UseMongo() {
		cfg.Log.Info("Using MongoDB service catalog", "database", cfg.MongoDatabaseName)
		return catalog.NewMongo(cfg.Client.Mongo.Database(cfg.MongoDatabaseName), cfg.MongoConnTimeout), nil
	}
	static, err := catalog.NewStatic(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("build service catalog: %w", err)
	}
	return static, nil
}

func newManager(cfg *config.Config, opts ...service.Option) (*service.Manager, error) {
	cal, err := newCalendar(cfg, time.Now())
	if err != nil {
		return nil, err
	}
	cat, err := newCatalog(cfg)
	if err != nil {
		return nil, err
	}

	mgr, err := service.NewManager(
		cal,
		repository.NewReservationIndex(),
		cat,
		validator.NewReservationValidator(cfg.Log, cfg.SlotDurationMin),
		cfg.Policy(),
		cfg.Log,
		opts...,
	)
	if err != nil {
		return nil, err
	}
	cfg.Log.Info("Reservation manager initialized",
		"segments", cal.Len(),
		"calendar_days", cfg.CalendarDays,
	)
	return mgr, nil
}
