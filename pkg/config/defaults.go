package config

import "time"

const (
	DefaultMongoDatabaseName = "agenda"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRateLimitRequests = 10
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultSlotDurationMin           = 5
	DefaultGridSpanMin               = 15
	DefaultMinAdvanceBookingMin      = 30
	DefaultMinAdvanceCancellationMin = 120
	DefaultOpeningHours              = "09:00-13:00,15:00-21:00"
	DefaultCalendarDays              = 14
	DefaultTimeZone                  = "Local"
	DefaultServices                  = "haircut:30:25,beard:15:12,color:60:60"

	DefaultConfirmationWindow = 10 * time.Minute
	DefaultSweepInterval      = 1 * time.Minute

	DefaultAdminUsers = "admin"
)
