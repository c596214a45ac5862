package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvEnvFile  = "ENV_FILE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSlotDurationMin           = "SLOT_DURATION_MIN"
	EnvGridSpanMin               = "GRID_SPAN_MIN"
	EnvMinAdvanceBookingMin      = "MIN_ADVANCE_BOOKING_MIN"
	EnvMinAdvanceCancellationMin = "MIN_ADVANCE_CANCELATION_MIN"
	EnvOpeningHours              = "OPENING_HOURS"
	EnvCalendarDays              = "CALENDAR_DAYS"
	EnvTimeZone                  = "TIME_ZONE"
	EnvServices                  = "SERVICES"

	EnvConfirmationEnabled = "CONFIRMATION_ENABLED"
	EnvConfirmationWindow  = "CONFIRMATION_WINDOW"
	EnvSweepInterval       = "SWEEP_INTERVAL"

	EnvKafkaEnabled = "KAFKA_ENABLED"

	EnvAdminUsers = "ADMIN_USERS"
)
