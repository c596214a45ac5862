package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"agenda/pkg/client"
	"agenda/pkg/logger"
	"agenda/pkg/model"
	"agenda/pkg/sanitizer"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SlotDurationMin           int
	GridSpanMin               int
	MinAdvanceBookingMin      int
	MinAdvanceCancellationMin int
	OpeningHoursRaw           string
	CalendarDays              int
	TimeZone                  string
	ServicesRaw               string

	ConfirmationEnabled bool
	ConfirmationWindow  time.Duration
	SweepInterval       time.Duration

	KafkaEnabled bool

	// AdminUsers may pass policy overrides and manage opening hours.
	AdminUsers []string

	OpeningHours []model.OpeningWindow
	Location     *time.Location
	Services     []model.Service

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the configuration from the environment, after applying an optional .env file.
// Invalid configuration is fatal.
func Load(serviceName string) *Config {
	envFileErr := loadEnvFile()

	cfg := FromEnv(logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, logger.INFO),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	}))
	if envFileErr != nil {
		cfg.Log.Warn("Failed to load env file", "error", envFileErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// loadEnvFile loads ENV_FILE, or .env when present. Existing variables win.
func loadEnvFile() error {
	path := getEnvStr(EnvEnvFile, ".env")
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && os.Getenv(EnvEnvFile) == "" {
		return nil
	}
	return err
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv(log *logger.Logger) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, ""),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SlotDurationMin:           getEnvNum(EnvSlotDurationMin, DefaultSlotDurationMin),
		GridSpanMin:               getEnvNum(EnvGridSpanMin, DefaultGridSpanMin),
		MinAdvanceBookingMin:      getEnvNum(EnvMinAdvanceBookingMin, DefaultMinAdvanceBookingMin),
		MinAdvanceCancellationMin: getEnvNum(EnvMinAdvanceCancellationMin, DefaultMinAdvanceCancellationMin),
		OpeningHoursRaw:           getEnvStr(EnvOpeningHours, DefaultOpeningHours),
		CalendarDays:              getEnvNum(EnvCalendarDays, DefaultCalendarDays),
		TimeZone:                  getEnvStr(EnvTimeZone, DefaultTimeZone),
		ServicesRaw:               getEnvStr(EnvServices, DefaultServices),

		ConfirmationEnabled: getEnvBool(EnvConfirmationEnabled, false),
		ConfirmationWindow:  getEnvDuration(EnvConfirmationWindow, DefaultConfirmationWindow),
		SweepInterval:       getEnvDuration(EnvSweepInterval, DefaultSweepInterval),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, false),

		AdminUsers: sanitizer.SanitizeSlice(strings.Split(getEnvStr(EnvAdminUsers, DefaultAdminUsers), ","), sanitizer.SanitizeUserID),

		Log:    log,
		Client: client.NewClient(),
	}
	return cfg
}

// SetMongo connects the catalog database. Without a MONGO_URI the static catalog is used.
func (cfg *Config) SetMongo() {
	if cfg.MongoURI == "" {
		return
	}
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) UseMongo() bool {
	return cfg.MongoURI != ""
}

// Validate checks every setting and parses the derived values (opening hours, time zone,
// services). All problems are reported together.
func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI != "" {
		if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.SlotDurationMin <= 0 || 60%cfg.SlotDurationMin != 0 {
		errors = append(errors, fmt.Sprintf("SlotDurationMin must be a positive divisor of 60, got: %d", cfg.SlotDurationMin))
	} else if cfg.GridSpanMin <= 0 || cfg.GridSpanMin%cfg.SlotDurationMin != 0 {
		errors = append(errors, fmt.Sprintf("GridSpanMin must be a positive multiple of SlotDurationMin (%d), got: %d", cfg.SlotDurationMin, cfg.GridSpanMin))
	}
	if cfg.MinAdvanceBookingMin < 0 {
		errors = append(errors, fmt.Sprintf("MinAdvanceBookingMin cannot be negative, got: %d", cfg.MinAdvanceBookingMin))
	}
	if cfg.MinAdvanceCancellationMin < 0 {
		errors = append(errors, fmt.Sprintf("MinAdvanceCancellationMin cannot be negative, got: %d", cfg.MinAdvanceCancellationMin))
	}
	if cfg.CalendarDays <= 0 {
		errors = append(errors, fmt.Sprintf("CalendarDays must be positive, got: %d", cfg.CalendarDays))
	}
	if cfg.ConfirmationWindow <= 0 {
		errors = append(errors, fmt.Sprintf("ConfirmationWindow must be positive, got: %s", cfg.ConfirmationWindow))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}

	hours, err := model.ParseOpeningHours(cfg.OpeningHoursRaw)
	switch {
	case err != nil:
		errors = append(errors, fmt.Sprintf("OpeningHours is invalid: %v", err))
	case len(hours) == 0:
		errors = append(errors, "OpeningHours cannot be empty")
	default:
		cfg.OpeningHours = hours
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		errors = append(errors, fmt.Sprintf("TimeZone is invalid: %v", err))
	} else {
		cfg.Location = loc
	}

	services, err := ParseServices(cfg.ServicesRaw)
	if err != nil {
		errors = append(errors, fmt.Sprintf("Services is invalid: %v", err))
	} else {
		cfg.Services = services
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// Policy returns the business rules derived from the configuration. Call after Validate.
func (cfg *Config) Policy() model.Policy {
	return model.Policy{
		SlotDurationMin:           cfg.SlotDurationMin,
		GridSpanMin:               cfg.GridSpanMin,
		MinAdvanceBookingMin:      cfg.MinAdvanceBookingMin,
		MinAdvanceCancellationMin: cfg.MinAdvanceCancellationMin,
		OpeningHours:              cfg.OpeningHours,
		Location:                  cfg.Location,
	}
}

// ParseServices parses "name:duration_min[:price]" entries separated by commas.
func ParseServices(s string) ([]model.Service, error) {
	var services []model.Service
	seen := make(map[string]bool)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid service %q, want name:duration_min[:price]", entry)
		}
		name := sanitizer.SanitizeServiceName(parts[0])
		if name == "" || seen[name] {
			return nil, fmt.Errorf("invalid or duplicate service name %q", name)
		}
		duration, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || duration <= 0 {
			return nil, fmt.Errorf("invalid duration for service %q", name)
		}
		svc := model.Service{Name: name, DurationMin: duration}
		if len(parts) == 3 {
			price, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
			if err != nil || price < 0 {
				return nil, fmt.Errorf("invalid price for service %q", name)
			}
			svc.Price = price
		}
		seen[name] = true
		services = append(services, svc)
	}
	return services, nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"slot_duration_min", cfg.SlotDurationMin,
		"grid_span_min", cfg.GridSpanMin,
		"min_advance_booking_min", cfg.MinAdvanceBookingMin,
		"min_advance_cancelation_min", cfg.MinAdvanceCancellationMin,
		"opening_hours", cfg.OpeningHoursRaw,
		"calendar_days", cfg.CalendarDays,
		"time_zone", cfg.TimeZone,
		"services", len(cfg.Services),
		"confirmation_enabled", cfg.ConfirmationEnabled,
		"confirmation_window", cfg.ConfirmationWindow,
		"sweep_interval", cfg.SweepInterval,
		"kafka_enabled", cfg.KafkaEnabled,
		"admin_users", len(cfg.AdminUsers),
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}
