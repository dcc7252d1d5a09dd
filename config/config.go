package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	ServiceName string
	LoggerLevel string

	AppPort int

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	TelegramBotToken string

	// Matching and pricing tunables.
	RadiusKm       float64
	ProximityKm    float64
	HourlyBase     int
	CommissionRate float64
	MinHours       int
	MaxHours       int

	ReminderLead      time.Duration
	CheckOutTolerance time.Duration
	TrackingPoll      time.Duration
	DismissalTTL      time.Duration
}

func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefault("SERVICE_NAME", "companioncare"))
	cfg.LoggerLevel = cast.ToString(getOrReturnDefault("LOGGER_LEVEL", "debug"))
	cfg.AppPort = cast.ToInt(getOrReturnDefault("APP_PORT", 8080))

	cfg.PostgresHost = cast.ToString(getOrReturnDefault("POSTGRES_HOST", "localhost"))
	cfg.PostgresPort = cast.ToString(getOrReturnDefault("POSTGRES_PORT", "5432"))
	cfg.PostgresUser = cast.ToString(getOrReturnDefault("POSTGRES_USER", "postgres"))
	cfg.PostgresPassword = cast.ToString(getOrReturnDefault("POSTGRES_PASSWORD", "1234"))
	cfg.PostgresDB = cast.ToString(getOrReturnDefault("POSTGRES_DB", "companioncare"))

	cfg.RedisHost = cast.ToString(getOrReturnDefault("REDIS_HOST", "localhost"))
	cfg.RedisPort = cast.ToString(getOrReturnDefault("REDIS_PORT", "6379"))
	cfg.RedisPassword = cast.ToString(getOrReturnDefault("REDIS_PASSWORD", ""))

	cfg.TelegramBotToken = cast.ToString(getOrReturnDefault("TG_BOT_TOKEN", ""))

	cfg.RadiusKm = cast.ToFloat64(getOrReturnDefault("RADIUS_KM", 5.0))
	cfg.ProximityKm = cast.ToFloat64(getOrReturnDefault("PROXIMITY_KM", 1.0))
	cfg.HourlyBase = cast.ToInt(getOrReturnDefault("HOURLY_BASE", 130))
	cfg.CommissionRate = cast.ToFloat64(getOrReturnDefault("COMMISSION_RATE", 0.05))
	cfg.MinHours = cast.ToInt(getOrReturnDefault("MIN_SERVICE_HOURS", 1))
	cfg.MaxHours = cast.ToInt(getOrReturnDefault("MAX_SERVICE_HOURS", 14))

	cfg.ReminderLead = time.Duration(cast.ToInt(getOrReturnDefault("REMINDER_LEAD_MINUTES", 30))) * time.Minute
	cfg.CheckOutTolerance = time.Duration(cast.ToInt(getOrReturnDefault("CHECKOUT_TOLERANCE_MINUTES", 20))) * time.Minute
	cfg.TrackingPoll = time.Duration(cast.ToInt(getOrReturnDefault("TRACKING_POLL_SECONDS", 10))) * time.Second
	cfg.DismissalTTL = time.Duration(cast.ToInt(getOrReturnDefault("DISMISSAL_TTL_HOURS", 12))) * time.Hour

	return cfg
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
