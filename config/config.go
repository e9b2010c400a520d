package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Server
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	AppEnv     string `envconfig:"APP_ENV" default:"production"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	DBURL           string        `envconfig:"DB_URL" required:"true"`
	DBMaxOpenConns  int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns  int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	DBConnLifetime  time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	LockTimeout     time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`
	BookingTimezone string        `envconfig:"BOOKING_TIMEZONE" default:"UTC"`

	// Auth
	SecretKey string `envconfig:"SECRET_KEY" required:"true"`

	// Email
	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
	SiteName string `envconfig:"SITE_NAME" default:"FitBook"`
	SiteURL  string `envconfig:"SITE_URL" default:"http://localhost:3000"`

	// RabbitMQ, optional
	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`

	// Payments
	PaystackSecretKey string `envconfig:"PAYSTACK_SECRET_KEY"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.BookingTimezone, err)
	}
	return loc, nil
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
