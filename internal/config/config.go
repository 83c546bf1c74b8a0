package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LongPollTimeout is how long one getUpdates request may be held open by Telegram.
const LongPollTimeout = 30 * time.Second

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken           string `envconfig:"BOT_TOKEN" required:"true"`
	BackendURL         string `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	BackendAccessToken string `envconfig:"BACKEND_ACCESS_TOKEN"` // static token for calls without a chat
	DBPath             string `envconfig:"DB_PATH" default:"./data/tokens.db"`
	NotifyAddr         string `envconfig:"NOTIFY_ADDR" default:":8080"`
	WebAppURL          string `envconfig:"WEB_APP_URL" default:"https://daily-routine.ru"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	BackendTimeout  time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
	PingTimeout     time.Duration `envconfig:"PING_TIMEOUT" default:"5s"`
	TelegramTimeout time.Duration `envconfig:"TELEGRAM_TIMEOUT" default:"45s"` // must outlast long polling

	SchedulerWorkers     int           `envconfig:"SCHEDULER_WORKERS" default:"8"`
	SchedulerUserTimeout time.Duration `envconfig:"SCHEDULER_USER_TIMEOUT" default:"20s"`

	MessageRate  float64 `envconfig:"THROTTLE_MESSAGE_RATE" default:"1"`
	CallbackRate float64 `envconfig:"THROTTLE_CALLBACK_RATE" default:"2"`
}

// Load reads an optional .env file from the working directory, then
// environment variables into Config. Real environment values win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN must not be empty")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if c.BackendTimeout <= 0 || c.PingTimeout <= 0 || c.SchedulerUserTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.TelegramTimeout <= LongPollTimeout {
		return fmt.Errorf("TELEGRAM_TIMEOUT must be longer than the %s long poll", LongPollTimeout)
	}
	if c.SchedulerWorkers < 1 {
		return errors.New("SCHEDULER_WORKERS must be at least 1")
	}
	if c.MessageRate <= 0 || c.CallbackRate <= 0 {
		return errors.New("throttle rates must be positive")
	}
	return nil
}
