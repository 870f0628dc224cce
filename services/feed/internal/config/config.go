package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store
	// (development only).
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS" validate:"gte=1,lte=200"`
	RunMigrations bool   `mapstructure:"RUN_MIGRATIONS"`

	// TelegramBotToken authorises getFile calls. Without it the file-URL
	// endpoint answers NOT_CONFIGURED.
	TelegramBotToken   string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIBaseURL string `mapstructure:"TELEGRAM_API_BASE_URL" validate:"required,url"`
	// WebhookSecret is compared against X-Telegram-Bot-Api-Secret-Token.
	// Empty disables webhook authentication.
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET_TOKEN"`
	// ChannelID restricts ingestion to one chat (numeric id or @username).
	// Empty accepts every chat.
	ChannelID string `mapstructure:"CHANNEL_ID"`

	NATSURL string `mapstructure:"NATS_URL"`

	// MediaSigningSecret switches the file-URL endpoint to signed proxy URLs.
	MediaSigningSecret string        `mapstructure:"MEDIA_SIGNING_SECRET" validate:"omitempty,min=32"`
	MediaURLTTL        time.Duration `mapstructure:"MEDIA_URL_TTL" validate:"gte=1m,lte=1h"`
	PublicBaseURL      string        `mapstructure:"PUBLIC_BASE_URL" validate:"omitempty,url"`

	GRPCAddr string `mapstructure:"GRPC_ADDR" validate:"required"`

	// Upstream circuit breaker.
	CBFailureThreshold uint32        `mapstructure:"CB_FAILURE_THRESHOLD" validate:"gte=1"`
	CBTimeout          time.Duration `mapstructure:"CB_TIMEOUT" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org")
	v.SetDefault("MEDIA_URL_TTL", 50*time.Minute)
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("CB_FAILURE_THRESHOLD", 5)
	v.SetDefault("CB_TIMEOUT", 30*time.Second)
}

// bindEnv binds every mapstructure tag so Unmarshal sees env-only keys.
func bindEnv(v *viper.Viper) error {
	typ := reflect.TypeOf(Config{})
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			if err := v.BindEnv(tag); err != nil {
				return err
			}
		}
	}
	return nil
}

func Load() (Config, error) {
	v := viper.New()
	if err := bindEnv(v); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	if cfg.MediaSigningSecret != "" && cfg.PublicBaseURL == "" {
		return Config{}, fmt.Errorf("validate config: PUBLIC_BASE_URL is required when MEDIA_SIGNING_SECRET is set")
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.TelegramBotToken = strings.TrimSpace(c.TelegramBotToken)
	c.TelegramAPIBaseURL = strings.TrimRight(strings.TrimSpace(c.TelegramAPIBaseURL), "/")
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.ChannelID = strings.TrimSpace(c.ChannelID)
	c.NATSURL = strings.TrimSpace(c.NATSURL)
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
}

// SigningEnabled reports whether the file-URL endpoint hands out proxy URLs.
func (c Config) SigningEnabled() bool {
	return c.MediaSigningSecret != ""
}
