package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	PlatformSlack    = "slack"
	PlatformTelegram = "telegram"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	Platform    string `envconfig:"CHAT_PLATFORM" default:"slack"`

	Slack struct {
		BotToken string `envconfig:"SLACK_BOT_TOKEN"`
		AppToken string `envconfig:"SLACK_APP_TOKEN"`
	} `envconfig:""`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET"`
	} `envconfig:""`

	Letterboxd struct {
		ClientID     string        `envconfig:"BOXD_CLIENT_ID"`
		ClientSecret string        `envconfig:"BOXD_CLIENT_SECRET"`
		Username     string        `envconfig:"BOXD_USERNAME"`
		Password     string        `envconfig:"BOXD_PASSWORD"`
		BaseURL      string        `envconfig:"BOXD_BASE_URL" default:"https://api.letterboxd.com/api/v0"`
		SiteURL      string        `envconfig:"BOXD_SITE_URL" default:"https://letterboxd.com"`
		RPS          float64       `envconfig:"BOXD_RPS" default:"5"`
		Timeout      time.Duration `envconfig:"BOXD_TIMEOUT" default:"20s"`
		MemberTTL    time.Duration `envconfig:"MEMBER_CACHE_TTL" default:"24h"`
	} `envconfig:""`

	Dispatch struct {
		Schedule    string        `envconfig:"DISPATCH_SCHEDULE" default:"@every 30m"`
		Workers     int           `envconfig:"DISPATCH_WORKERS" default:"4"`
		CallTimeout time.Duration `envconfig:"DISPATCH_CALL_TIMEOUT" default:"30s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает окружение без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Dev сообщает, запущен ли сервис в режиме разработки.
func (c AppConfig) Dev() bool {
	return c.AppEnv == "dev"
}

// Validate проверяет обязательные ключи для выбранной платформы.
func (c AppConfig) Validate() error {
	required := []struct {
		key, value string
	}{
		{"BOXD_CLIENT_ID", c.Letterboxd.ClientID},
		{"BOXD_CLIENT_SECRET", c.Letterboxd.ClientSecret},
		{"BOXD_USERNAME", c.Letterboxd.Username},
		{"BOXD_PASSWORD", c.Letterboxd.Password},
	}
	switch c.Platform {
	case PlatformSlack:
		required = append(required,
			struct{ key, value string }{"SLACK_BOT_TOKEN", c.Slack.BotToken},
			struct{ key, value string }{"SLACK_APP_TOKEN", c.Slack.AppToken},
		)
	case PlatformTelegram:
		required = append(required, struct{ key, value string }{"TG_BOT_TOKEN", c.Telegram.Token})
	default:
		return fmt.Errorf("неизвестная платформа CHAT_PLATFORM=%q", c.Platform)
	}
	if !c.Dev() {
		required = append(required, struct{ key, value string }{"PG_DSN", c.PGDSN})
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("не задан %s", r.key)
		}
	}
	if c.Dispatch.Workers <= 0 {
		return errors.New("DISPATCH_WORKERS должен быть положительным")
	}
	return nil
}
