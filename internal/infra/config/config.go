package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию агента.
type AppConfig struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	FunPay struct {
		GoldenKey string        `envconfig:"FUNPAY_GOLDEN_KEY"`
		UserAgent string        `envconfig:"FUNPAY_USER_AGENT"`
		BaseURL   string        `envconfig:"FUNPAY_BASE_URL" default:"https://funpay.com"`
		Timeout   time.Duration `envconfig:"FUNPAY_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Runner struct {
		PollIntervalSeconds float64 `envconfig:"POLL_INTERVAL_SECONDS" default:"6.0"`
		MessageHistory      bool    `envconfig:"ENABLE_MESSAGE_HISTORY_REQUESTS" default:"true"`
		OrderDetails        bool    `envconfig:"ENABLE_ORDER_DETAIL_REQUESTS" default:"true"`
		IgnoreCycleErrors   bool    `envconfig:"IGNORE_CYCLE_EXCEPTIONS" default:"true"`
		DispatchWorkers     int     `envconfig:"DISPATCH_WORKERS" default:"4"`
	} `envconfig:""`

	Telegram struct {
		Token  string `envconfig:"TG_BOT_TOKEN"`
		Secret string `envconfig:"TG_SECRET"`
	} `envconfig:""`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	Events struct {
		Sink      string `envconfig:"EVENT_SINK" default:"none"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Queue     string `envconfig:"EVENT_QUEUE" default:"funpay_events"`
		MaxLen    int64  `envconfig:"EVENT_QUEUE_MAX_LEN" default:"10000"`
	} `envconfig:""`

	RulesFile   string `envconfig:"RULES_FILE" default:"configs/rules.yml"`
	ProductsDir string `envconfig:"PRODUCTS_DIR" default:"storage/products"`
}

// PollInterval возвращает паузу между циклами опроса.
func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Runner.PollIntervalSeconds * float64(time.Second))
}

// Validate проверяет обязательные параметры.
func (c AppConfig) Validate() error {
	if c.FunPay.GoldenKey == "" {
		return errors.New("не указан FUNPAY_GOLDEN_KEY")
	}
	if c.Runner.PollIntervalSeconds <= 0 {
		return errors.New("POLL_INTERVAL_SECONDS должен быть положительным")
	}
	if c.Runner.DispatchWorkers < 1 {
		return errors.New("DISPATCH_WORKERS должен быть не меньше 1")
	}
	switch c.Events.Sink {
	case "none", "redis":
	case "rabbitmq":
		if c.Events.RabbitURL == "" {
			return errors.New("EVENT_SINK=rabbitmq требует RABBITMQ_URL")
		}
	default:
		return errors.New("EVENT_SINK должен быть none, redis или rabbitmq")
	}
	if c.Events.Sink == "redis" && c.RedisAddr == "" {
		return errors.New("EVENT_SINK=redis требует REDIS_ADDR")
	}
	return nil
}

// Load загружает конфиг из окружения и необязательного .env.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("не удалось прочитать .env: %v", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("некорректный конфиг: %v", err)
	}
	return cfg
}
