package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию серверных сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Auth struct {
		JWTSecret string        `envconfig:"JWT_SECRET"`
		Issuer    string        `envconfig:"JWT_ISSUER" default:"voice-journal"`
		TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"720h"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	} `envconfig:""`

	GoogleTTS struct {
		APIKey  string        `envconfig:"GOOGLE_TTS_API_KEY"`
		BaseURL string        `envconfig:"GOOGLE_TTS_BASE_URL"`
		Timeout time.Duration `envconfig:"GOOGLE_TTS_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Limits struct {
		FreeCredits        int `envconfig:"FREE_CREDITS" default:"30"`
		MaxTranscriptRunes int `envconfig:"MAX_TRANSCRIPT_RUNES" default:"20000"`
	} `envconfig:""`

	Queues struct {
		Backend   string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Summarize string `envconfig:"SUMMARIZE_QUEUE_KEY" default:"summarize_jobs"`
	} `envconfig:""`

	Summarize struct {
		// Mode: async ставит задачу в очередь, sync возвращает резюме в ответе на создание.
		Mode string `envconfig:"SUMMARIZE_MODE" default:"async"`
	} `envconfig:""`

	Webhook struct {
		Secret string `envconfig:"WEBHOOK_SECRET"`
	} `envconfig:""`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		BackendURL string `envconfig:"TG_BACKEND_URL" default:"http://localhost:8080"`
	} `envconfig:""`

	Weekly struct {
		Weekday int `envconfig:"WEEKLY_WEEKDAY" default:"0"`
		Hour    int `envconfig:"WEEKLY_HOUR" default:"18"`
	} `envconfig:""`
}

// ClientConfig настройки клиентского ядра (CLI).
type ClientConfig struct {
	BackendURL   string        `envconfig:"BACKEND_URL" default:"http://localhost:8080"`
	Token        string        `envconfig:"TOKEN"`
	CacheFile    string        `envconfig:"CACHE_FILE"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	PollAttempts int           `envconfig:"POLL_ATTEMPTS" default:"10"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// LoadClient загружает конфиг клиента из переменных JOURNAL_*.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("journal", &cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
