package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	SMTPHost     string `env:"SMTP_HOST,required=true"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM,required=true"`

	TemplatePath string `env:"TEMPLATE_PATH,default=templates/certificate_template.png"`
	NameFontPath string `env:"NAME_FONT_PATH,default=fonts/AlexBrush-Regular.ttf"`
	ArtifactDir  string `env:"ARTIFACT_DIR,default=generated"`
	NumberPrefix string `env:"NUMBER_PREFIX,default=CERT"`
	TemplateDPI  int    `env:"TEMPLATE_DPI,default=300"`

	// Name box geometry in template pixels. Defaults match the stock 300 DPI
	// template (cm coordinates converted at ~118 px/cm).
	NameBoxX        int `env:"NAME_BOX_X,default=1017"`
	NameBoxY        int `env:"NAME_BOX_Y,default=1086"`
	NameBoxWidth    int `env:"NAME_BOX_WIDTH,default=2219"`
	DefaultFontSize int `env:"DEFAULT_FONT_SIZE,default=72"`
	MinFontSize     int `env:"MIN_FONT_SIZE,default=36"`

	SendDelayMillis       int `env:"SEND_DELAY_MILLIS,default=1000"`
	RateLimitPerSec       int `env:"RATE_LIMIT_PER_SEC,default=10"`
	DispatcherConcurrency int `env:"DISPATCHER_CONCURRENCY,default=4"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
