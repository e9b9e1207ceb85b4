package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/libris/borrow-service/pkg/auth"
	"github.com/libris/borrow-service/pkg/kafka"
	"github.com/libris/borrow-service/pkg/logger"
	"github.com/libris/borrow-service/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"30s"`
	WriteTimeout time.Duration
}

// Checkout points at the external payment provider.
type Checkout struct {
	BaseURL    string        `envconfig:"CHECKOUT_BASE_URL" default:"http://localhost:4242"`
	APIKey     string        `envconfig:"CHECKOUT_API_KEY"`
	Currency   string        `envconfig:"CHECKOUT_CURRENCY" default:"usd"`
	SuccessURL string        `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:8080/api/v1/payments/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string        `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:8080/api/v1/payments/cancel"`
	Timeout    time.Duration `envconfig:"CHECKOUT_TIMEOUT" default:"10s"`
}

type Scanner struct {
	Period    time.Duration `envconfig:"OVERDUE_SCAN_PERIOD" default:"24h"`
	BatchSize int           `envconfig:"OVERDUE_SCAN_BATCH" default:"100"`
}

type Config struct {
	Server   HTTPServer `yaml:"server"`
	Database postgres.Config
	Kafka    kafka.Config
	Checkout Checkout
	Scanner  Scanner
	Auth     auth.Config
	Log      logger.Log `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}
