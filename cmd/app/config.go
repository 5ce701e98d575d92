package main

import (
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

var version = "dev"

type serverConfig struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	RPCSocket string `envconfig:"RPC_SOCKET" default:"/tmp/credbook.sock"`
	DBPath    string `envconfig:"DB_PATH" default:"credbook.db"`
	SeedFile  string `envconfig:"SEED_FILE"`

	// Shared store; empty DSN keeps the gate local-only.
	RemoteDSN    string        `envconfig:"REMOTE_DSN"`
	RemoteDriver string        `envconfig:"REMOTE_DRIVER" default:"postgres"`
	SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"1m"`
	PushTimeout  time.Duration `envconfig:"PUSH_TIMEOUT" default:"15s"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"12h"`

	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"credbook.events"`

	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
	Env          string `envconfig:"APP_ENV" default:"development"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text"`
}

// loadServerConfig reads an optional .env file and then the process
// environment. Variables already set in the environment win.
func loadServerConfig(envFile string) (serverConfig, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	var cfg serverConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return serverConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	return log, nil
}
