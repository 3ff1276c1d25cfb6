package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"runner-hook/internal/awsutil"
	"runner-hook/internal/config"
	"runner-hook/internal/dispatch"
	"runner-hook/internal/github"
	"runner-hook/internal/runner"
	"runner-hook/internal/secrets"
	"runner-hook/internal/webhook"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds the process-wide settings shared by both binaries. The
// per-delivery settings are loaded separately by config.Load.
type AppConfig struct {
	AWS       awsutil.Config
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func LoadAppConfig() (AppConfig, error) {
	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return AppConfig{}, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// NewLogger returns a logger writing to w in the given format ("json" or
// "text") at the given level ("debug", "info", "warn" or "error").
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// NewDispatcher wires the AWS backed collaborators into a dispatcher. The
// clients are created once per process and reused across deliveries.
func NewDispatcher(ctx context.Context, cfg awsutil.Config) (*dispatch.Dispatcher, error) {
	awsCfg, err := awsutil.LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := secrets.NewSecretsManagerStore(awsCfg)

	return dispatch.NewDispatcher(
		config.Load,
		webhook.NewVerifier(store),
		github.NewClient(store),
		runner.NewLauncher(awsCfg),
	), nil
}
