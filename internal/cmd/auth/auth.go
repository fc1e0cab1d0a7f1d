// Package auth wires the verification service command.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entrypoint "github.com/louisbranch/guildverify/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/guildverify/internal/platform/grpc"
	"github.com/louisbranch/guildverify/internal/platform/logging"
	server "github.com/louisbranch/guildverify/internal/services/auth/app"
	"github.com/louisbranch/guildverify/internal/services/auth/oauth"
	"github.com/spf13/pflag"
)

const probeTimeout = 3 * time.Second

// Config holds auth command configuration.
type Config struct {
	HTTPAddr          string `env:"HTTP_ADDR" envDefault:":8080"`
	HealthPort        int    `env:"HEALTH_PORT" envDefault:"8083"`
	DBPath            string `env:"DB_PATH" envDefault:"data/guildverify.db"`
	DiscordInviteCode string `env:"DISCORD_INVITE_CODE"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile           string `env:"LOG_FILE"`

	// Probe checks the health endpoint of a running instance and exits.
	Probe bool `env:"-"`
}

// ParseConfig reads environment defaults and then applies flags.
func ParseConfig(fs *pflag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address for the OAuth callback")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "gRPC health server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.BoolVar(&cfg.Probe, "probe", false, "probe the local health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the auth server, or probes a running one when cfg.Probe is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Probe {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		return platformgrpc.Probe(probeCtx, fmt.Sprintf("127.0.0.1:%d", cfg.HealthPort), server.HealthServiceName)
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	oauthCfg, err := oauth.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	serverCfg := server.Config{
		HTTPAddr:          cfg.HTTPAddr,
		HealthPort:        cfg.HealthPort,
		DBPath:            cfg.DBPath,
		DiscordInviteCode: cfg.DiscordInviteCode,
		OAuth:             oauthCfg,
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAuth, func(ctx context.Context) error {
		return server.Run(ctx, serverCfg, logger)
	})
}
