package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	gogrpc "google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/guildverify/internal/platform/grpc"
	"github.com/louisbranch/guildverify/internal/platform/i18n/catalog"
	platformotel "github.com/louisbranch/guildverify/internal/platform/otel"
	"github.com/louisbranch/guildverify/internal/platform/timeouts"
	"github.com/louisbranch/guildverify/internal/services/auth/oauth"
	"github.com/louisbranch/guildverify/internal/services/verify"
	"github.com/louisbranch/guildverify/internal/services/verify/storage/sqlite"
)

// HealthServiceName is the gRPC health service reported by the process.
const HealthServiceName = "guildverify.auth"

// Config holds what New needs to bind listeners and open storage.
type Config struct {
	HTTPAddr          string
	HealthPort        int
	DBPath            string
	DiscordInviteCode string
	OAuth             oauth.Config
}

// Server hosts the verification service.
type Server struct {
	healthListener net.Listener
	health         *platformgrpc.HealthService
	httpListener   net.Listener
	httpServer     *http.Server
	store          *sqlite.Store
	bundle         *catalog.Bundle
	coordinator    *oauth.Coordinator
	logger         *slog.Logger
}

// New creates a configured server with bound listeners and an open store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	coordinator, err := oauth.NewCoordinator(cfg.OAuth, oauth.NewRegistry(), oauth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	bundle, err := catalog.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	store, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on port %d: %w", cfg.HealthPort, err)
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = healthListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}

	mux := http.NewServeMux()
	oauth.NewServer(coordinator, bundle, cfg.DiscordInviteCode, logger).RegisterRoutes(mux)
	httpServer := &http.Server{
		Handler:           platformotel.NewHandler(mux, "guildverify.http"),
		ReadHeaderTimeout: timeouts.ReadHeader,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{
		healthListener: healthListener,
		health:         platformgrpc.NewHealthService(HealthServiceName),
		httpListener:   httpListener,
		httpServer:     httpServer,
		store:          store,
		bundle:         bundle,
		coordinator:    coordinator,
		logger:         logger,
	}, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Coordinator exposes the authentication coordinator.
func (s *Server) Coordinator() *oauth.Coordinator {
	return s.coordinator
}

// Flow builds a verification flow over the server's coordinator and store.
// roles performs role changes on the chat platform.
func (s *Server) Flow(roles verify.RoleAssigner) *verify.Flow {
	return verify.NewFlow(s.coordinator, s.store, roles, s.bundle, s.logger)
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	srv, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts both listeners and blocks until one fails or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.coordinator.StartCleanup(serverCtx, s.coordinator.CleanupInterval())

	s.logger.Info("health server listening", "addr", s.healthListener.Addr().String())
	healthErr := make(chan error, 1)
	go func() {
		healthErr <- s.health.Serve(s.healthListener)
	}()

	s.logger.Info("http server listening", "addr", s.httpListener.Addr().String())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	handleGRPCErr := func(err error) error {
		if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve health: %w", err)
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		s.health.Stop()
		shutdownHTTP()
		return handleGRPCErr(<-healthErr)
	case err := <-healthErr:
		shutdownHTTP()
		return handleGRPCErr(err)
	case err := <-httpErr:
		s.health.Stop()
		if handled := handleGRPCErr(<-healthErr); handled != nil {
			return handled
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "guildverify.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open guild store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close guild store", "error", err)
	}
}
