package oauth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/louisbranch/guildverify/internal/platform/i18n/catalog"
)

// Server serves the browser-facing endpoints of the verification flow.
type Server struct {
	coordinator *Coordinator
	bundle      *catalog.Bundle
	inviteCode  string
	logger      *slog.Logger
}

// NewServer creates the callback server. inviteCode backs the /discord
// redirect and may be empty.
func NewServer(coordinator *Coordinator, bundle *catalog.Bundle, inviteCode string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		coordinator: coordinator,
		bundle:      bundle,
		inviteCode:  strings.TrimSpace(inviteCode),
		logger:      logger,
	}
}

// RegisterRoutes registers the callback and auxiliary routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if s == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)
	mux.HandleFunc("GET /up", s.handleUp)
	mux.HandleFunc("GET /discord", s.handleDiscord)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) localizer(r *http.Request) catalog.Localizer {
	return s.bundle.Localizer(r.Header.Get("Accept-Language"))
}
