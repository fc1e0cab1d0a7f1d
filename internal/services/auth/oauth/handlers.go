package oauth

import (
	"errors"
	"net/http"

	"github.com/a-h/templ"
	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
	"github.com/louisbranch/guildverify/internal/platform/i18n/catalog"
	"github.com/louisbranch/guildverify/internal/services/auth/templates"
)

// discordInviteBase prefixes the configured invite code.
const discordInviteBase = "https://discord.gg/"

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	loc := s.localizer(r)
	query := r.URL.Query()
	state := query.Get("state")

	if providerErr := query.Get("error"); providerErr != "" {
		// The waiter learns about the denial now instead of at its deadline.
		if request, ok := s.coordinator.Registry().Remove(state); ok {
			s.coordinator.Abort(request)
		}
		s.logger.Info("authorization denied by provider", "error", providerErr)
		s.renderError(w, r, loc, http.StatusBadRequest, "auth.error.denied", "")
		return
	}

	code := query.Get("code")
	if code == "" || state == "" {
		s.renderError(w, r, loc, http.StatusBadRequest, "auth.error.missing-params", "")
		return
	}

	request, ok := s.coordinator.Registry().Remove(state)
	if !ok {
		s.logger.Debug("callback for unknown state")
		s.renderError(w, r, loc, apperrors.CodeAuthUnknownState.HTTPStatus(), "auth.error.unknown-state", "")
		return
	}

	token, err := s.coordinator.Exchange(r.Context(), code)
	if err != nil {
		s.coordinator.Abort(request)
		failure := apperrors.Correlated(err)
		s.logger.Error("exchange authorization code",
			"correlation_id", failure.CorrelationID,
			"code", failure.Code,
			"username", request.Username,
			"error", err,
		)
		s.renderError(w, r, loc, failure.Code.HTTPStatus(), "auth.error.exchange", failure.CorrelationID)
		return
	}

	if err := s.coordinator.Deliver(request, token); err != nil {
		// Nobody is listening any more; tell the user to start over.
		s.logger.Warn("deliver token", "username", request.Username, "error", err)
		if errors.Is(err, ErrReceiverGone) {
			s.renderError(w, r, loc, http.StatusGone, "auth.error.expired", "")
			return
		}
		s.renderError(w, r, loc, http.StatusConflict, "auth.error.unknown-state", "")
		return
	}

	imageSource := ""
	if request.GuildImageSource != "" {
		imageSource = request.GuildImageSource + "?size=2048"
	}
	templ.Handler(templates.AuthSuccess(templates.SuccessView{
		Lang:             loc.Locale(),
		Title:            loc.Sprintf("auth.success.title"),
		Heading:          loc.Sprintf("auth.success.heading", request.Username),
		Body:             loc.Sprintf("auth.success.body"),
		GuildImageSource: imageSource,
	})).ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	loc := s.localizer(r)
	templ.Handler(templates.Info(templates.InfoView{
		Lang:  loc.Locale(),
		Title: loc.Sprintf("auth.index.title"),
		Body:  loc.Sprintf("auth.index.body"),
	})).ServeHTTP(w, r)
}

func (s *Server) handleUp(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleDiscord(w http.ResponseWriter, r *http.Request) {
	if s.inviteCode == "" {
		s.handleNotFound(w, r)
		return
	}
	http.Redirect(w, r, discordInviteBase+s.inviteCode, http.StatusFound)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	loc := s.localizer(r)
	templ.Handler(templates.Info(templates.InfoView{
		Lang:  loc.Locale(),
		Title: loc.Sprintf("auth.not-found.title"),
		Body:  loc.Sprintf("auth.not-found.body", r.URL.Path),
	}), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, loc catalog.Localizer, status int, messageKey, correlationID string) {
	reference := ""
	if correlationID != "" {
		reference = loc.Sprintf("auth.error.reference", correlationID)
	}
	templ.Handler(templates.AuthError(templates.ErrorView{
		Lang:      loc.Locale(),
		Title:     loc.Sprintf("auth.error.title"),
		Message:   loc.Sprintf(messageKey),
		Reference: reference,
	}), templ.WithStatus(status)).ServeHTTP(w, r)
}
