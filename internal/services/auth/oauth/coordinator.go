package oauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
	platformotel "github.com/louisbranch/guildverify/internal/platform/otel"
	"github.com/louisbranch/guildverify/internal/platform/timeouts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const tracerName = "github.com/louisbranch/guildverify/internal/services/auth/oauth"

// Coordinator owns the Google client, the pending registry and the outbound
// HTTP client used for the exchange, the People API and revocation.
type Coordinator struct {
	oauth      *oauth2.Config
	registry   *Registry
	httpClient *http.Client
	peopleURL  string
	revokeURL  string
	timeout    time.Duration
	cleanup    time.Duration
	clock      func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithHTTPClient replaces the outbound client. Redirect following is still
// disabled on the copy the coordinator keeps.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) {
		if client == nil {
			return
		}
		copied := *client
		copied.CheckRedirect = noRedirect
		c.httpClient = &copied
	}
}

// WithClock overrides time.Now for deadlines and sweeps.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger for flow diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator validates cfg and builds the Google client. Configuration
// errors are returned here rather than on first use.
func NewCoordinator(cfg Config, registry *Registry, opts ...Option) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Coordinator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL(),
			Scopes:       []string{ScopeUserInfoEmail, ScopeUserInfoProfile},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		registry: registry,
		httpClient: &http.Client{
			Transport:     platformotel.NewTransport(http.DefaultTransport),
			CheckRedirect: noRedirect,
			Timeout:       timeouts.ProviderRequest,
		},
		peopleURL: cfg.PeopleURL,
		revokeURL: cfg.RevokeURL,
		timeout:   cfg.Timeout,
		cleanup:   cfg.CleanupInterval,
		clock:     time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// noRedirect stops the client at the first response so a redirecting
// provider endpoint surfaces as a non-OK status.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Registry exposes the pending registry for the callback handler.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Timeout returns how long a started process waits for its callback.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// CleanupInterval returns the configured sweep period.
func (c *Coordinator) CleanupInterval() time.Duration {
	return c.cleanup
}

// Start mints a fresh CSRF state, registers the requester under it and
// returns the authorization URL the user must open.
func (c *Coordinator) Start(requester Requester) (string, *AuthProcess) {
	state := rand.Text()
	deadline := c.clock().Add(c.timeout)
	h := newHandoff()
	c.registry.Insert(state, PendingRequest{
		Requester: requester,
		Deadline:  deadline,
		handoff:   h,
	})
	c.logger.Debug("authentication started", "username", requester.Username, "deadline", deadline)

	authURL := c.oauth.AuthCodeURL(state)
	return authURL, &AuthProcess{
		state:    state,
		deadline: deadline,
		handoff:  h,
		clock:    c.clock,
	}
}

// Exchange trades an authorization code for a token. Failures carry
// CodeProviderFetch, CodeProviderNonOK or CodeProviderMalformed.
func (c *Coordinator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, span := c.tracer.Start(ctx, "oauth.exchange")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeouts.ProviderRequest)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		classified := classifyExchangeError(err)
		spanError(span, classified)
		return nil, classified
	}
	return token, nil
}

// Deliver hands token to the process waiting on request. It never blocks.
func (c *Coordinator) Deliver(request PendingRequest, token *oauth2.Token) error {
	if request.handoff == nil {
		return ErrReceiverGone
	}
	return request.handoff.send(token)
}

// Abort drops the handoff of request so its waiter stops with
// ErrSenderDropped instead of waiting for the deadline.
func (c *Coordinator) Abort(request PendingRequest) {
	if request.handoff != nil {
		request.handoff.drop()
	}
}

// Sweep removes expired pending requests.
func (c *Coordinator) Sweep() int {
	removed := c.registry.Sweep(c.clock())
	if removed > 0 {
		c.logger.Debug("swept expired authentications", "count", removed)
	}
	return removed
}

// StartCleanup sweeps expired pending requests every interval until ctx is
// done.
func (c *Coordinator) StartCleanup(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		wrapped := apperrors.Wrap(apperrors.CodeProviderNonOK, "token endpoint rejected the code", err)
		wrapped.Metadata = map[string]string{"status": fmt.Sprint(status)}
		return wrapped
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.CodeProviderFetch, "call token endpoint", err)
	}
	return apperrors.Wrap(apperrors.CodeProviderMalformed, "decode token response", err)
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
}

func statusAttr(status int) attribute.KeyValue {
	return attribute.Int("http.response.status_code", status)
}
