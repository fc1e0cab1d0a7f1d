package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
)

// tokenEndpoint is a stub Google token endpoint that counts requests.
type tokenEndpoint struct {
	hits    atomic.Int32
	handler http.HandlerFunc
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.hits.Add(1)
	e.handler(w, r)
}

func issueToken(accessToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"`+accessToken+`","token_type":"Bearer","expires_in":3599}`)
	}
}

func testConfig(tokenURL, peopleURL string) Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		ServerURL:    "verify.example.org",
		TokenURL:     tokenURL,
		PeopleURL:    peopleURL,
		Timeout:      time.Minute,
	}
}

func newTestCoordinator(t *testing.T, cfg Config, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	coordinator, err := NewCoordinator(cfg, NewRegistry(), opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coordinator
}

func TestNewCoordinatorValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }},
		{name: "missing client secret", mutate: func(c *Config) { c.ClientSecret = "" }},
		{name: "missing server url", mutate: func(c *Config) { c.ServerURL = " " }},
		{name: "relative token url", mutate: func(c *Config) { c.TokenURL = "/token" }},
		{name: "bad people url", mutate: func(c *Config) { c.PeopleURL = "http://[::1" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig("https://example.com/token", "")
			tc.mutate(&cfg)
			if _, err := NewCoordinator(cfg, nil); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestNewCoordinatorAppliesDefaults(t *testing.T) {
	cfg := Config{ClientID: "id", ClientSecret: "secret", ServerURL: "verify.example.org"}
	coordinator, err := NewCoordinator(cfg, nil)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if coordinator.Timeout() != 5*time.Minute {
		t.Fatalf("expected 5m timeout, got %s", coordinator.Timeout())
	}
	if coordinator.CleanupInterval() != time.Minute {
		t.Fatalf("expected 1m cleanup, got %s", coordinator.CleanupInterval())
	}
	if coordinator.Registry() == nil {
		t.Fatal("expected a registry")
	}
}

func TestStartBuildsAuthorizationURL(t *testing.T) {
	coordinator := newTestCoordinator(t, testConfig("https://example.com/token", ""))

	authURL, process := coordinator.Start(Requester{Username: "alice"})
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if parsed.Host != "accounts.google.com" {
		t.Fatalf("unexpected host %q", parsed.Host)
	}
	query := parsed.Query()
	checks := map[string]string{
		"client_id":     "client-id",
		"redirect_uri":  "https://verify.example.org/oauth2",
		"response_type": "code",
		"scope":         ScopeUserInfoEmail + " " + ScopeUserInfoProfile,
		"state":         process.State(),
	}
	for key, want := range checks {
		if got := query.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if !coordinator.Registry().Contains(process.State()) {
		t.Fatal("expected state to be pending")
	}
}

func TestStartMintsDistinctStates(t *testing.T) {
	coordinator := newTestCoordinator(t, testConfig("https://example.com/token", ""))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		_, process := coordinator.Start(Requester{Username: "alice"})
		if len(process.State()) < 16 {
			t.Fatalf("state too short: %q", process.State())
		}
		if seen[process.State()] {
			t.Fatalf("duplicate state %q", process.State())
		}
		seen[process.State()] = true
	}
	if coordinator.Registry().Len() != 50 {
		t.Fatalf("expected 50 pending, got %d", coordinator.Registry().Len())
	}
}

func TestStartUsesConfiguredTimeout(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig("https://example.com/token", "")
	cfg.Timeout = 3 * time.Minute
	coordinator := newTestCoordinator(t, cfg, WithClock(clock.Now))

	_, process := coordinator.Start(Requester{})
	if want := clock.Now().Add(3 * time.Minute); !process.Deadline().Equal(want) {
		t.Fatalf("deadline = %s, want %s", process.Deadline(), want)
	}
}

func TestRedirectURLKeepsExplicitScheme(t *testing.T) {
	tests := []struct {
		serverURL string
		want      string
	}{
		{serverURL: "verify.example.org", want: "https://verify.example.org/oauth2"},
		{serverURL: "verify.example.org/", want: "https://verify.example.org/oauth2"},
		{serverURL: "http://localhost:8084", want: "http://localhost:8084/oauth2"},
	}
	for _, tc := range tests {
		if got := (Config{ServerURL: tc.serverURL}).RedirectURL(); got != tc.want {
			t.Errorf("RedirectURL(%q) = %q, want %q", tc.serverURL, got, tc.want)
		}
	}
}

func TestExchangeSendsCredentialsAndReturnsToken(t *testing.T) {
	endpoint := &tokenEndpoint{handler: func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		want := map[string]string{
			"grant_type":    "authorization_code",
			"code":          "auth-code",
			"redirect_uri":  "https://verify.example.org/oauth2",
			"client_id":     "client-id",
			"client_secret": "client-secret",
		}
		for key, value := range want {
			if got := r.PostForm.Get(key); got != value {
				t.Errorf("%s = %q, want %q", key, got, value)
			}
		}
		issueToken("tok-123")(w, r)
	}}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	coordinator := newTestCoordinator(t, testConfig(server.URL, ""))
	token, err := coordinator.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token.AccessToken != "tok-123" {
		t.Fatalf("unexpected access token %q", token.AccessToken)
	}
}

func TestExchangeClassifiesFailures(t *testing.T) {
	redirected := &tokenEndpoint{handler: func(w http.ResponseWriter, r *http.Request) {
		t.Error("redirect target must not be called")
	}}
	redirectTarget := httptest.NewServer(redirected)
	defer redirectTarget.Close()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    apperrors.Code
	}{
		{
			name: "rejected code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			},
			want: apperrors.CodeProviderNonOK,
		},
		{
			name: "redirect is not followed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, redirectTarget.URL, http.StatusFound)
			},
			want: apperrors.CodeProviderNonOK,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"access_token":`)
			},
			want: apperrors.CodeProviderMalformed,
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"token_type":"Bearer"}`)
			},
			want: apperrors.CodeProviderMalformed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			coordinator := newTestCoordinator(t, testConfig(server.URL, ""))
			_, err := coordinator.Exchange(context.Background(), "code")
			if err == nil {
				t.Fatal("expected exchange error")
			}
			if got := apperrors.CodeOf(err); got != tc.want {
				t.Fatalf("code = %s, want %s (%v)", got, tc.want, err)
			}
		})
	}
	if redirected.hits.Load() != 0 {
		t.Fatalf("redirect target was called %d times", redirected.hits.Load())
	}
}

func TestExchangeTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	tokenURL := server.URL
	server.Close()

	coordinator := newTestCoordinator(t, testConfig(tokenURL, ""))
	_, err := coordinator.Exchange(context.Background(), "code")
	if got := apperrors.CodeOf(err); got != apperrors.CodeProviderFetch {
		t.Fatalf("code = %s, want %s (%v)", got, apperrors.CodeProviderFetch, err)
	}
}

func TestWithHTTPClientKeepsRedirectsDisabled(t *testing.T) {
	client := &http.Client{Timeout: time.Second}
	coordinator := newTestCoordinator(t, testConfig("https://example.com/token", ""), WithHTTPClient(client))
	if coordinator.httpClient == client {
		t.Fatal("expected the client to be copied")
	}
	if coordinator.httpClient.CheckRedirect == nil {
		t.Fatal("expected redirects to stay disabled")
	}
	if client.CheckRedirect != nil {
		t.Fatal("caller's client must not be modified")
	}
}

func TestDeliverAndAbort(t *testing.T) {
	coordinator := newTestCoordinator(t, testConfig("https://example.com/token", ""))

	_, delivered := coordinator.Start(Requester{Username: "alice"})
	request, ok := coordinator.Registry().Remove(delivered.State())
	if !ok {
		t.Fatal("expected pending request")
	}
	if request.Username != "alice" {
		t.Fatalf("unexpected requester %+v", request.Requester)
	}
	if err := coordinator.Deliver(request, nil); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := coordinator.Deliver(request, nil); !errors.Is(err, ErrAlreadyDelivered) {
		t.Fatalf("expected already delivered, got %v", err)
	}

	_, aborted := coordinator.Start(Requester{Username: "bob"})
	request, _ = coordinator.Registry().Remove(aborted.State())
	coordinator.Abort(request)
	if _, err := aborted.Wait(context.Background()); !errors.Is(err, ErrSenderDropped) {
		t.Fatalf("expected sender dropped, got %v", err)
	}

	if err := coordinator.Deliver(PendingRequest{}, nil); !errors.Is(err, ErrReceiverGone) {
		t.Fatalf("expected receiver gone for detached request, got %v", err)
	}
}

func TestStartCleanupSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	coordinator := newTestCoordinator(t, testConfig("https://example.com/token", ""), WithClock(clock.Now))
	_, process := coordinator.Start(Requester{})
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coordinator.StartCleanup(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for coordinator.Registry().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected cleanup to sweep the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := process.Wait(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout after sweep, got %v", err)
	}
}

func TestStartCleanupIgnoresNonPositiveInterval(t *testing.T) {
	coordinator := newTestCoordinator(t, testConfig("https://example.com/token", ""))
	coordinator.StartCleanup(context.Background(), 0)
	var nilCoordinator *Coordinator
	nilCoordinator.StartCleanup(context.Background(), time.Second)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GUILDVERIFY_GOOGLE_CLIENT_ID", " id ")
	t.Setenv("GUILDVERIFY_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GUILDVERIFY_SERVER_URL", "verify.example.org")
	t.Setenv("GUILDVERIFY_AUTH_TIMEOUT", "90s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ClientID != "id" {
		t.Fatalf("expected trimmed client id, got %q", cfg.ClientID)
	}
	if cfg.Timeout != 90*time.Second {
		t.Fatalf("expected 90s timeout, got %s", cfg.Timeout)
	}
	if cfg.TokenURL != GoogleTokenURL || cfg.PeopleURL != GooglePeopleURL {
		t.Fatalf("expected default endpoints, got %q %q", cfg.TokenURL, cfg.PeopleURL)
	}
}

func TestLoadConfigFromEnvRequiresCredentials(t *testing.T) {
	t.Setenv("GUILDVERIFY_GOOGLE_CLIENT_ID", "")
	t.Setenv("GUILDVERIFY_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GUILDVERIFY_SERVER_URL", "verify.example.org")

	_, err := LoadConfigFromEnv()
	if err == nil || !strings.Contains(err.Error(), "GUILDVERIFY_GOOGLE_CLIENT_ID") {
		t.Fatalf("expected missing client id error, got %v", err)
	}
}
