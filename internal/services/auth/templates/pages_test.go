package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func render(t *testing.T, render func(*bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestAuthSuccessEscapesUserContent(t *testing.T) {
	html := render(t, func(buf *bytes.Buffer) error {
		return AuthSuccess(SuccessView{
			Lang:             "fr-FR",
			Title:            "Compte associé",
			Heading:          "Welcome, <script>alert(1)</script>!",
			Body:             "Done",
			GuildImageSource: "https://cdn.discordapp.com/icons/1/a.png?size=2048",
		}).Render(context.Background(), buf)
	})

	if strings.Contains(html, "<script>") {
		t.Fatalf("expected username to be escaped: %s", html)
	}
	if !strings.Contains(html, `lang="fr-FR"`) {
		t.Fatalf("expected lang attribute: %s", html)
	}
	if !strings.Contains(html, `src="https://cdn.discordapp.com/icons/1/a.png?size=2048"`) {
		t.Fatalf("expected guild image: %s", html)
	}
}

func TestAuthSuccessRejectsUnsafeImageURL(t *testing.T) {
	html := render(t, func(buf *bytes.Buffer) error {
		return AuthSuccess(SuccessView{GuildImageSource: "javascript:alert(1)"}).Render(context.Background(), buf)
	})
	if strings.Contains(html, "javascript:") {
		t.Fatalf("expected unsafe url to be replaced: %s", html)
	}
}

func TestAuthSuccessOmitsMissingImage(t *testing.T) {
	html := render(t, func(buf *bytes.Buffer) error {
		return AuthSuccess(SuccessView{Heading: "Hi"}).Render(context.Background(), buf)
	})
	if strings.Contains(html, "<img") {
		t.Fatalf("expected no image: %s", html)
	}
	if !strings.Contains(html, `lang="en-US"`) {
		t.Fatalf("expected default lang: %s", html)
	}
}

func TestAuthErrorReference(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		want      bool
	}{
		{name: "with reference", reference: "Reference: abc", want: true},
		{name: "without reference", reference: "", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			html := render(t, func(buf *bytes.Buffer) error {
				return AuthError(ErrorView{Title: "Failed", Message: "Try again", Reference: tc.reference}).Render(context.Background(), buf)
			})
			if got := strings.Contains(html, `class="reference"`); got != tc.want {
				t.Fatalf("reference shown = %v, want %v: %s", got, tc.want, html)
			}
			if !strings.Contains(html, "<h1>Failed</h1>") {
				t.Fatalf("expected title heading: %s", html)
			}
		})
	}
}

func TestInfoEscapesBody(t *testing.T) {
	html := render(t, func(buf *bytes.Buffer) error {
		return Info(InfoView{Title: "Page not found", Body: "Nothing lives at /<b>."}).Render(context.Background(), buf)
	})
	if !strings.Contains(html, "Nothing lives at /&lt;b&gt;.") {
		t.Fatalf("expected escaped body: %s", html)
	}
}
