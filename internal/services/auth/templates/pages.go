// Package templates renders the small set of HTML pages served to browsers
// during Google sign-in.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// SuccessView is the page shown after a token reached the waiting process.
type SuccessView struct {
	Lang             string
	Title            string
	Heading          string
	Body             string
	GuildImageSource string
}

// ErrorView is the page shown when the callback cannot complete.
type ErrorView struct {
	Lang      string
	Title     string
	Message   string
	Reference string
}

// InfoView is a plain titled page, used for the index and for 404s.
type InfoView struct {
	Lang  string
	Title string
	Body  string
}

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;min-height:100vh;display:flex;align-items:center;justify-content:center;background:#1e1f22;color:#f2f3f5}` +
	`main{max-width:32rem;padding:2rem;text-align:center}` +
	`img{width:96px;height:96px;border-radius:50%}` +
	`.reference{font-family:monospace;color:#b5bac1}`

// AuthSuccess greets the user and shows the guild icon.
func AuthSuccess(view SuccessView) templ.Component {
	return page(view.Lang, view.Title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if view.GuildImageSource != "" {
			src := templ.URL(view.GuildImageSource)
			if err := write(w, `<img alt="" src="`, templ.EscapeString(string(src)), `">`); err != nil {
				return err
			}
		}
		return write(w,
			"<h1>", templ.EscapeString(view.Heading), "</h1>",
			"<p>", templ.EscapeString(view.Body), "</p>",
		)
	}))
}

// AuthError explains why sign-in failed, with an optional reference the user
// can quote to an administrator.
func AuthError(view ErrorView) templ.Component {
	return page(view.Lang, view.Title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			"<h1>", templ.EscapeString(view.Title), "</h1>",
			"<p>", templ.EscapeString(view.Message), "</p>",
		); err != nil {
			return err
		}
		if view.Reference == "" {
			return nil
		}
		return write(w, `<p class="reference">`, templ.EscapeString(view.Reference), "</p>")
	}))
}

// Info renders a titled paragraph.
func Info(view InfoView) templ.Component {
	return page(view.Lang, view.Title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return write(w,
			"<h1>", templ.EscapeString(view.Title), "</h1>",
			"<p>", templ.EscapeString(view.Body), "</p>",
		)
	}))
}

func page(lang, title string, body templ.Component) templ.Component {
	if lang == "" {
		lang = "en-US"
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			`<!doctype html><html lang="`, templ.EscapeString(lang), `"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			"<title>", templ.EscapeString(title), "</title>",
			"<style>", stylesheet, "</style></head><body><main>",
		); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		return write(w, "</main></body></html>")
	})
}

func write(w io.Writer, parts ...string) error {
	for _, part := range parts {
		if _, err := io.WriteString(w, part); err != nil {
			return err
		}
	}
	return nil
}
