// Package templates renders the HTML pages as templ components.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Page carries layout data shared by every page.
type Page struct {
	Title        string
	CurrentPath  string
	AssetVersion string
}

// writer accumulates the first write error so components can emit
// markup without checking every call.
type writer struct {
	w   io.Writer
	err error
}

func (hw *writer) raw(s string) {
	if hw.err == nil {
		_, hw.err = io.WriteString(hw.w, s)
	}
}

func (hw *writer) rawf(format string, args ...any) {
	if hw.err == nil {
		_, hw.err = fmt.Fprintf(hw.w, format, args...)
	}
}

func (hw *writer) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *writer) render(ctx context.Context, c templ.Component) {
	if hw.err == nil {
		hw.err = c.Render(ctx, hw.w)
	}
}

// Layout wraps body in the document shell.
func Layout(p Page, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &writer{w: w}
		hw.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		hw.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		hw.raw(`<title>`)
		if p.Title != "" {
			hw.text(p.Title)
			hw.raw(` · `)
		}
		hw.raw(`subwaywatch</title>`)
		hw.raw(`<link rel="stylesheet" href="/static/css/main.css?v=`)
		hw.text(p.AssetVersion)
		hw.raw(`">`)
		hw.raw(`<script src="https://unpkg.com/htmx.org@2.0.4" defer></script>`)
		hw.raw(`<script src="https://unpkg.com/htmx-ext-sse@2.2.2/sse.js" defer></script>`)
		hw.raw(`</head><body><header class="site-header"><a href="/" class="brand">subwaywatch</a>`)
		hw.raw(`<nav>`)
		navLink(hw, "/", "Lines", p.CurrentPath)
		navLink(hw, "/api/feeds", "Feeds", p.CurrentPath)
		hw.raw(`</nav></header><main>`)
		hw.render(ctx, body)
		hw.raw(`</main></body></html>`)
		return hw.err
	})
}

func navLink(hw *writer, href, label, current string) {
	hw.raw(`<a href="`)
	hw.text(href)
	hw.raw(`"`)
	if href == current {
		hw.raw(` aria-current="page"`)
	}
	hw.raw(`>`)
	hw.text(label)
	hw.raw(`</a>`)
}

// NotFoundPage renders a 404 body.
func NotFoundPage(p Page, what string) templ.Component {
	return Layout(p, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &writer{w: w}
		hw.raw(`<section class="empty"><h1>Not found</h1><p>`)
		hw.text(what)
		hw.raw(`</p><p><a href="/">Back to all lines</a></p></section>`)
		return hw.err
	}))
}
