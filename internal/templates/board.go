package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"subwaywatch/internal/transit"
)

// RouteInfo is the display identity of a line.
type RouteInfo struct {
	ID        string
	Name      string
	Color     string
	TextColor string
	Trips     int
}

// RoutesData is the line picker.
type RoutesData struct {
	Page      Page
	Routes    []RouteInfo
	FetchedAt time.Time
	Location  *time.Location
}

// RouteBoardData is one line's live board.
type RouteBoardData struct {
	Page      Page
	Route     RouteInfo
	View      transit.RouteView
	FetchedAt time.Time
	Location  *time.Location
	Refreshed string // flash message after a manual refresh
}

var kindLabels = map[transit.Kind]string{
	transit.AtStation:    "Currently At Station",
	transit.OutOfService: "Out of Service",
	transit.Idling:       "Train Idling",
	transit.EnRoute:      "On the way",
}

// KindLabel returns the rider-facing label for a status kind.
func KindLabel(k transit.Kind) string {
	return kindLabels[k]
}

// Arrow returns the board arrow for a direction.
func Arrow(d transit.Direction) string {
	switch d {
	case transit.Down:
		return "↓"
	case transit.Up:
		return "↑"
	default:
		return "-"
	}
}

// RoutesPage lists every configured line.
func RoutesPage(d RoutesData) templ.Component {
	return Layout(d.Page, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &writer{w: w}
		hw.raw(`<section><h1>Lines</h1>`)
		if !d.FetchedAt.IsZero() {
			hw.raw(`<p class="muted">Updated `)
			hw.text(localTime(d.FetchedAt, d.Location))
			hw.raw(`</p>`)
		}
		hw.raw(`<ul class="route-grid">`)
		for _, r := range d.Routes {
			hw.raw(`<li><a href="/routes/`)
			hw.text(url.PathEscape(r.ID))
			hw.raw(`">`)
			bullet(hw, r)
			hw.raw(`<span class="route-name">`)
			hw.text(r.Name)
			hw.raw(`</span><span class="muted">`)
			hw.rawf("%d trains", r.Trips)
			hw.raw(`</span></a></li>`)
		}
		hw.raw(`</ul></section>`)
		return hw.err
	}))
}

func bullet(hw *writer, r RouteInfo) {
	hw.raw(`<span class="bullet" style="background:`)
	hw.text(cssColor(r.Color, "#808183"))
	hw.raw(`;color:`)
	hw.text(cssColor(r.TextColor, "#FFFFFF"))
	hw.raw(`">`)
	hw.text(r.ID)
	hw.raw(`</span>`)
}

func cssColor(c, fallback string) string {
	if c == "" {
		return fallback
	}
	if c[0] != '#' {
		return "#" + c
	}
	return c
}

// RouteBoardPage is the full board page; the list refreshes over SSE.
func RouteBoardPage(d RouteBoardData) templ.Component {
	return Layout(d.Page, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &writer{w: w}
		id := url.PathEscape(d.Route.ID)
		hw.raw(`<section class="board-page"><h1>`)
		bullet(hw, d.Route)
		hw.raw(` `)
		hw.text(d.Route.Name)
		hw.raw(`</h1><form method="post" action="/routes/`)
		hw.text(id)
		hw.raw(`/refresh"><button type="submit">Refresh</button></form>`)
		if d.Refreshed != "" {
			hw.raw(`<p class="flash">`)
			hw.text(d.Refreshed)
			hw.raw(`</p>`)
		}
		hw.raw(`<div hx-ext="sse" sse-connect="/sse/routes/`)
		hw.text(id)
		hw.raw(`" sse-swap="board">`)
		hw.render(ctx, BoardList(d))
		hw.raw(`</div></section>`)
		return hw.err
	}))
}

// BoardList renders the stop-by-stop board. Trains heading down the line sit
// left of the stop name; trains heading up or without a direction sit right.
func BoardList(d RouteBoardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &writer{w: w}
		v := d.View
		hw.raw(`<div class="board">`)
		hw.raw(`<p class="counts">`)
		for _, k := range []transit.Kind{transit.AtStation, transit.EnRoute, transit.Idling, transit.OutOfService} {
			hw.raw(`<span class="count `)
			hw.text(k.String())
			hw.raw(`">`)
			hw.text(KindLabel(k))
			hw.rawf(`: %d</span> `, v.Counts[k.String()])
		}
		hw.raw(`</p>`)
		if len(v.Boards) == 0 {
			hw.raw(`<p class="empty">No trains reported on this line right now.</p>`)
		}
		hw.raw(`<ol class="stops">`)
		for _, b := range v.Boards {
			hw.raw(`<li class="stop-row"><div class="side down">`)
			for _, s := range b.Down {
				train(hw, s, d.Route, true)
			}
			hw.raw(`</div><div class="stop-name"><a href="/stations/`)
			hw.text(url.PathEscape(transit.BaseStopID(b.Stop.ID)))
			hw.raw(`">`)
			hw.text(b.Stop.DisplayName())
			hw.raw(`</a></div><div class="side up">`)
			for _, s := range b.Up {
				train(hw, s, d.Route, false)
			}
			for _, s := range b.None {
				train(hw, s, d.Route, false)
			}
			hw.raw(`</div></li>`)
		}
		hw.raw(`</ol>`)
		if !d.FetchedAt.IsZero() {
			hw.raw(`<p class="muted">Feed fetched `)
			hw.text(localTime(d.FetchedAt, d.Location))
			hw.raw(`</p>`)
		}
		hw.raw(`</div>`)
		return hw.err
	})
}

func train(hw *writer, s transit.TripStatus, r RouteInfo, left bool) {
	hw.raw(`<span class="train `)
	hw.text(s.Kind.String())
	hw.raw(`" title="`)
	hw.text(tooltip(s))
	hw.raw(`">`)
	if left {
		nextArrival(hw, s)
		hw.raw(`<span class="arrow">`)
		hw.text(Arrow(s.Direction))
		hw.raw(`</span>`)
	}
	bullet(hw, r)
	if !left {
		hw.raw(`<span class="arrow">`)
		hw.text(Arrow(s.Direction))
		hw.raw(`</span>`)
		nextArrival(hw, s)
	}
	hw.raw(`</span>`)
}

func nextArrival(hw *writer, s transit.TripStatus) {
	if s.Next == nil || s.Next.ArrivalTime == "" {
		return
	}
	hw.raw(`<small>@ `)
	hw.text(s.Next.ArrivalTime)
	hw.raw(`</small>`)
}

func tooltip(s transit.TripStatus) string {
	t := KindLabel(s.Kind)
	if s.LastSeen != nil && s.LastSeen.StopName != "" {
		t += "\nLast Seen Station: " + s.LastSeen.StopName
	}
	if s.Next != nil && s.Next.StopName != "" {
		t += "\nNext Station: " + s.Next.StopName
	}
	if s.SecondsUntilNext > 0 {
		t += fmt.Sprintf("\nArriving in %s", (time.Duration(s.SecondsUntilNext) * time.Second).String())
	}
	return t
}

// localTime formats t for display in loc, UTC when loc is nil.
func localTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(transit.DisplayTimeLayout)
}
