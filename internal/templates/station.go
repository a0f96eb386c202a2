package templates

import (
	"context"
	"io"
	"net/url"

	"github.com/a-h/templ"

	"subwaywatch/internal/transit"
)

// StationRow is one train at or approaching a station.
type StationRow struct {
	Route  RouteInfo
	Stop   transit.StopRef // the platform the train is reported against
	Status transit.TripStatus
}

// StationData is the cross-line view of a single station.
type StationData struct {
	Page      Page
	StationID string
	Name      string
	Platforms []string
	Rows      []StationRow
}

// StationPage lists every train whose current position is this station.
func StationPage(d StationData) templ.Component {
	return Layout(d.Page, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &writer{w: w}
		hw.raw(`<section class="station"><h1>`)
		hw.text(d.Name)
		hw.raw(`</h1><p class="muted">Platforms: `)
		for i, p := range d.Platforms {
			if i > 0 {
				hw.raw(`, `)
			}
			hw.text(p)
		}
		hw.raw(`</p>`)
		if len(d.Rows) == 0 {
			hw.raw(`<p class="empty">No trains at or approaching this station.</p>`)
		}
		hw.raw(`<table class="arrivals"><tbody>`)
		for _, row := range d.Rows {
			s := row.Status
			hw.raw(`<tr><td><a href="/routes/`)
			hw.text(url.PathEscape(row.Route.ID))
			hw.raw(`">`)
			bullet(hw, row.Route)
			hw.raw(`</a></td><td class="arrow">`)
			hw.text(Arrow(s.Direction))
			hw.raw(`</td><td>`)
			hw.text(KindLabel(s.Kind))
			hw.raw(`</td><td>`)
			hw.text(row.Stop.ID)
			hw.raw(`</td><td>`)
			if s.Next != nil {
				hw.text(s.Next.Ref().DisplayName())
				if s.Next.ArrivalTime != "" {
					hw.raw(` @ `)
					hw.text(s.Next.ArrivalTime)
				}
			}
			hw.raw(`</td></tr>`)
		}
		hw.raw(`</tbody></table></section>`)
		return hw.err
	}))
}
