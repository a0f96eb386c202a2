package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"subwaywatch/internal/storage"
	"subwaywatch/internal/templates"
	"subwaywatch/internal/transit"
)

// StationDetail serves every train at or approaching a station, across lines.
func (h *Handler) StationDetail(w http.ResponseWriter, r *http.Request) {
	stationID := r.PathValue("id")
	ctx := r.Context()

	if h.db == nil {
		h.notFound(w, r, fmt.Sprintf("There is no station %q.", stationID))
		return
	}
	station, err := h.db.Stop(ctx, stationID)
	if errors.Is(err, storage.ErrNotFound) {
		h.notFound(w, r, fmt.Sprintf("There is no station %q.", stationID))
		return
	}
	if err != nil {
		h.logger.Error("fetching station", "station", stationID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	platforms, err := h.db.Platforms(ctx, stationID)
	if err != nil {
		h.logger.Error("fetching platforms", "station", stationID, "error", err)
	}
	ids := []string{stationID}
	if len(platforms) > 0 {
		ids = ids[:0]
		for _, p := range platforms {
			ids = append(ids, p.StopID)
		}
	}

	data := templates.StationData{
		Page:      h.page(station.StopName, ""),
		StationID: stationID,
		Name:      station.StopName,
		Platforms: ids,
		Rows:      h.stationRows(ctx, ids, h.now(r)),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.StationPage(data).Render(ctx, w); err != nil {
		h.logger.Error("rendering station page", "error", err)
	}
}

// stationRows classifies every configured line and keeps the trains whose
// current stop is one of platforms, in route table order.
func (h *Handler) stationRows(ctx context.Context, platforms []string, now time.Time) []templates.StationRow {
	sched, _ := h.store.Snapshot()

	var rows []templates.StationRow
	for _, rc := range h.routes.Routes {
		fd, ok := sched[rc.ID]
		if !ok || len(fd.Trips) == 0 {
			continue
		}
		statuses := h.classifier.ClassifyAll(fd, now)
		canonical := transit.StopsForRoute(fd.Trips)
		info := h.routeInfo(ctx, rc)

		for _, id := range platforms {
			ref := transit.StopRef{ID: id}
			for _, s := range transit.StatusesAtStop(ref, statuses) {
				rows = append(rows, templates.StationRow{
					Route:  info,
					Stop:   ref,
					Status: s.WithDirection(transit.ResolveDirection(s, canonical)),
				})
			}
		}
	}
	return rows
}
