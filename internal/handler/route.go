package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"subwaywatch/internal/realtime"
	"subwaywatch/internal/templates"
)

// RouteBoard serves the live board for a single line.
func (h *Handler) RouteBoard(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("id")
	rc, ok := h.routes.Route(routeID)
	if !ok {
		h.notFound(w, r, fmt.Sprintf("There is no %q line.", routeID))
		return
	}

	data := h.boardData(r, h.routeInfo(r.Context(), rc))
	switch r.URL.Query().Get("refreshed") {
	case "1":
		data.Refreshed = "Feed refreshed."
	case "cooldown":
		data.Refreshed = "Feed was refreshed moments ago."
	case "error":
		data.Refreshed = "Feed is unavailable right now."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.RouteBoardPage(data).Render(r.Context(), w); err != nil {
		h.logger.Error("rendering route board", "route", routeID, "error", err)
	}
}

func (h *Handler) boardData(r *http.Request, info templates.RouteInfo) templates.RouteBoardData {
	view, fetchedAt := h.routeView(info.ID, h.now(r))
	return templates.RouteBoardData{
		Page:      h.page(fmt.Sprintf("%s train", info.ID), "/routes/"+info.ID),
		Route:     info,
		View:      view,
		FetchedAt: fetchedAt,
		Location:  h.loc,
	}
}

// RefreshRoute refetches a line's feed and redirects back to its board.
func (h *Handler) RefreshRoute(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("id")
	if _, ok := h.routes.Route(routeID); !ok {
		h.notFound(w, r, fmt.Sprintf("There is no %q line.", routeID))
		return
	}

	result := h.refresh(r, routeID)
	if result == "fetched" {
		result = "1"
	}
	http.Redirect(w, r, "/routes/"+url.PathEscape(routeID)+"?refreshed="+result, http.StatusSeeOther)
}

// refresh runs an on-demand refresh and returns fetched, cooldown or error.
func (h *Handler) refresh(r *http.Request, routeID string) string {
	refreshed, err := h.refresher.RefreshRoute(r.Context(), routeID)
	result := "fetched"
	switch {
	case errors.Is(err, realtime.ErrUnknownRoute):
		result = "error"
		h.logger.Warn("route has no feed", "route", routeID)
	case err != nil:
		result = "error"
		h.logger.Warn("route refresh failed", "route", routeID, "error", err)
	case !refreshed:
		result = "cooldown"
	}
	if h.metrics != nil {
		h.metrics.RefreshResult(routeID, result)
	}
	return result
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request, what string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := templates.NotFoundPage(h.page("Not found", ""), what).Render(r.Context(), w); err != nil {
		h.logger.Error("rendering not found page", "error", err)
	}
}
