package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"subwaywatch/internal/templates"
)

// SSEBoard streams a line's board via Server-Sent Events.
// The HTMX SSE extension on the client listens for "board" events and swaps the HTML.
func (h *Handler) SSEBoard(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("id")
	rc, ok := h.routes.Route(routeID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	info := h.routeInfo(ctx, rc)
	h.sendBoardEvent(w, r, flusher, info)

	interval := h.cfg.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sendBoardEvent(w, r, flusher, info)
		case <-ctx.Done():
			return
		}
	}
}

// sendBoardEvent renders the board as HTML and sends it as an SSE event.
func (h *Handler) sendBoardEvent(w http.ResponseWriter, r *http.Request, flusher http.Flusher, info templates.RouteInfo) {
	var buf bytes.Buffer
	if err := templates.BoardList(h.boardData(r, info)).Render(r.Context(), &buf); err != nil {
		h.logger.Error("rendering SSE board", "route", info.ID, "error", err)
		return
	}

	// SSE format: event name, then data lines (each line prefixed with "data: ")
	fmt.Fprintf(w, "event: board\n")
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprintf(w, "\n")
	flusher.Flush()
}
