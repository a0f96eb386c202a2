package handler

import (
	"net/http"

	"subwaywatch/internal/templates"
)

// Home serves the line picker.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	routes := h.routeInfos(r.Context())
	_, fetchedAt := h.store.Snapshot()

	data := templates.RoutesData{
		Page:      h.page("Lines", "/"),
		Routes:    routes,
		FetchedAt: fetchedAt,
		Location:  h.loc,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.RoutesPage(data).Render(r.Context(), w); err != nil {
		h.logger.Error("rendering routes page", "error", err)
	}
}
