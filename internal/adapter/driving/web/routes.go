package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all web GUI routes on the provided mux.
// Pages are served at / and /sites/*; static assets come from the embedded
// filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Page routes.
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /sites/new", h.NewSiteForm)
	mux.HandleFunc("POST /sites/new", h.CreateSite)
	mux.HandleFunc("GET /sites/{id}/edit", h.EditSiteForm)
	mux.HandleFunc("POST /sites/{id}/edit", h.UpdateSite)
	mux.HandleFunc("GET /export.csv", h.ExportCSV)
}
