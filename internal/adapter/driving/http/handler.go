// Package httphandler implements the JSON API driving adapter.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/centroplan/pvpanel/internal/application"
	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	siteSvc *application.SiteService
	syncSvc *application.SyncService
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(siteSvc *application.SiteService, syncSvc *application.SyncService, logger *slog.Logger) *Handler {
	return &Handler{
		siteSvc: siteSvc,
		syncSvc: syncSvc,
		logger:  logger,
	}
}

// RegisterAPIRoutes registers all API routes on the provided mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/sites", h.ListSites)
	mux.HandleFunc("GET /api/v1/sites/export", h.ExportSites)
	mux.HandleFunc("GET /api/v1/sites/{id}", h.GetSite)
	mux.HandleFunc("POST /api/v1/sites", h.CreateSite)
	mux.HandleFunc("PATCH /api/v1/sites/{id}", h.UpdateSite)
	mux.HandleFunc("GET /api/v1/clients", h.ListClients)
	mux.HandleFunc("GET /api/v1/sync", h.SyncStatus)
	mux.HandleFunc("POST /api/v1/sync", h.TriggerSync)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// ApplyMiddleware wraps the mux with request-ID, logging, and recovery
// middleware. Recovery is innermost so panics are caught before logging.
func ApplyMiddleware(mux http.Handler, logger *slog.Logger) http.Handler {
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)
	return wrapped
}

// ListSites returns mirrored sites, optionally narrowed by client_id,
// min_power, and max_power query parameters.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSiteFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sites, clientNames, err := h.listWithClientNames(r, filter)
	if err != nil {
		h.logger.Error("failed to list sites", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]SiteResponse, 0, len(sites))
	for _, site := range sites {
		resp = append(resp, toSiteResponse(site, clientNames))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSite returns a single site by id.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	site, err := h.siteSvc.GetSite(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get site", "site", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if site == nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	clientNames, err := h.clientNames(r)
	if err != nil {
		h.logger.Error("failed to list clients", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toSiteResponse(*site, clientNames))
}

// CreateSite adds a new site through the backend and returns the stored row.
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	change, err := req.toSiteChange()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	site, err := h.siteSvc.CreateSite(r.Context(), change)
	if err != nil {
		if errors.Is(err, application.ErrNameRequired) {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		h.logger.Error("failed to create site", "error", err)
		writeError(w, http.StatusBadGateway, "backend write failed")
		return
	}

	clientNames, _ := h.clientNames(r)
	writeJSON(w, http.StatusCreated, toSiteResponse(*site, clientNames))
}

// UpdateSite updates an existing site through the backend.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	change, err := req.toSiteChange()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	site, err := h.siteSvc.UpdateSite(r.Context(), id, change)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrNameRequired):
			writeError(w, http.StatusBadRequest, "name is required")
		case errors.Is(err, driven.ErrSiteNotFound):
			writeError(w, http.StatusNotFound, "site not found")
		default:
			h.logger.Error("failed to update site", "site", id, "error", err)
			writeError(w, http.StatusBadGateway, "backend write failed")
		}
		return
	}

	clientNames, _ := h.clientNames(r)
	writeJSON(w, http.StatusOK, toSiteResponse(*site, clientNames))
}

// ListClients returns all mirrored clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.siteSvc.ListClients(r.Context())
	if err != nil {
		h.logger.Error("failed to list clients", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ClientResponse, 0, len(clients))
	for _, client := range clients {
		resp = append(resp, toClientResponse(client))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ExportSites streams the filtered site listing as a CSV attachment.
func (h *Handler) ExportSites(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSiteFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sites, clientNames, err := h.listWithClientNames(r, filter)
	if err != nil {
		h.logger.Error("failed to export sites", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sites_pv.csv"`)

	if err := application.WriteSitesCSV(w, sites, clientNames); err != nil {
		// Headers are already out; all we can do is log.
		h.logger.Error("failed to write csv export", "error", err)
	}
}

// SyncStatus reports the background sync loop status.
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSyncStatusResponse(h.syncSvc.Status()))
}

// TriggerSync forces an immediate sites refresh and reports the new status.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncSvc.RefreshSites(r.Context()); err != nil {
		h.logger.Error("manual sync failed", "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, toSyncStatusResponse(h.syncSvc.Status()))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// listWithClientNames fetches the filtered sites plus the client name map
// used to resolve client_name on each row.
func (h *Handler) listWithClientNames(r *http.Request, filter model.SiteFilter) ([]model.Site, map[int64]string, error) {
	sites, err := h.siteSvc.ListSites(r.Context(), filter)
	if err != nil {
		return nil, nil, err
	}

	clientNames, err := h.clientNames(r)
	if err != nil {
		return nil, nil, err
	}

	return sites, clientNames, nil
}

func (h *Handler) clientNames(r *http.Request) (map[int64]string, error) {
	clients, err := h.siteSvc.ListClients(r.Context())
	if err != nil {
		return nil, err
	}
	return application.ClientNameMap(clients), nil
}

// parseSiteFilter reads the optional client_id, min_power, and max_power
// query parameters.
func parseSiteFilter(r *http.Request) (model.SiteFilter, error) {
	var filter model.SiteFilter
	query := r.URL.Query()

	if v := query.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.SiteFilter{}, errors.New("invalid client_id")
		}
		filter.ClientID = &id
	}

	if v := query.Get("min_power"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.SiteFilter{}, errors.New("invalid min_power")
		}
		filter.MinPower = &min
	}

	if v := query.Get("max_power"); v != "" {
		max, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.SiteFilter{}, errors.New("invalid max_power")
		}
		filter.MaxPower = &max
	}

	return filter, nil
}
