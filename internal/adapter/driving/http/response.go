package httphandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/centroplan/pvpanel/internal/application"
	"github.com/centroplan/pvpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// SiteResponse is the JSON representation of a photovoltaic site.
type SiteResponse struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Code           string   `json:"code"`
	NominalPower   *float64 `json:"nominal_power"`
	Address        string   `json:"address"`
	CommissionDate *string  `json:"commission_date"`
	ClientMapID    *int64   `json:"client_map_id"`
	ClientName     string   `json:"client_name"`
}

// ClientResponse is the JSON representation of a client.
type ClientResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SyncStatusResponse is the JSON representation of the sync loop status.
type SyncStatusResponse struct {
	LastSitesSync   string `json:"last_sites_sync,omitempty"`
	LastClientsSync string `json:"last_clients_sync,omitempty"`
	SiteCount       int    `json:"site_count"`
	ClientCount     int    `json:"client_count"`
	LastError       string `json:"last_error,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// SiteRequest is the JSON body for the create and update site endpoints.
// CommissionDate is a YYYY-MM-DD date string; null clears the field.
type SiteRequest struct {
	Name           string   `json:"name"`
	Code           string   `json:"code"`
	NominalPower   *float64 `json:"nominal_power"`
	Address        string   `json:"address"`
	CommissionDate *string  `json:"commission_date"`
	ClientMapID    *int64   `json:"client_map_id"`
}

// toSiteChange converts the request body to a domain SiteChange.
func (req SiteRequest) toSiteChange() (model.SiteChange, error) {
	change := model.SiteChange{
		Name:         req.Name,
		Code:         req.Code,
		NominalPower: req.NominalPower,
		Address:      req.Address,
		ClientMapID:  req.ClientMapID,
	}

	if req.CommissionDate != nil && *req.CommissionDate != "" {
		t, err := time.Parse("2006-01-02", *req.CommissionDate)
		if err != nil {
			return model.SiteChange{}, fmt.Errorf("invalid commission_date %q: expected YYYY-MM-DD", *req.CommissionDate)
		}
		change.CommissionDate = &t
	}

	return change, nil
}

// toSiteResponse converts a domain Site to its JSON response representation,
// resolving the client name from the given map. An unassigned or unknown
// client yields an empty client_name.
func toSiteResponse(site model.Site, clientNames map[int64]string) SiteResponse {
	resp := SiteResponse{
		ID:           site.ID,
		Name:         site.Name,
		Code:         site.Code,
		NominalPower: site.NominalPower,
		Address:      site.Address,
		ClientMapID:  site.ClientMapID,
	}

	if site.CommissionDate != nil {
		formatted := site.CommissionDate.Format("2006-01-02")
		resp.CommissionDate = &formatted
	}
	if site.ClientMapID != nil {
		resp.ClientName = clientNames[*site.ClientMapID]
	}

	return resp
}

// toClientResponse converts a domain Client to its JSON representation.
func toClientResponse(client model.Client) ClientResponse {
	return ClientResponse{
		ID:   client.ID,
		Name: client.Name,
	}
}

// toSyncStatusResponse converts a sync status snapshot to its JSON representation.
func toSyncStatusResponse(status application.SyncStatus) SyncStatusResponse {
	resp := SyncStatusResponse{
		SiteCount:   status.SiteCount,
		ClientCount: status.ClientCount,
		LastError:   status.LastError,
	}

	if !status.LastSitesSync.IsZero() {
		resp.LastSitesSync = status.LastSitesSync.UTC().Format(time.RFC3339)
	}
	if !status.LastClientsSync.IsZero() {
		resp.LastClientsSync = status.LastClientsSync.UTC().Format(time.RFC3339)
	}

	return resp
}
