// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/centroplan/pvpanel/internal/adapter/driving/web/templates"
	"github.com/centroplan/pvpanel/internal/adapter/driving/web/templates/pages"
	vm "github.com/centroplan/pvpanel/internal/adapter/driving/web/viewmodel"
	"github.com/centroplan/pvpanel/internal/application"
	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// Handler is the web GUI driving adapter that serves HTML via templ components.
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

// siteFilterForm is the raw filter state from the listing page controls.
type siteFilterForm struct {
	ClientID string
	MinPower string
	MaxPower string
}

// readFilters extracts the filter controls from the query string. Values that
// do not parse are treated as unset so a mangled URL still renders the page.
func readFilters(r *http.Request) (siteFilterForm, model.SiteFilter) {
	form := siteFilterForm{
		ClientID: r.URL.Query().Get("client_id"),
		MinPower: r.URL.Query().Get("min_power"),
		MaxPower: r.URL.Query().Get("max_power"),
	}

	var filter model.SiteFilter
	if id, err := strconv.ParseInt(form.ClientID, 10, 64); err == nil {
		filter.ClientID = &id
	} else {
		form.ClientID = ""
	}
	if min, err := strconv.ParseFloat(form.MinPower, 64); err == nil {
		filter.MinPower = &min
	} else {
		form.MinPower = ""
	}
	if max, err := strconv.ParseFloat(form.MaxPower, 64); err == nil {
		filter.MaxPower = &max
	} else {
		form.MaxPower = ""
	}

	return form, filter
}

// Dashboard renders the site listing page with the active filters applied.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	form, filter := readFilters(r)

	sites, err := h.siteSvc.ListSites(r.Context(), filter)
	if err != nil {
		h.renderError(w, r, "failed to list sites", err)
		return
	}

	clients, err := h.siteSvc.ListClients(r.Context())
	if err != nil {
		h.renderError(w, r, "failed to list clients", err)
		return
	}

	page := toSitesPageViewModel(sites, clients, form, h.syncSvc.Status())
	h.render(w, r, "Sites", pages.SitesPage(page))
}

// NewSiteForm renders the empty add-site form.
func (h *Handler) NewSiteForm(w http.ResponseWriter, r *http.Request) {
	clients, err := h.siteSvc.ListClients(r.Context())
	if err != nil {
		h.renderError(w, r, "failed to list clients", err)
		return
	}

	form := newSiteFormViewModel(clients, ensureCSRFToken(w, r))
	h.render(w, r, "Add site", pages.SiteFormPage(form))
}

// CreateSite handles the add-site form submission. On success it redirects to
// the listing; on a validation error it re-renders the form with the message.
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	change, formErr := parseSiteForm(r)
	if formErr == "" {
		if _, err := h.siteSvc.CreateSite(r.Context(), change); err != nil {
			formErr = writeErrorMessage(err)
		}
	}

	if formErr != "" {
		clients, err := h.siteSvc.ListClients(r.Context())
		if err != nil {
			h.renderError(w, r, "failed to list clients", err)
			return
		}
		form := formViewModelFromRequest(r, clients, formErr)
		form.Title = "Add site"
		form.Action = "/sites/new"
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.render(w, r, "Add site", pages.SiteFormPage(form))
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// EditSiteForm renders the edit form pre-filled with the site's current data.
func (h *Handler) EditSiteForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	site, err := h.siteSvc.GetSite(r.Context(), id)
	if err != nil {
		h.renderError(w, r, "failed to get site", err)
		return
	}
	if site == nil {
		http.NotFound(w, r)
		return
	}

	clients, err := h.siteSvc.ListClients(r.Context())
	if err != nil {
		h.renderError(w, r, "failed to list clients", err)
		return
	}

	form := toSiteFormViewModel(*site, clients, ensureCSRFToken(w, r))
	h.render(w, r, "Edit site", pages.SiteFormPage(form))
}

// UpdateSite handles the edit form submission with the same PRG flow as
// CreateSite.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	change, formErr := parseSiteForm(r)
	if formErr == "" {
		if _, err := h.siteSvc.UpdateSite(r.Context(), id, change); err != nil {
			if errors.Is(err, driven.ErrSiteNotFound) {
				http.NotFound(w, r)
				return
			}
			formErr = writeErrorMessage(err)
		}
	}

	if formErr != "" {
		clients, err := h.siteSvc.ListClients(r.Context())
		if err != nil {
			h.renderError(w, r, "failed to list clients", err)
			return
		}
		form := formViewModelFromRequest(r, clients, formErr)
		form.Title = "Edit site"
		form.Action = fmt.Sprintf("/sites/%d/edit", id)
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.render(w, r, "Edit site", pages.SiteFormPage(form))
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ExportCSV streams the filtered site listing as a CSV download.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	_, filter := readFilters(r)

	sites, err := h.siteSvc.ListSites(r.Context(), filter)
	if err != nil {
		h.renderError(w, r, "failed to list sites", err)
		return
	}

	clients, err := h.siteSvc.ListClients(r.Context())
	if err != nil {
		h.renderError(w, r, "failed to list clients", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sites_pv.csv"`)

	if err := application.WriteSitesCSV(w, sites, application.ClientNameMap(clients)); err != nil {
		h.logger.Error("failed to write csv export", "error", err)
	}
}

// parseSiteForm converts the submitted form fields to a SiteChange. The
// second return value is a user-facing error message, empty when the form is
// valid. Name presence is validated by the service layer.
func parseSiteForm(r *http.Request) (model.SiteChange, string) {
	change := model.SiteChange{
		Name:    r.FormValue("name"),
		Code:    strings.TrimSpace(r.FormValue("code")),
		Address: strings.TrimSpace(r.FormValue("address")),
	}

	if v := strings.TrimSpace(r.FormValue("nominal_power")); v != "" {
		power, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.SiteChange{}, "Nominal power must be a number."
		}
		change.NominalPower = &power
	}

	if v := strings.TrimSpace(r.FormValue("commission_date")); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return model.SiteChange{}, "Commission date must be YYYY-MM-DD."
		}
		change.CommissionDate = &t
	}

	if v := r.FormValue("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.SiteChange{}, "Invalid client selection."
		}
		change.ClientMapID = &id
	}

	return change, ""
}

// formViewModelFromRequest rebuilds the form view model from the submitted
// values so the user does not lose their input on a validation error.
func formViewModelFromRequest(r *http.Request, clients []model.Client, errMsg string) vm.SiteFormViewModel {
	return vm.SiteFormViewModel{
		CSRFToken:    csrfCookieValue(r),
		Name:         r.FormValue("name"),
		Code:         r.FormValue("code"),
		Power:        r.FormValue("nominal_power"),
		Address:      r.FormValue("address"),
		Commissioned: r.FormValue("commission_date"),
		Clients:      toClientOptions(clients, r.FormValue("client_id")),
		Error:        errMsg,
	}
}

// writeErrorMessage maps a service error to a user-facing form message.
func writeErrorMessage(err error) string {
	if errors.Is(err, application.ErrNameRequired) {
		return "Site name is required."
	}
	return "Saving the site failed. Check the backend connection and try again."
}

// render wraps the page component in the layout and writes it.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, title string, content templ.Component) {
	layout := templates.Layout(title, content)
	if err := layout.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "page", title, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// renderError logs the error and returns a plain 500 page.
func (h *Handler) renderError(w http.ResponseWriter, _ *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
