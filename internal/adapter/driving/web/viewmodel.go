package web

import (
	"fmt"
	"net/url"
	"strconv"

	vm "github.com/centroplan/pvpanel/internal/adapter/driving/web/viewmodel"
	"github.com/centroplan/pvpanel/internal/application"
	"github.com/centroplan/pvpanel/internal/domain/model"
)

const dateLayout = "2006-01-02"

// toSiteRowViewModel converts a domain Site to a table row, resolving the
// client name from the given map.
func toSiteRowViewModel(site model.Site, clientNames map[int64]string) vm.SiteRowViewModel {
	row := vm.SiteRowViewModel{
		ID:       site.ID,
		Name:     site.Name,
		Code:     site.Code,
		Address:  site.Address,
		EditPath: fmt.Sprintf("/sites/%d/edit", site.ID),
	}

	if site.NominalPower != nil {
		row.Power = strconv.FormatFloat(*site.NominalPower, 'f', -1, 64)
	}
	if site.CommissionDate != nil {
		row.Commissioned = site.CommissionDate.Format(dateLayout)
	}
	if site.ClientMapID != nil {
		row.ClientName = clientNames[*site.ClientMapID]
	}

	return row
}

// toClientOptions builds the client dropdown, marking the selected entry.
// selectedID is the raw query or form value; empty means no selection.
func toClientOptions(clients []model.Client, selectedID string) []vm.ClientOptionViewModel {
	options := make([]vm.ClientOptionViewModel, 0, len(clients))
	for _, c := range clients {
		id := strconv.FormatInt(c.ID, 10)
		options = append(options, vm.ClientOptionViewModel{
			ID:       id,
			Name:     c.Name,
			Selected: id == selectedID,
		})
	}
	return options
}

// toSitesPageViewModel assembles the full listing page: filtered rows, the
// filter state echoed back into the controls, and an export link carrying the
// same filters.
func toSitesPageViewModel(
	sites []model.Site,
	clients []model.Client,
	filters siteFilterForm,
	status application.SyncStatus,
) vm.SitesPageViewModel {
	names := application.ClientNameMap(clients)

	rows := make([]vm.SiteRowViewModel, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, toSiteRowViewModel(site, names))
	}

	page := vm.SitesPageViewModel{
		Rows:       rows,
		Clients:    toClientOptions(clients, filters.ClientID),
		MinPower:   filters.MinPower,
		MaxPower:   filters.MaxPower,
		SiteCount:  strconv.Itoa(len(sites)),
		ExportPath: exportPath(filters),
	}

	if !status.LastSitesSync.IsZero() {
		page.LastSynced = status.LastSitesSync.Format("2006-01-02 15:04 MST")
	}

	return page
}

// exportPath builds the CSV export URL preserving the active filters.
func exportPath(filters siteFilterForm) string {
	query := url.Values{}
	if filters.ClientID != "" {
		query.Set("client_id", filters.ClientID)
	}
	if filters.MinPower != "" {
		query.Set("min_power", filters.MinPower)
	}
	if filters.MaxPower != "" {
		query.Set("max_power", filters.MaxPower)
	}

	path := "/export.csv"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return path
}

// toSiteFormViewModel builds the edit form pre-filled from an existing site.
func toSiteFormViewModel(site model.Site, clients []model.Client, csrf string) vm.SiteFormViewModel {
	form := vm.SiteFormViewModel{
		Title:     "Edit site",
		Action:    fmt.Sprintf("/sites/%d/edit", site.ID),
		CSRFToken: csrf,
		Name:      site.Name,
		Code:      site.Code,
		Address:   site.Address,
	}

	if site.NominalPower != nil {
		form.Power = strconv.FormatFloat(*site.NominalPower, 'f', -1, 64)
	}
	if site.CommissionDate != nil {
		form.Commissioned = site.CommissionDate.Format(dateLayout)
	}

	selected := ""
	if site.ClientMapID != nil {
		selected = strconv.FormatInt(*site.ClientMapID, 10)
	}
	form.Clients = toClientOptions(clients, selected)

	return form
}

// newSiteFormViewModel builds an empty add form.
func newSiteFormViewModel(clients []model.Client, csrf string) vm.SiteFormViewModel {
	return vm.SiteFormViewModel{
		Title:     "Add site",
		Action:    "/sites/new",
		CSRFToken: csrf,
		Clients:   toClientOptions(clients, ""),
	}
}
