// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// SiteRowViewModel holds presentation-ready data for one row of the site table.
type SiteRowViewModel struct {
	ID           int64
	Name         string
	Code         string
	Power        string // formatted kWc, empty when unknown
	Address      string
	ClientName   string
	Commissioned string // YYYY-MM-DD, empty when unknown
	EditPath     string // computed: /sites/{id}/edit
}

// ClientOptionViewModel holds presentation data for the client filter and
// client select dropdowns.
type ClientOptionViewModel struct {
	ID       string
	Name     string
	Selected bool
}

// SitesPageViewModel holds all data needed to render the site listing page.
type SitesPageViewModel struct {
	Rows       []SiteRowViewModel
	Clients    []ClientOptionViewModel
	MinPower   string // echoed filter input, empty when unset
	MaxPower   string
	SiteCount  string
	LastSynced string // empty before the first successful sync
	ExportPath string // /export.csv with the active filters as query params
}

// SiteFormViewModel holds all data needed to render the add and edit forms.
type SiteFormViewModel struct {
	Title        string
	Action       string // POST target
	CSRFToken    string
	Name         string
	Code         string
	Power        string
	Address      string
	Commissioned string
	Clients      []ClientOptionViewModel
	Error        string // validation or backend error, empty when none
}
