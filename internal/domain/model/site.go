// Package model contains the domain entities mirrored from the Supabase backend.
package model

import "time"

// Site represents a photovoltaic site from the sites_mapping table.
// NominalPower is in kWc. Nullable backend columns are pointers.
type Site struct {
	ID             int64
	Name           string
	Code           string
	NominalPower   *float64
	Address        string
	CommissionDate *time.Time
	ClientMapID    *int64
	IgnoreSite     bool
}

// PowerOrZero returns the nominal power, treating a null value as 0.
// Filtering and sorting follow this convention.
func (s Site) PowerOrZero() float64 {
	if s.NominalPower == nil {
		return 0
	}
	return *s.NominalPower
}

// SiteChange carries the writable site fields for insert and update
// operations. Nil pointers mean "null" on the backend, not "leave as is":
// the edit form always submits the full set, matching how the dashboard
// saves a site.
type SiteChange struct {
	Name           string
	Code           string
	NominalPower   *float64
	Address        string
	CommissionDate *time.Time
	ClientMapID    *int64
}

// SiteFilter narrows a site listing. Nil fields are inactive.
// Power bounds are inclusive and compare null nominal power as 0.
type SiteFilter struct {
	ClientID *int64
	MinPower *float64
	MaxPower *float64
}
