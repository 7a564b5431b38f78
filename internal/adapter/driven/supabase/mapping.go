package supabase

import (
	"fmt"
	"time"

	"github.com/centroplan/pvpanel/internal/domain/model"
)

// commissionDateLayout is the PostgREST wire format for date columns.
const commissionDateLayout = "2006-01-02"

// siteRecord is the sites_mapping wire representation. Nullable columns are
// pointers so null and zero stay distinguishable.
type siteRecord struct {
	ID             int64    `json:"id"`
	Name           *string  `json:"name"`
	Code           *string  `json:"code"`
	NominalPower   *float64 `json:"nominal_power"`
	Address        *string  `json:"address"`
	CommissionDate *string  `json:"commission_date"`
	ClientMapID    *int64   `json:"client_map_id"`
	IgnoreSite     *bool    `json:"ignore_site"`
}

// clientRecord is the clients_mapping wire representation.
type clientRecord struct {
	ID   int64   `json:"id"`
	Name *string `json:"name"`
}

// changeRecord is the write payload for inserts and updates. The id is
// assigned by the backend and ignore_site is not exposed by the dashboard,
// so neither appears here.
type changeRecord struct {
	Name           string   `json:"name"`
	Code           *string  `json:"code"`
	NominalPower   *float64 `json:"nominal_power"`
	Address        *string  `json:"address"`
	CommissionDate *string  `json:"commission_date"`
	ClientMapID    *int64   `json:"client_map_id"`
}

// mapSite converts a wire record to a domain Site.
func mapSite(rec siteRecord) (model.Site, error) {
	site := model.Site{
		ID:           rec.ID,
		Name:         deref(rec.Name),
		Code:         deref(rec.Code),
		NominalPower: rec.NominalPower,
		Address:      deref(rec.Address),
		ClientMapID:  rec.ClientMapID,
	}

	if rec.IgnoreSite != nil {
		site.IgnoreSite = *rec.IgnoreSite
	}

	if rec.CommissionDate != nil && *rec.CommissionDate != "" {
		t, err := time.Parse(commissionDateLayout, *rec.CommissionDate)
		if err != nil {
			return model.Site{}, fmt.Errorf("parse commission_date %q: %w", *rec.CommissionDate, err)
		}
		site.CommissionDate = &t
	}

	return site, nil
}

// mapClient converts a wire record to a domain Client.
func mapClient(rec clientRecord) model.Client {
	return model.Client{
		ID:   rec.ID,
		Name: deref(rec.Name),
	}
}

// toChangeRecord converts a domain SiteChange to its write payload. Empty
// optional strings are stored as null, matching how the dashboard has always
// written these columns.
func toChangeRecord(change model.SiteChange) changeRecord {
	rec := changeRecord{
		Name:         change.Name,
		NominalPower: change.NominalPower,
		ClientMapID:  change.ClientMapID,
	}

	if change.Code != "" {
		rec.Code = &change.Code
	}
	if change.Address != "" {
		rec.Address = &change.Address
	}
	if change.CommissionDate != nil {
		formatted := change.CommissionDate.Format(commissionDateLayout)
		rec.CommissionDate = &formatted
	}

	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
