package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SiteStore = (*SiteRepo)(nil)

// commissionDateLayout is how commission dates are stored in the TEXT column.
const commissionDateLayout = "2006-01-02"

// SiteRepo is the SQLite implementation of the SiteStore port interface.
type SiteRepo struct {
	db *DB
}

// NewSiteRepo creates a new SiteRepo backed by the given DB.
func NewSiteRepo(db *DB) *SiteRepo {
	return &SiteRepo{db: db}
}

// ReplaceAll swaps the mirrored site snapshot in a single transaction so
// concurrent readers see either the old or the new snapshot, never a mix.
func (r *SiteRepo) ReplaceAll(ctx context.Context, sites []model.Site) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sites: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sites`); err != nil {
		return fmt.Errorf("clear sites: %w", err)
	}

	const query = `
		INSERT INTO sites (id, name, code, nominal_power, address, commission_date, client_map_id, ignore_site)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, site := range sites {
		ignore := 0
		if site.IgnoreSite {
			ignore = 1
		}

		_, err := tx.ExecContext(ctx, query,
			site.ID, site.Name, site.Code, nullFloat(site.NominalPower), site.Address,
			nullDate(site.CommissionDate), nullInt(site.ClientMapID), ignore,
		)
		if err != nil {
			return fmt.Errorf("insert site %d: %w", site.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace sites: %w", err)
	}

	return nil
}

// List returns mirrored sites matching the filter, ordered by name. Null
// nominal power compares as 0 for the power bounds.
func (r *SiteRepo) List(ctx context.Context, filter model.SiteFilter) ([]model.Site, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, name, code, nominal_power, address, commission_date, client_map_id, ignore_site
		FROM sites
	`)

	var conds []string
	var args []any

	if filter.ClientID != nil {
		conds = append(conds, `client_map_id = ?`)
		args = append(args, *filter.ClientID)
	}
	if filter.MinPower != nil {
		conds = append(conds, `COALESCE(nominal_power, 0) >= ?`)
		args = append(args, *filter.MinPower)
	}
	if filter.MaxPower != nil {
		conds = append(conds, `COALESCE(nominal_power, 0) <= ?`)
		args = append(args, *filter.MaxPower)
	}

	if len(conds) > 0 {
		sb.WriteString(` WHERE `)
		sb.WriteString(strings.Join(conds, ` AND `))
	}
	sb.WriteString(` ORDER BY name`)

	rows, err := r.db.Reader.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, *site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	return sites, nil
}

// GetByID retrieves a mirrored site by its backend id. Returns nil, nil if
// the site does not exist.
func (r *SiteRepo) GetByID(ctx context.Context, id int64) (*model.Site, error) {
	const query = `
		SELECT id, name, code, nominal_power, address, commission_date, client_map_id, ignore_site
		FROM sites
		WHERE id = ?
	`

	site, err := scanSite(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site %d: %w", id, err)
	}

	return site, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSite(s scanner) (*model.Site, error) {
	var site model.Site
	var power sql.NullFloat64
	var commissionDate sql.NullString
	var clientMapID sql.NullInt64
	var ignore int

	err := s.Scan(&site.ID, &site.Name, &site.Code, &power, &site.Address, &commissionDate, &clientMapID, &ignore)
	if err != nil {
		return nil, err
	}

	if power.Valid {
		site.NominalPower = &power.Float64
	}
	if clientMapID.Valid {
		site.ClientMapID = &clientMapID.Int64
	}
	if commissionDate.Valid && commissionDate.String != "" {
		t, err := time.Parse(commissionDateLayout, commissionDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse commission_date: %w", err)
		}
		site.CommissionDate = &t
	}
	site.IgnoreSite = ignore != 0

	return &site, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(commissionDateLayout)
}
