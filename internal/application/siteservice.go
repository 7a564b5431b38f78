package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// ErrNameRequired indicates a create or update with an empty site name.
var ErrNameRequired = errors.New("site name is required")

// SiteService implements the dashboard's site use cases: reads come from the
// local mirror, writes go to the backend and then refresh the mirror.
type SiteService struct {
	backend     driven.Backend
	siteStore   driven.SiteStore
	clientStore driven.ClientStore
	sync        *SyncService
}

// NewSiteService creates a SiteService with all required dependencies.
func NewSiteService(
	backend driven.Backend,
	siteStore driven.SiteStore,
	clientStore driven.ClientStore,
	sync *SyncService,
) *SiteService {
	return &SiteService{
		backend:     backend,
		siteStore:   siteStore,
		clientStore: clientStore,
		sync:        sync,
	}
}

// ListSites returns mirrored sites matching the filter, ordered by name.
func (s *SiteService) ListSites(ctx context.Context, filter model.SiteFilter) ([]model.Site, error) {
	return s.siteStore.List(ctx, filter)
}

// GetSite returns a mirrored site by id, or nil if it does not exist.
func (s *SiteService) GetSite(ctx context.Context, id int64) (*model.Site, error) {
	return s.siteStore.GetByID(ctx, id)
}

// ListClients returns all mirrored clients, ordered by name.
func (s *SiteService) ListClients(ctx context.Context) ([]model.Client, error) {
	return s.clientStore.ListAll(ctx)
}

// CreateSite validates the change, inserts the site on the backend, and
// refreshes the mirror so the new site is immediately visible. The name is
// the only required field.
func (s *SiteService) CreateSite(ctx context.Context, change model.SiteChange) (*model.Site, error) {
	change.Name = strings.TrimSpace(change.Name)
	if change.Name == "" {
		return nil, ErrNameRequired
	}

	site, err := s.backend.InsertSite(ctx, change)
	if err != nil {
		return nil, err
	}

	s.refreshAfterWrite(ctx, "create", site.ID)
	return site, nil
}

// UpdateSite validates the change, updates the site on the backend, and
// refreshes the mirror. Returns driven.ErrSiteNotFound when the id matches
// no backend row.
func (s *SiteService) UpdateSite(ctx context.Context, id int64, change model.SiteChange) (*model.Site, error) {
	change.Name = strings.TrimSpace(change.Name)
	if change.Name == "" {
		return nil, ErrNameRequired
	}

	site, err := s.backend.UpdateSite(ctx, id, change)
	if err != nil {
		return nil, err
	}

	s.refreshAfterWrite(ctx, "update", id)
	return site, nil
}

// refreshAfterWrite refreshes the mirror after a successful backend write.
// The write already succeeded, so a refresh failure is logged rather than
// returned; the interval sync will catch the mirror up.
func (s *SiteService) refreshAfterWrite(ctx context.Context, op string, siteID int64) {
	if s.sync == nil {
		return
	}
	if err := s.sync.RefreshSites(ctx); err != nil {
		slog.Error("mirror refresh after write failed", "op", op, "site", siteID, "error", err)
	}
}

// ClientNameMap indexes clients by id for resolving Site.ClientMapID.
func ClientNameMap(clients []model.Client) map[int64]string {
	names := make(map[int64]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	return names
}
