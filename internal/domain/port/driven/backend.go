// Package driven defines the driven ports (outbound dependencies) of the
// application core, implemented by the supabase and sqlite adapters.
package driven

import (
	"context"
	"errors"

	"github.com/centroplan/pvpanel/internal/domain/model"
)

// ErrSiteNotFound indicates the requested site does not exist on the backend
// or in the local mirror.
var ErrSiteNotFound = errors.New("site not found")

// Backend is the hosted data backend (Supabase/PostgREST). Its internal
// design is outside this repository's responsibility; the port exposes only
// the operations the dashboard performs.
//
// FetchSites returns non-ignored sites ordered by name. UpdateSite returns
// ErrSiteNotFound when no row matches the id.
type Backend interface {
	FetchSites(ctx context.Context) ([]model.Site, error)
	FetchClients(ctx context.Context) ([]model.Client, error)
	InsertSite(ctx context.Context, change model.SiteChange) (*model.Site, error)
	UpdateSite(ctx context.Context, id int64, change model.SiteChange) (*model.Site, error)
}
