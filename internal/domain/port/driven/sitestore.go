package driven

import (
	"context"

	"github.com/centroplan/pvpanel/internal/domain/model"
)

// SiteStore defines the driven port for the local site mirror.
// ReplaceAll swaps the full snapshot atomically so readers never observe a
// partially synced mirror. GetByID returns nil, nil when the site does not
// exist.
type SiteStore interface {
	ReplaceAll(ctx context.Context, sites []model.Site) error
	List(ctx context.Context, filter model.SiteFilter) ([]model.Site, error)
	GetByID(ctx context.Context, id int64) (*model.Site, error)
}
