package driven

import (
	"context"

	"github.com/centroplan/pvpanel/internal/domain/model"
)

// ClientStore defines the driven port for the local client mirror.
type ClientStore interface {
	ReplaceAll(ctx context.Context, clients []model.Client) error
	ListAll(ctx context.Context) ([]model.Client, error)
}
