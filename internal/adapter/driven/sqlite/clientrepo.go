package sqlite

import (
	"context"
	"fmt"

	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ClientStore = (*ClientRepo)(nil)

// ClientRepo is the SQLite implementation of the ClientStore port interface.
type ClientRepo struct {
	db *DB
}

// NewClientRepo creates a new ClientRepo backed by the given DB.
func NewClientRepo(db *DB) *ClientRepo {
	return &ClientRepo{db: db}
}

// ReplaceAll swaps the mirrored client snapshot in a single transaction.
func (r *ClientRepo) ReplaceAll(ctx context.Context, clients []model.Client) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace clients: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clients`); err != nil {
		return fmt.Errorf("clear clients: %w", err)
	}

	const query = `INSERT INTO clients (id, name) VALUES (?, ?)`
	for _, client := range clients {
		if _, err := tx.ExecContext(ctx, query, client.ID, client.Name); err != nil {
			return fmt.Errorf("insert client %d: %w", client.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace clients: %w", err)
	}

	return nil
}

// ListAll returns all mirrored clients ordered by name.
func (r *ClientRepo) ListAll(ctx context.Context) ([]model.Client, error) {
	const query = `SELECT id, name FROM clients ORDER BY name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var client model.Client
		if err := rows.Scan(&client.ID, &client.Name); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}

	return clients, nil
}
