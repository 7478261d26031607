package postgres

import (
	"context"
	"fmt"

	"combolift/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// entityDirectory resolves display names from the entity_directory table
type entityDirectory struct {
	db *sqlx.DB
}

var _ ports.EntityDirectory = (*entityDirectory)(nil)

// NewEntityDirectory creates a directory backed by Postgres
func NewEntityDirectory(db *sqlx.DB) ports.EntityDirectory {
	return &entityDirectory{db: db}
}

// DisplayNames returns names for the ids that have one
func (d *entityDirectory) DisplayNames(ctx context.Context, kind string, ids []string) (map[string]string, error) {
	if d.db == nil || len(ids) == 0 {
		return map[string]string{}, nil
	}

	query := `SELECT entity_id, display_name FROM entity_directory WHERE entity_kind = $1 AND entity_id = ANY($2)`

	rows, err := d.db.QueryxContext(ctx, query, kind, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query display names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan display name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return names, nil
}
