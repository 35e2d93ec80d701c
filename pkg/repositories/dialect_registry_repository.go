// Package repositories provides data access for the registry database.
package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lineagraph/lineage-engine/pkg/database"
	"github.com/lineagraph/lineage-engine/pkg/models"
)

// DialectRegistryRepository reads the dialect registry. The registry is
// read-mostly; writes happen through operator tooling outside this engine.
type DialectRegistryRepository interface {
	List(ctx context.Context) ([]*models.Dialect, error)
	GetByID(ctx context.Context, id string) (*models.Dialect, error)
	GetDefault(ctx context.Context) (*models.Dialect, error)
}

type dialectRegistryRepository struct {
	db *database.DB
}

// NewDialectRegistryRepository creates a new DialectRegistryRepository.
func NewDialectRegistryRepository(db *database.DB) DialectRegistryRepository {
	return &dialectRegistryRepository{db: db}
}

var _ DialectRegistryRepository = (*dialectRegistryRepository)(nil)

func (r *dialectRegistryRepository) List(ctx context.Context) ([]*models.Dialect, error) {
	query := `
		SELECT id, display_name, parser_dialect_key, enabled, is_default
		FROM lineage_dialects
		ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dialects: %w", err)
	}
	defer rows.Close()

	var dialects []*models.Dialect
	for rows.Next() {
		d, err := scanDialect(rows)
		if err != nil {
			return nil, err
		}
		dialects = append(dialects, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dialects: %w", err)
	}

	return dialects, nil
}

func (r *dialectRegistryRepository) GetByID(ctx context.Context, id string) (*models.Dialect, error) {
	query := `
		SELECT id, display_name, parser_dialect_key, enabled, is_default
		FROM lineage_dialects
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	d, err := scanDialect(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	return d, nil
}

func (r *dialectRegistryRepository) GetDefault(ctx context.Context) (*models.Dialect, error) {
	query := `
		SELECT id, display_name, parser_dialect_key, enabled, is_default
		FROM lineage_dialects
		WHERE is_default = true AND enabled = true
		LIMIT 1`

	row := r.db.QueryRow(ctx, query)
	d, err := scanDialect(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return d, nil
}

func scanDialect(row pgx.Row) (*models.Dialect, error) {
	var d models.Dialect

	err := row.Scan(&d.ID, &d.DisplayName, &d.ParserKey, &d.Enabled, &d.IsDefault)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dialect: %w", err)
	}

	return &d, nil
}
