package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emekauja/shopflow/internal/catalog/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// GetActiveProducts returns the active products among ids. Inactive or
// unknown ids are simply absent from the result; callers treat a missing id
// as a validation failure.
func (r *Repository) GetActiveProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price_cents, regions, is_active
		FROM products
		WHERE id = ANY($1) AND is_active
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Regions, &p.Active); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}
