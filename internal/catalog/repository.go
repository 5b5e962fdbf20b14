package catalog

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// Catalog rows are reference data owned elsewhere (admin CRUD); the checkout
// core only reads them.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	IsActive  bool            `json:"is_active"`
}

// Design carries the artist's commission rate as it was at lookup time.
// Order items snapshot the computed commission so later rate changes do not
// rewrite history.
type Design struct {
	ID             int64           `json:"id"`
	ArtistID       int64           `json:"artist_id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p := &Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, base_price, is_active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.BasePrice, &p.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return p, nil
}

func (r *Repository) GetDesign(ctx context.Context, id int64) (*Design, error) {
	d := &Design{}

	err := r.db.QueryRowContext(ctx, `
		SELECT d.id, d.artist_id, d.title, d.price, a.commission_rate
		FROM designs d
		JOIN artists a ON a.id = d.artist_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.ArtistID, &d.Title, &d.Price, &d.CommissionRate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return d, nil
}
