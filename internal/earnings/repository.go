package earnings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one commission credit for an artist, one per design per order.
type Entry struct {
	ID        int64           `json:"id"`
	ArtistID  int64           `json:"artist_id"`
	OrderID   int64           `json:"order_id"`
	DesignID  int64           `json:"design_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Summary is an artist's aggregate view of their ledger.
type Summary struct {
	ArtistID    int64           `json:"artist_id"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	EntryCount  int             `json:"entry_count"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record credits one entry. The (order_id, design_id) pair is unique, so a
// redelivered order event is a no-op and reports inserted=false.
func (r *Repository) Record(ctx context.Context, entry *Entry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO artist_earnings_entries (artist_id, order_id, design_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, design_id) DO NOTHING
	`, entry.ArtistID, entry.OrderID, entry.DesignID, entry.Amount, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert earnings entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check insert result: %w", err)
	}
	return affected > 0, nil
}

// SummaryForArtist aggregates the ledger for one artist. An artist with no
// entries gets a zero summary, not an error.
func (r *Repository) SummaryForArtist(ctx context.Context, artistID int64) (*Summary, error) {
	summary := &Summary{ArtistID: artistID, TotalEarned: decimal.Zero}

	var total decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM artist_earnings_entries
		WHERE artist_id = $1
	`, artistID).Scan(&total, &summary.EntryCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate earnings for artist %d: %w", artistID, err)
	}
	if total.Valid {
		summary.TotalEarned = total.Decimal
	}

	return summary, nil
}

// ListForArtist returns the artist's entries, newest first.
func (r *Repository) ListForArtist(ctx context.Context, artistID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, artist_id, order_id, design_id, amount, created_at
		FROM artist_earnings_entries
		WHERE artist_id = $1
		ORDER BY created_at DESC, id DESC
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("list earnings for artist %d: %w", artistID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ArtistID, &e.OrderID, &e.DesignID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan earnings entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
