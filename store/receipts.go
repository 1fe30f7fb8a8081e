package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	pse "github.com/PurgeGame/purge-settlement-engine"
	"github.com/PurgeGame/purge-settlement-engine/identity"
)

const (
	ReceiptPaid    = "paid"
	ReceiptPending = "pending"
)

// Receipt records one settled claim for reconciliation with the treasury.
// Status is "pending" when the engine committed the claim but the treasury
// payout did not confirm.
type Receipt struct {
	ID        string      `json:"id"`
	Level     uint32      `json:"level"`
	Identity  identity.ID `json:"identity"`
	Amount    uint64      `json:"amount"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ReceiptStore persists claim receipts to Postgres when DATABASE_URL is
// configured; without it the store is disabled and writes are no-ops.
type ReceiptStore struct {
	db *sql.DB
}

func NewReceiptStore() (*ReceiptStore, error) {
	db, err := pse.GetDB()
	if err != nil {
		return nil, err
	}
	return &ReceiptStore{db: db}, nil
}

func (rs *ReceiptStore) Enabled() bool { return rs != nil && rs.db != nil }

// EnsureSchema creates the receipts table when persistence is enabled.
func (rs *ReceiptStore) EnsureSchema(ctx context.Context) error {
	if !rs.Enabled() {
		return nil
	}
	_, err := rs.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS claim_receipts (
			id TEXT PRIMARY KEY,
			level BIGINT NOT NULL,
			identity TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// Append inserts a receipt, assigning an ID and timestamp when absent. The
// filled receipt comes back even with persistence disabled so responses can
// always carry a receipt ID.
func (rs *ReceiptStore) Append(ctx context.Context, r Receipt) (Receipt, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if !rs.Enabled() {
		return r, nil
	}
	_, err := rs.db.ExecContext(ctx,
		`INSERT INTO claim_receipts (id, level, identity, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, int64(r.Level), r.Identity.String(), int64(r.Amount), r.Status, r.CreatedAt)
	return r, err
}

// ByLevel returns a level's receipts, newest first.
func (rs *ReceiptStore) ByLevel(ctx context.Context, level uint32) ([]Receipt, error) {
	if !rs.Enabled() {
		return nil, nil
	}
	rows, err := rs.db.QueryContext(ctx,
		`SELECT id, level, identity, amount, status, created_at
		 FROM claim_receipts WHERE level = $1 ORDER BY created_at DESC`,
		int64(level))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var (
			r      Receipt
			lv     int64
			amount int64
		)
		if err := rows.Scan(&r.ID, &lv, &r.Identity, &amount, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Level = uint32(lv)
		r.Amount = uint64(amount)
		out = append(out, r)
	}
	return out, rows.Err()
}
