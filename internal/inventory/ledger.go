// Package inventory tracks per-slot stock as an available/reserved counter
// pair. A slot is one (product, color, size) combination. Reservations move
// quantity between the two counters; nothing is ever created or destroyed by
// a modification.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrInsufficientInventory is returned when a reservation asks for more than
// the slot has available.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrSlotNotFound is returned when no inventory slot matches the lookup.
var ErrSlotNotFound = errors.New("inventory slot not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx so ledger operations can run
// inside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is one inventory slot.
type Record struct {
	ID           string
	ProductID    string
	ProductName  string
	Color        string
	Size         string
	AvailableQty int
	ReservedQty  int
	BasePrice    float64
}

// Ledger provides atomic reserve/release over inventory slots.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS inventory (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	color TEXT NOT NULL,
	size TEXT NOT NULL,
	available_qty INTEGER NOT NULL DEFAULT 0,
	reserved_qty INTEGER NOT NULL DEFAULT 0,
	base_price REAL NOT NULL DEFAULT 0,
	UNIQUE(product_id, color, size)
);
CREATE INDEX IF NOT EXISTS idx_inventory_product ON inventory(product_id);
`

// NewLedger creates the ledger and its schema.
func NewLedger(db *sql.DB, logger *zap.Logger) (*Ledger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create inventory schema: %w", err)
	}
	return &Ledger{db: db, logger: logger.Named("inventory")}, nil
}

// Reserve moves qty from available to reserved on one slot. The availability
// check and the update are a single conditional UPDATE, so two concurrent
// reservations can never oversell the slot.
func (l *Ledger) Reserve(ctx context.Context, q DBTX, slotID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE inventory
		 SET available_qty = available_qty - ?, reserved_qty = reserved_qty + ?
		 WHERE id = ? AND available_qty >= ?`,
		qty, qty, slotID, qty,
	)
	if err != nil {
		return fmt.Errorf("failed to reserve inventory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read reserve result: %w", err)
	}
	if affected == 0 {
		// Either the slot is missing or it lacks stock; disambiguate for the
		// caller's error message.
		if _, lookupErr := l.ByID(ctx, q, slotID); lookupErr != nil {
			return lookupErr
		}
		l.logger.Warn("reservation rejected, insufficient stock",
			zap.String("slot_id", slotID), zap.Int("requested", qty))
		return ErrInsufficientInventory
	}

	l.logger.Debug("reserved inventory", zap.String("slot_id", slotID), zap.Int("qty", qty))
	return nil
}

// Release moves qty back from reserved to available. Decreasing a
// reservation never fails for lack of stock.
func (l *Ledger) Release(ctx context.Context, q DBTX, slotID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE inventory
		 SET available_qty = available_qty + ?, reserved_qty = reserved_qty - ?
		 WHERE id = ?`,
		qty, qty, slotID,
	)
	if err != nil {
		return fmt.Errorf("failed to release inventory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read release result: %w", err)
	}
	if affected == 0 {
		return ErrSlotNotFound
	}

	l.logger.Debug("released inventory", zap.String("slot_id", slotID), zap.Int("qty", qty))
	return nil
}

const selectColumns = `id, product_id, product_name, color, size, available_qty, reserved_qty, base_price`

func scanRecord(row *sql.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.ProductName, &rec.Color, &rec.Size,
		&rec.AvailableQty, &rec.ReservedQty, &rec.BasePrice)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrSlotNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to scan inventory record: %w", err)
	}
	return rec, nil
}

// ByID fetches one slot.
func (l *Ledger) ByID(ctx context.Context, q DBTX, slotID string) (Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM inventory WHERE id = ?`, slotID)
	return scanRecord(row)
}

// ByProductColorSize resolves the slot for a (product, color, size) triple.
// Color and size match case-insensitively since they arrive from free text.
func (l *Ledger) ByProductColorSize(ctx context.Context, q DBTX, productID, color, size string) (Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM inventory
		 WHERE product_id = ? AND color = ? COLLATE NOCASE AND size = ? COLLATE NOCASE`,
		productID, color, size)
	return scanRecord(row)
}

// ByProduct lists every slot for a product.
func (l *Ledger) ByProduct(ctx context.Context, q DBTX, productID string) ([]Record, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM inventory WHERE product_id = ? ORDER BY size, color`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory for product %s: %w", productID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ProductName, &rec.Color, &rec.Size,
			&rec.AvailableQty, &rec.ReservedQty, &rec.BasePrice); err != nil {
			return nil, fmt.Errorf("failed to scan inventory record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Alternatives lists up to five other slots of the same product with at
// least minQty available, best-stocked first. The current selection is
// excluded.
func (l *Ledger) Alternatives(ctx context.Context, q DBTX, productID string, minQty int, excludeColor, excludeSize string) ([]Record, error) {
	records, err := l.ByProduct(ctx, q, productID)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range records {
		if strings.EqualFold(rec.Color, excludeColor) && strings.EqualFold(rec.Size, excludeSize) {
			continue
		}
		if rec.AvailableQty >= minQty {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AvailableQty > out[j].AvailableQty })
	if len(out) > 5 {
		out = out[:5]
	}
	return out, nil
}

// Insert adds a slot. Used by seeding and tests.
func (l *Ledger) Insert(ctx context.Context, q DBTX, rec Record) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO inventory (id, product_id, product_name, color, size, available_qty, reserved_qty, base_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProductID, rec.ProductName, rec.Color, rec.Size,
		rec.AvailableQty, rec.ReservedQty, rec.BasePrice,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inventory slot: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for callers running ledger reads outside
// a transaction.
func (l *Ledger) DB() DBTX {
	return l.db
}
