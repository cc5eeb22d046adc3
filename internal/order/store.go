package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brightthread/internal/inventory"
)

// MinOrderQuantity is the smallest total quantity an order may hold after a
// removal.
const MinOrderQuantity = 10

// MaxLineItemQuantity caps a single line item at creation.
const MaxLineItemQuantity = 500

// Store persists orders, line items, and the status history.
type Store struct {
	db     *sql.DB
	ledger *inventory.Ledger
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	total_amount REAL NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS line_items (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id),
	inventory_id TEXT NOT NULL REFERENCES inventory(id),
	quantity INTEGER NOT NULL,
	unit_price REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_items_order ON line_items(order_id);
CREATE TABLE IF NOT EXISTS order_status_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL REFERENCES orders(id),
	status TEXT NOT NULL,
	changed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_status_history_order ON order_status_history(order_id);
`

// NewStore creates the store and its schema.
func NewStore(db *sql.DB, ledger *inventory.Ledger, logger *zap.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create order schema: %w", err)
	}
	return &Store{db: db, ledger: ledger, logger: logger.Named("order")}, nil
}

// GetOrder returns the order with its line items enriched from inventory.
func (s *Store) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.getOrder(ctx, s.db, orderID)
}

func (s *Store) getOrder(ctx context.Context, q inventory.DBTX, orderID string) (Order, error) {
	var o Order
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, status, total_amount, created_at, updated_at FROM orders WHERE id = ?`,
		orderID,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT li.id, li.order_id, li.inventory_id, inv.product_id, inv.product_name,
		        inv.size, inv.color, li.quantity, li.unit_price
		 FROM line_items li
		 JOIN inventory inv ON inv.id = li.inventory_id
		 WHERE li.order_id = ?
		 ORDER BY li.id`,
		orderID)
	if err != nil {
		return Order{}, fmt.Errorf("failed to load line items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.InventoryID, &item.ProductID,
			&item.ProductName, &item.Size, &item.Color, &item.Quantity, &item.UnitPrice); err != nil {
			return Order{}, fmt.Errorf("failed to scan line item: %w", err)
		}
		o.LineItems = append(o.LineItems, item)
	}
	return o, rows.Err()
}

// NewLineItem describes a line to add at order creation.
type NewLineItem struct {
	InventoryID string
	Quantity    int
}

// CreateOrder creates an order in CREATED status, reserving inventory for
// every line item. Used by seeding and tests; the agent only mutates
// existing orders.
func (s *Store) CreateOrder(ctx context.Context, userID string, items []NewLineItem) (Order, error) {
	total := 0
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > MaxLineItemQuantity {
			return Order{}, fmt.Errorf("line item quantity %d out of range 1..%d", item.Quantity, MaxLineItemQuantity)
		}
		total += item.Quantity
	}
	if total < MinOrderQuantity {
		return Order{}, &BelowMinimumError{Minimum: MinOrderQuantity, Remaining: total}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount) VALUES (?, ?, ?, 0)`,
		orderID, userID, StatusCreated); err != nil {
		return Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range items {
		slot, err := s.ledger.ByID(ctx, tx, item.InventoryID)
		if err != nil {
			return Order{}, err
		}
		if err := s.ledger.Reserve(ctx, tx, slot.ID, item.Quantity); err != nil {
			return Order{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO line_items (id, order_id, inventory_id, quantity, unit_price)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), orderID, slot.ID, item.Quantity, slot.BasePrice); err != nil {
			return Order{}, fmt.Errorf("failed to insert line item: %w", err)
		}
	}

	if err := s.recomputeTotal(ctx, tx, orderID); err != nil {
		return Order{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status) VALUES (?, ?)`,
		orderID, StatusCreated); err != nil {
		return Order{}, fmt.Errorf("failed to record status: %w", err)
	}

	created, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("order created", zap.String("order_id", orderID),
		zap.String("user_id", userID), zap.Int("line_items", len(items)))
	return created, nil
}

// ModifyLineItem changes a line item's quantity, size, and/or color in one
// transaction. Size/color changes move the full reservation between the old
// and new inventory slots; the unit price follows the new slot's base price.
func (s *Store) ModifyLineItem(ctx context.Context, orderID, lineItemID string, newQuantity *int, newSize, newColor *string) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status.Terminal() {
		return Order{}, &ModificationNotAllowedError{Status: o.Status}
	}

	item, ok := o.FindLineItem(lineItemID, "", "", "")
	if !ok {
		return Order{}, ErrLineItemNotFound
	}

	oldSlot, err := s.ledger.ByID(ctx, tx, item.InventoryID)
	if err != nil {
		return Order{}, err
	}
	oldQuantity := item.Quantity

	needsNewSlot := newSize != nil || newColor != nil
	switch {
	case needsNewSlot:
		targetSize := oldSlot.Size
		if newSize != nil {
			targetSize = *newSize
		}
		targetColor := oldSlot.Color
		if newColor != nil {
			targetColor = *newColor
		}
		targetQuantity := oldQuantity
		if newQuantity != nil {
			targetQuantity = *newQuantity
		}

		newSlot, err := s.ledger.ByProductColorSize(ctx, tx, oldSlot.ProductID, targetColor, targetSize)
		if errors.Is(err, inventory.ErrSlotNotFound) {
			return Order{}, s.resolveSlotError(ctx, tx, oldSlot.ProductID, newSize, newColor)
		}
		if err != nil {
			return Order{}, err
		}

		// Release-then-reserve keeps available+reserved invariant across
		// both slots, and lets a same-slot "change" reuse its own stock.
		if err := s.ledger.Release(ctx, tx, oldSlot.ID, oldQuantity); err != nil {
			return Order{}, err
		}
		if err := s.ledger.Reserve(ctx, tx, newSlot.ID, targetQuantity); err != nil {
			if errors.Is(err, inventory.ErrInsufficientInventory) {
				return Order{}, s.insufficientError(ctx, tx, newSlot, targetQuantity)
			}
			return Order{}, err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE line_items SET inventory_id = ?, quantity = ?, unit_price = ? WHERE id = ?`,
			newSlot.ID, targetQuantity, newSlot.BasePrice, item.ID); err != nil {
			return Order{}, fmt.Errorf("failed to update line item: %w", err)
		}

	case newQuantity != nil:
		delta := *newQuantity - oldQuantity
		if delta > 0 {
			if err := s.ledger.Reserve(ctx, tx, oldSlot.ID, delta); err != nil {
				if errors.Is(err, inventory.ErrInsufficientInventory) {
					return Order{}, s.insufficientError(ctx, tx, oldSlot, delta)
				}
				return Order{}, err
			}
		} else if delta < 0 {
			if err := s.ledger.Release(ctx, tx, oldSlot.ID, -delta); err != nil {
				return Order{}, err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE line_items SET quantity = ? WHERE id = ?`, *newQuantity, item.ID); err != nil {
			return Order{}, fmt.Errorf("failed to update line item: %w", err)
		}

	default:
		return Order{}, fmt.Errorf("no change requested for line item %s", item.ID)
	}

	if err := s.recomputeTotal(ctx, tx, orderID); err != nil {
		return Order{}, err
	}

	updated, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("line item modified", zap.String("order_id", orderID),
		zap.String("line_item_id", item.ID))
	return updated, nil
}

// insufficientError attaches the product's better-stocked slots to the
// failure so the customer hears what is in stock. The lookup is best-effort;
// a failed one just produces the error without suggestions.
func (s *Store) insufficientError(ctx context.Context, q inventory.DBTX, slot inventory.Record, requested int) error {
	alts, err := s.ledger.Alternatives(ctx, q, slot.ProductID, requested, slot.Color, slot.Size)
	if err != nil {
		s.logger.Warn("failed to look up inventory alternatives",
			zap.String("product_id", slot.ProductID), zap.Error(err))
		alts = nil
	}
	return &InsufficientInventoryError{
		Available:    slot.AvailableQty,
		Requested:    requested,
		Alternatives: alts,
	}
}

// resolveSlotError decides whether a missing slot means an invalid size, an
// invalid color, or a combination that simply is not stocked.
func (s *Store) resolveSlotError(ctx context.Context, q inventory.DBTX, productID string, newSize, newColor *string) error {
	slots, err := s.ledger.ByProduct(ctx, q, productID)
	if err != nil {
		return err
	}

	sizes := distinct(slots, func(r inventory.Record) string { return r.Size })
	colors := distinct(slots, func(r inventory.Record) string { return r.Color })

	if newSize != nil && !containsFold(sizes, *newSize) {
		return &InvalidSizeError{Size: *newSize, Available: sizes}
	}
	if newColor != nil && !containsFold(colors, *newColor) {
		return &InvalidColorError{Color: *newColor, Available: colors}
	}
	return fmt.Errorf("requested size/color combination is not stocked: %w", inventory.ErrSlotNotFound)
}

// RemoveLineItem deletes a line item, releasing its reservation, unless the
// order would fall under MinOrderQuantity.
func (s *Store) RemoveLineItem(ctx context.Context, orderID, lineItemID string) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status.Terminal() {
		return Order{}, &ModificationNotAllowedError{Status: o.Status}
	}

	item, ok := o.FindLineItem(lineItemID, "", "", "")
	if !ok {
		return Order{}, ErrLineItemNotFound
	}

	remaining := 0
	for _, other := range o.LineItems {
		if other.ID != item.ID {
			remaining += other.Quantity
		}
	}
	if remaining < MinOrderQuantity {
		return Order{}, &BelowMinimumError{Minimum: MinOrderQuantity, Remaining: remaining}
	}

	if err := s.ledger.Release(ctx, tx, item.InventoryID, item.Quantity); err != nil {
		return Order{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE id = ?`, item.ID); err != nil {
		return Order{}, fmt.Errorf("failed to delete line item: %w", err)
	}

	if err := s.recomputeTotal(ctx, tx, orderID); err != nil {
		return Order{}, err
	}

	updated, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("line item removed", zap.String("order_id", orderID),
		zap.String("line_item_id", item.ID))
	return updated, nil
}

// recomputeTotal always sums over current line items rather than adjusting
// incrementally, so the total cannot drift.
func (s *Store) recomputeTotal(ctx context.Context, q inventory.DBTX, orderID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET total_amount = (SELECT COALESCE(SUM(unit_price * quantity), 0) FROM line_items WHERE order_id = ?),
		     updated_at = ?
		 WHERE id = ?`,
		orderID, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("failed to recompute order total: %w", err)
	}
	return nil
}

// UpdateStatus advances the order one stage along the lifecycle and records
// the change in the status history.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, next Status) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.Status.CanTransitionTo(next) {
		return Order{}, &InvalidTransitionError{From: o.Status, To: next}
	}

	if err := s.setStatus(ctx, tx, orderID, next); err != nil {
		return Order{}, err
	}

	updated, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("order status updated", zap.String("order_id", orderID),
		zap.String("from", string(o.Status)), zap.String("to", string(next)))
	return updated, nil
}

// CancelOrder moves a non-terminal order to CANCELLED and releases every
// line item's reservation.
func (s *Store) CancelOrder(ctx context.Context, orderID string) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status.Terminal() {
		return Order{}, &ModificationNotAllowedError{Status: o.Status}
	}

	for _, item := range o.LineItems {
		if err := s.ledger.Release(ctx, tx, item.InventoryID, item.Quantity); err != nil {
			return Order{}, err
		}
	}
	if err := s.setStatus(ctx, tx, orderID, StatusCancelled); err != nil {
		return Order{}, err
	}

	updated, err := s.getOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("order cancelled", zap.String("order_id", orderID))
	return updated, nil
}

func (s *Store) setStatus(ctx context.Context, q inventory.DBTX, orderID string, status Status) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), orderID); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status) VALUES (?, ?)`,
		orderID, status); err != nil {
		return fmt.Errorf("failed to record status: %w", err)
	}
	return nil
}

// StatusHistory returns the order's status changes, oldest first.
func (s *Store) StatusHistory(ctx context.Context, orderID string) ([]StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, changed_at FROM order_status_history WHERE order_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var events []StatusEvent
	for rows.Next() {
		var ev StatusEvent
		if err := rows.Scan(&ev.Status, &ev.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AvailableSizes lists the distinct sizes stocked for a product.
func (s *Store) AvailableSizes(ctx context.Context, productID string) ([]string, error) {
	slots, err := s.ledger.ByProduct(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	return distinct(slots, func(r inventory.Record) string { return r.Size }), nil
}

// AvailableColors lists the distinct colors stocked for a product.
func (s *Store) AvailableColors(ctx context.Context, productID string) ([]string, error) {
	slots, err := s.ledger.ByProduct(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	return distinct(slots, func(r inventory.Record) string { return r.Color }), nil
}

func distinct(slots []inventory.Record, key func(inventory.Record) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, slot := range slots {
		k := key(slot)
		if !seen[strings.ToLower(k)] {
			seen[strings.ToLower(k)] = true
			out = append(out, k)
		}
	}
	return out
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
