// Package order owns order and line-item records, the order lifecycle, and
// the line-item mutations the support agent executes. All inventory movement
// goes through the inventory ledger inside the same transaction.
package order

import (
	"strings"
	"time"
)

// Status is an order lifecycle stage.
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusApproved     Status = "APPROVED"
	StatusInProduction Status = "IN_PRODUCTION"
	StatusReadyToShip  Status = "READY_TO_SHIP"
	StatusShipped      Status = "SHIPPED"
	StatusCancelled    Status = "CANCELLED"
	StatusReturned     Status = "RETURNED"
)

// forward lifecycle, in order; CANCELLED/RETURNED are reached only through
// explicit cancellation or return.
var lifecycle = []Status{StatusCreated, StatusApproved, StatusInProduction, StatusReadyToShip, StatusShipped}

// Terminal reports whether no further mutation of the order is possible.
func (s Status) Terminal() bool {
	return s == StatusShipped || s == StatusCancelled || s == StatusReturned
}

// CanTransitionTo reports whether s may move to next along the forward
// lifecycle.
func (s Status) CanTransitionTo(next Status) bool {
	for i, stage := range lifecycle {
		if stage == s {
			return i+1 < len(lifecycle) && lifecycle[i+1] == next
		}
	}
	return false
}

// LineItem is one order line, enriched with the names of its inventory slot.
type LineItem struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	InventoryID string  `json:"inventory_id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size"`
	Color       string  `json:"color"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Order is a customer order with its line items.
type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Status      Status     `json:"status"`
	TotalAmount float64    `json:"total_amount"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LineItems   []LineItem `json:"line_items"`
}

// FindLineItem locates a line item by id, or by the (product, size, color)
// triple when no id is given. Name matching is case-insensitive because the
// identifiers come from free text.
func (o Order) FindLineItem(lineItemID, productName, size, color string) (LineItem, bool) {
	for _, item := range o.LineItems {
		if lineItemID != "" {
			if item.ID == lineItemID {
				return item, true
			}
			continue
		}
		if strings.EqualFold(item.ProductName, productName) &&
			strings.EqualFold(item.Size, size) &&
			strings.EqualFold(item.Color, color) {
			return item, true
		}
	}
	return LineItem{}, false
}

// StatusEvent is one entry in an order's status history.
type StatusEvent struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}
