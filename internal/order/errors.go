package order

import (
	"errors"
	"fmt"
	"strings"

	"brightthread/internal/inventory"
)

// ErrOrderNotFound is returned when no order matches the id.
var ErrOrderNotFound = errors.New("order not found")

// ErrLineItemNotFound is returned when no line item matches the lookup
// criteria.
var ErrLineItemNotFound = errors.New("line item not found")

// InvalidSizeError reports a size that is not stocked for the product, along
// with the sizes that are.
type InvalidSizeError struct {
	Size      string
	Available []string
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("Size '%s' is not available for this product. Available sizes: %s",
		e.Size, strings.Join(e.Available, ", "))
}

// InvalidColorError reports a color that is not stocked for the product,
// along with the colors that are.
type InvalidColorError struct {
	Color     string
	Available []string
}

func (e *InvalidColorError) Error() string {
	return fmt.Sprintf("Color '%s' is not available for this product. Available colors: %s",
		e.Color, strings.Join(e.Available, ", "))
}

// InsufficientInventoryError reports a reservation that exceeds the slot's
// available stock, along with other slots of the product that could cover the
// requested quantity.
type InsufficientInventoryError struct {
	Available    int
	Requested    int
	Alternatives []inventory.Record
}

func (e *InsufficientInventoryError) Error() string {
	msg := fmt.Sprintf("Insufficient inventory: %d available, %d requested", e.Available, e.Requested)
	if len(e.Alternatives) > 0 {
		var opts []string
		for _, alt := range e.Alternatives {
			opts = append(opts, fmt.Sprintf("%s %s (%d available)", alt.Size, alt.Color, alt.AvailableQty))
		}
		msg += ". In stock instead: " + strings.Join(opts, ", ")
	}
	return msg
}

func (e *InsufficientInventoryError) Unwrap() error { return inventory.ErrInsufficientInventory }

// BelowMinimumError reports a removal that would drop the order under the
// minimum total quantity.
type BelowMinimumError struct {
	Minimum   int
	Remaining int
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("Cannot remove line item. Order must have at least %d total items. Remaining after removal: %d",
		e.Minimum, e.Remaining)
}

// ModificationNotAllowedError reports a mutation attempted against an order
// in a terminal status. The policy layer normally catches this first; the
// store re-checks as defense in depth.
type ModificationNotAllowedError struct {
	Status Status
}

func (e *ModificationNotAllowedError) Error() string {
	return fmt.Sprintf("no modifications allowed in %s status", e.Status)
}

// InvalidTransitionError reports a status change outside the lifecycle.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
