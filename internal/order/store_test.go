package order

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"brightthread/internal/inventory"
	"brightthread/internal/storage"
)

type testStore struct {
	store  *Store
	ledger *inventory.Ledger
	order  Order
}

// newTestStore seeds two products and one order: 50 M navy polos at $20.00
// and 20 M white tees at $10.00 (total $1200.00).
func newTestStore(t *testing.T) *testStore {
	t.Helper()

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	ledger, err := inventory.NewLedger(db, logger)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	store, err := NewStore(db, ledger, logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	seed := []inventory.Record{
		{ID: "slot-polo-m-navy", ProductID: "prod-polo", ProductName: "Polo", Color: "navy", Size: "M", AvailableQty: 100, BasePrice: 20},
		{ID: "slot-polo-l-navy", ProductID: "prod-polo", ProductName: "Polo", Color: "navy", Size: "L", AvailableQty: 80, BasePrice: 22},
		{ID: "slot-polo-m-red", ProductID: "prod-polo", ProductName: "Polo", Color: "red", Size: "M", AvailableQty: 10, BasePrice: 20},
		{ID: "slot-tee-m-white", ProductID: "prod-tee", ProductName: "Tee", Color: "white", Size: "M", AvailableQty: 200, BasePrice: 10},
	}
	for _, rec := range seed {
		if err := ledger.Insert(ctx, ledger.DB(), rec); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}

	o, err := store.CreateOrder(ctx, "user-1", []NewLineItem{
		{InventoryID: "slot-polo-m-navy", Quantity: 50},
		{InventoryID: "slot-tee-m-white", Quantity: 20},
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	return &testStore{store: store, ledger: ledger, order: o}
}

func (ts *testStore) slot(t *testing.T, id string) inventory.Record {
	t.Helper()
	rec, err := ts.ledger.ByID(context.Background(), ts.ledger.DB(), id)
	if err != nil {
		t.Fatalf("failed to load slot %s: %v", id, err)
	}
	return rec
}

func (ts *testStore) poloItem(t *testing.T) LineItem {
	t.Helper()
	item, ok := ts.order.FindLineItem("", "Polo", "M", "navy")
	if !ok {
		t.Fatal("polo line item missing")
	}
	return item
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCreateOrderReservesAndTotals(t *testing.T) {
	ts := newTestStore(t)

	if ts.order.Status != StatusCreated {
		t.Errorf("status = %q, want CREATED", ts.order.Status)
	}
	if ts.order.TotalAmount != 1200 {
		t.Errorf("total = %.2f, want 1200.00", ts.order.TotalAmount)
	}

	polo := ts.slot(t, "slot-polo-m-navy")
	if polo.AvailableQty != 50 || polo.ReservedQty != 50 {
		t.Errorf("polo slot = %d/%d, want 50 available / 50 reserved", polo.AvailableQty, polo.ReservedQty)
	}
}

func TestCreateOrderRejectsBelowMinimumTotal(t *testing.T) {
	ts := newTestStore(t)

	_, err := ts.store.CreateOrder(context.Background(), "user-1", []NewLineItem{
		{InventoryID: "slot-polo-m-red", Quantity: 5},
	})
	var belowMin *BelowMinimumError
	if !errors.As(err, &belowMin) {
		t.Fatalf("err = %v, want BelowMinimumError", err)
	}
}

func TestModifyQuantityDecreaseReleasesDelta(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	item := ts.poloItem(t)

	updated, err := ts.store.ModifyLineItem(ctx, ts.order.ID, item.ID, intPtr(30), nil, nil)
	if err != nil {
		t.Fatalf("modify failed: %v", err)
	}

	got, _ := updated.FindLineItem(item.ID, "", "", "")
	if got.Quantity != 30 {
		t.Errorf("quantity = %d, want 30", got.Quantity)
	}
	if updated.TotalAmount != 30*20+20*10 {
		t.Errorf("total = %.2f, want 800.00", updated.TotalAmount)
	}

	slot := ts.slot(t, "slot-polo-m-navy")
	if slot.AvailableQty != 70 || slot.ReservedQty != 30 {
		t.Errorf("slot = %d/%d, want 70/30", slot.AvailableQty, slot.ReservedQty)
	}
}

func TestModifyQuantityIncreaseBeyondStockFails(t *testing.T) {
	ts := newTestStore(t)
	item := ts.poloItem(t)

	_, err := ts.store.ModifyLineItem(context.Background(), ts.order.ID, item.ID, intPtr(200), nil, nil)
	if !errors.Is(err, inventory.ErrInsufficientInventory) {
		t.Fatalf("err = %v, want ErrInsufficientInventory", err)
	}

	var insufficient *InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %T, want *InsufficientInventoryError", err)
	}
	if insufficient.Available != 50 || insufficient.Requested != 150 {
		t.Errorf("error = %d available / %d requested, want 50/150", insufficient.Available, insufficient.Requested)
	}
	// No polo slot holds 150, so there is nothing to suggest.
	if len(insufficient.Alternatives) != 0 {
		t.Errorf("alternatives = %+v, want none", insufficient.Alternatives)
	}

	// The failed attempt must not leak any reservation.
	slot := ts.slot(t, "slot-polo-m-navy")
	if slot.AvailableQty != 50 || slot.ReservedQty != 50 {
		t.Errorf("slot = %d/%d, want 50/50 untouched", slot.AvailableQty, slot.ReservedQty)
	}
}

// When another slot of the product could cover the shortfall, the error names
// it so the customer can pivot instead of calling support blind.
func TestInsufficientInventorySuggestsAlternativeSlots(t *testing.T) {
	ts := newTestStore(t)
	item := ts.poloItem(t)

	// M navy has 50 left; the extra 70 does not fit, but L navy holds 80.
	_, err := ts.store.ModifyLineItem(context.Background(), ts.order.ID, item.ID, intPtr(120), nil, nil)
	var insufficient *InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want *InsufficientInventoryError", err)
	}
	if len(insufficient.Alternatives) != 1 || insufficient.Alternatives[0].Size != "L" {
		t.Fatalf("alternatives = %+v, want the L navy slot", insufficient.Alternatives)
	}
	if !strings.Contains(insufficient.Error(), "L navy (80 available)") {
		t.Errorf("error text = %q, want the alternative named", insufficient.Error())
	}
}

func TestModifySizeMovesReservationAndRepricesLine(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	item := ts.poloItem(t)

	updated, err := ts.store.ModifyLineItem(ctx, ts.order.ID, item.ID, nil, strPtr("L"), nil)
	if err != nil {
		t.Fatalf("modify failed: %v", err)
	}

	got, _ := updated.FindLineItem(item.ID, "", "", "")
	if got.Size != "L" || got.InventoryID != "slot-polo-l-navy" {
		t.Errorf("line item = %+v, want size L on the L slot", got)
	}
	if got.UnitPrice != 22 {
		t.Errorf("unit price = %.2f, want the new slot's base price 22.00", got.UnitPrice)
	}
	if updated.TotalAmount != 50*22+20*10 {
		t.Errorf("total = %.2f, want 1300.00", updated.TotalAmount)
	}

	oldSlot := ts.slot(t, "slot-polo-m-navy")
	newSlot := ts.slot(t, "slot-polo-l-navy")
	if oldSlot.ReservedQty != 0 || oldSlot.AvailableQty != 100 {
		t.Errorf("old slot not fully released: %+v", oldSlot)
	}
	if newSlot.ReservedQty != 50 || newSlot.AvailableQty != 30 {
		t.Errorf("new slot not reserved: %+v", newSlot)
	}
}

func TestModifyColorToUnderStockedSlotFailsAtomically(t *testing.T) {
	ts := newTestStore(t)
	item := ts.poloItem(t)

	// red M has only 10 available; the released 50 from navy must roll back.
	_, err := ts.store.ModifyLineItem(context.Background(), ts.order.ID, item.ID, nil, nil, strPtr("red"))
	if !errors.Is(err, inventory.ErrInsufficientInventory) {
		t.Fatalf("err = %v, want ErrInsufficientInventory", err)
	}

	oldSlot := ts.slot(t, "slot-polo-m-navy")
	redSlot := ts.slot(t, "slot-polo-m-red")
	if oldSlot.ReservedQty != 50 || oldSlot.AvailableQty != 50 {
		t.Errorf("old slot leaked: %+v", oldSlot)
	}
	if redSlot.ReservedQty != 0 || redSlot.AvailableQty != 10 {
		t.Errorf("red slot leaked: %+v", redSlot)
	}
}

func TestModifyToInvalidSizeListsOptions(t *testing.T) {
	ts := newTestStore(t)
	item := ts.poloItem(t)

	_, err := ts.store.ModifyLineItem(context.Background(), ts.order.ID, item.ID, nil, strPtr("XXL"), nil)
	var invalidSize *InvalidSizeError
	if !errors.As(err, &invalidSize) {
		t.Fatalf("err = %v, want InvalidSizeError", err)
	}
	if invalidSize.Size != "XXL" {
		t.Errorf("size = %q, want XXL", invalidSize.Size)
	}
	if len(invalidSize.Available) != 2 {
		t.Errorf("available sizes = %v, want [M L]", invalidSize.Available)
	}
}

func TestModifyToInvalidColorListsOptions(t *testing.T) {
	ts := newTestStore(t)
	item := ts.poloItem(t)

	_, err := ts.store.ModifyLineItem(context.Background(), ts.order.ID, item.ID, nil, nil, strPtr("chartreuse"))
	var invalidColor *InvalidColorError
	if !errors.As(err, &invalidColor) {
		t.Fatalf("err = %v, want InvalidColorError", err)
	}
	if len(invalidColor.Available) != 2 {
		t.Errorf("available colors = %v, want [navy red]", invalidColor.Available)
	}
}

func TestRemoveLineItemReleasesAndRecomputes(t *testing.T) {
	ts := newTestStore(t)
	item := ts.poloItem(t)

	updated, err := ts.store.RemoveLineItem(context.Background(), ts.order.ID, item.ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(updated.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(updated.LineItems))
	}
	if updated.TotalAmount != 200 {
		t.Errorf("total = %.2f, want 200.00", updated.TotalAmount)
	}

	slot := ts.slot(t, "slot-polo-m-navy")
	if slot.AvailableQty != 100 || slot.ReservedQty != 0 {
		t.Errorf("slot = %d/%d, want 100/0", slot.AvailableQty, slot.ReservedQty)
	}
}

func TestRemoveLineItemBelowMinimumFails(t *testing.T) {
	ts := newTestStore(t)

	// Removing the 12-unit polo line would leave only a 5-unit order.
	small, err := ts.store.CreateOrder(context.Background(), "user-2", []NewLineItem{
		{InventoryID: "slot-polo-l-navy", Quantity: 12},
		{InventoryID: "slot-tee-m-white", Quantity: 5},
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	item, _ := small.FindLineItem("", "Polo", "L", "navy")

	_, err = ts.store.RemoveLineItem(context.Background(), small.ID, item.ID)
	var belowMin *BelowMinimumError
	if !errors.As(err, &belowMin) {
		t.Fatalf("err = %v, want BelowMinimumError", err)
	}
	if belowMin.Remaining != 5 {
		t.Errorf("remaining = %d, want 5", belowMin.Remaining)
	}

	got, _ := ts.store.GetOrder(context.Background(), small.ID)
	if len(got.LineItems) != 2 {
		t.Errorf("line items = %d, want 2 untouched", len(got.LineItems))
	}
}

func TestTerminalStatusBlocksMutation(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	item := ts.poloItem(t)

	for _, next := range []Status{StatusApproved, StatusInProduction, StatusReadyToShip, StatusShipped} {
		if _, err := ts.store.UpdateStatus(ctx, ts.order.ID, next); err != nil {
			t.Fatalf("failed to advance to %s: %v", next, err)
		}
	}

	_, err := ts.store.ModifyLineItem(ctx, ts.order.ID, item.ID, intPtr(30), nil, nil)
	var notAllowed *ModificationNotAllowedError
	if !errors.As(err, &notAllowed) {
		t.Fatalf("err = %v, want ModificationNotAllowedError", err)
	}
	if _, err := ts.store.RemoveLineItem(ctx, ts.order.ID, item.ID); !errors.As(err, &notAllowed) {
		t.Fatalf("remove err = %v, want ModificationNotAllowedError", err)
	}
}

func TestUpdateStatusRejectsSkippingStages(t *testing.T) {
	ts := newTestStore(t)

	_, err := ts.store.UpdateStatus(context.Background(), ts.order.ID, StatusShipped)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
}

func TestCancelOrderReleasesEverything(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	cancelled, err := ts.store.CancelOrder(ctx, ts.order.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %q, want CANCELLED", cancelled.Status)
	}

	polo := ts.slot(t, "slot-polo-m-navy")
	tee := ts.slot(t, "slot-tee-m-white")
	if polo.ReservedQty != 0 || tee.ReservedQty != 0 {
		t.Errorf("reservations not released: polo %d, tee %d", polo.ReservedQty, tee.ReservedQty)
	}

	// Cancelled is terminal.
	if _, err := ts.store.CancelOrder(ctx, ts.order.ID); err == nil {
		t.Fatal("expected cancelling a cancelled order to fail")
	}
}

func TestStatusHistoryRecordsEveryTransition(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	if _, err := ts.store.UpdateStatus(ctx, ts.order.ID, StatusApproved); err != nil {
		t.Fatalf("failed to advance: %v", err)
	}

	events, err := ts.store.StatusHistory(ctx, ts.order.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(events) != 2 || events[0].Status != StatusCreated || events[1].Status != StatusApproved {
		t.Errorf("history = %+v, want CREATED then APPROVED", events)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	ts := newTestStore(t)
	_, err := ts.store.GetOrder(context.Background(), "order-nope")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}
