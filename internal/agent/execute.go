package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"brightthread/internal/order"
	"brightthread/internal/session"
	"brightthread/internal/understanding"
)

// execute applies the pending modification to the order. It runs exactly once
// per pending modification: success marks it EXECUTED and any failure marks
// it CANCELLED, so a repeated confirmation can never re-apply it.
func (a *Agent) execute(ctx context.Context, st *session.State) string {
	mod := st.PendingModification
	if mod == nil {
		return msgNothingPending
	}

	o, err := a.currentOrder(ctx, st)
	if err != nil {
		a.logger.Error("order fetch failed during execution",
			zap.String("session_id", st.SessionID),
			zap.String("order_id", st.OrderID),
			zap.Error(err))
		st.ClearPending(session.ModificationCancelled)
		return fmt.Sprintf("Something went wrong while applying your change, and it has not been made. "+
			"Please try again or contact our customer service team at %s.", supportPhone)
	}

	prev, ok := o.FindLineItem(mod.LineItemID, mod.ProductName, mod.SizeName, mod.ColorName)
	if !ok {
		a.logger.Warn("pending modification no longer matches a line item",
			zap.String("session_id", st.SessionID),
			zap.String("order_id", st.OrderID),
			zap.String("product", mod.ProductName))
		st.ClearPending(session.ModificationCancelled)
		return fmt.Sprintf("I couldn't find a %s %s %s line item on your order anymore, so nothing was changed. "+
			"Could you check the order details and try again?",
			mod.SizeName, mod.ColorName, mod.ProductName)
	}

	var updated order.Order
	if mod.Action == understanding.ActionRemoveItem {
		updated, err = a.orders.RemoveLineItem(ctx, st.OrderID, prev.ID)
	} else {
		updated, err = a.orders.ModifyLineItem(ctx, st.OrderID, prev.ID, mod.NewQuantity, mod.NewSize, mod.NewColor)
	}
	if err != nil {
		a.logger.Warn("modification execution failed",
			zap.String("session_id", st.SessionID),
			zap.String("order_id", st.OrderID),
			zap.String("line_item_id", prev.ID),
			zap.Error(err))
		st.ClearPending(session.ModificationCancelled)
		executionsTotal.WithLabelValues("failed").Inc()
		return executionFailureMessage(err)
	}

	a.logger.Info("modification executed",
		zap.String("session_id", st.SessionID),
		zap.String("order_id", st.OrderID),
		zap.String("modification_id", st.PendingModificationID),
		zap.String("line_item_id", prev.ID),
		zap.Float64("new_total", updated.TotalAmount))

	st.OrderDetails = &updated
	st.ClearPending(session.ModificationExecuted)
	executionsTotal.WithLabelValues("executed").Inc()
	return successMessage(mod, prev)
}
