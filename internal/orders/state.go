package orders

import (
	"slices"
	"time"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusDraft: {
		enums.OrderStatusHeld,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusHeld: {
		enums.OrderStatusDraft,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusCompleted: {
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPartiallyRefunded: {
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Transition moves the order to the target status and stamps the matching
// lifecycle timestamp. Illegal moves return CodeStateConflict and leave the
// order untouched.
func Transition(order *models.Order, to enums.OrderStatus, now time.Time) error {
	if err := checkTransition(order, to); err != nil {
		return err
	}

	order.Status = to
	switch to {
	case enums.OrderStatusHeld:
		order.HeldAt = &now
	case enums.OrderStatusDraft:
		order.HeldAt = nil
	case enums.OrderStatusCompleted:
		order.CompletedAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}

func checkTransition(order *models.Order, to enums.OrderStatus) error {
	if CanTransition(order.Status, to) {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to %s", order.Status, to).
		WithDetails(map[string]any{
			"from": string(order.Status),
			"to":   string(to),
		})
}

// EnsureOpen rejects mutations against finalized orders before any write.
func EnsureOpen(order *models.Order) error {
	if !order.Status.IsEditable() {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and can no longer be changed", order.Status).
			WithDetails(map[string]any{"status": string(order.Status)})
	}
	return nil
}
