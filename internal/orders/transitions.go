package orders

import (
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
)

// allowedTransitions is the status machine as data: current status to the
// set of statuses a non-override caller may request next. The branch out
// of ready depends on the order's delivery method and is resolved in
// AllowedNext.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusPaymentFailed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusPreparing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPreparing: {
		enums.OrderStatusReady,
	},
	enums.OrderStatusReady: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusReadyForPickup,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
	},
	enums.OrderStatusReadyForPickup: {
		enums.OrderStatusPickedUp,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusCompleted,
	},
	enums.OrderStatusPickedUp: {
		enums.OrderStatusCompleted,
	},
	enums.OrderStatusPaymentFailed: {
		enums.OrderStatusPendingPayment,
	},
}

// AllowedNext returns the statuses the order may move to without an override.
func AllowedNext(order *models.Order) []enums.OrderStatus {
	candidates := allowedTransitions[order.Status]
	if order.Status != enums.OrderStatusReady {
		return candidates
	}

	// The ready branch follows the order's delivery method.
	branch := enums.OrderStatusOutForDelivery
	if order.DeliveryMethod == enums.DeliveryMethodPickup {
		branch = enums.OrderStatusReadyForPickup
	}
	return []enums.OrderStatus{branch}
}

// CanTransition reports whether the order may move to the requested status
// without an override.
func CanTransition(order *models.Order, to enums.OrderStatus) bool {
	for _, candidate := range AllowedNext(order) {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether the order may still be cancelled: only before
// preparation starts.
func CanCancel(order *models.Order) bool {
	switch order.Status {
	case enums.OrderStatusPendingPayment, enums.OrderStatusPaid, enums.OrderStatusConfirmed:
		return true
	default:
		return false
	}
}
