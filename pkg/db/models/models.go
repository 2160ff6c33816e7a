package models

// All returns every model the engine persists, in dependency order.
// Used by dev auto-migration and by in-memory test databases.
func All() []any {
	return []any{
		&TenantSettings{},
		&Order{},
		&OrderStatusTransition{},
		&PaymentTransaction{},
		&Wallet{},
		&WalletTransaction{},
		&OrderClearance{},
		&PendingDeduction{},
		&Complaint{},
		&Withdrawal{},
		&OutboxEvent{},
	}
}
