package models

// All lists every model owned by the service, in dependency order. It backs
// AutoMigrate for sqlite runs; Postgres uses the goose migrations.
func All() []any {
	return []any{
		&Order{},
		&OrderLineItem{},
		&OrderStatusHistory{},
		&SellerOrder{},
		&SellerOrderItem{},
		&InventoryItem{},
		&InventoryLedgerEntry{},
		&Notification{},
		&ReturnRequest{},
		&Review{},
		&CartItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
