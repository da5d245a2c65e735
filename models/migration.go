package models

import (
	"github.com/nexvantage/orders_backend/config"
)

// MigrateTable keeps the schema in sync with the entity structs. Called from
// main() once the database connection is up.
func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Estimate{},
		&SalesOrder{},
		&SalesOrderDetail{},
		&PurchaseOrder{},
		&PurchaseOrderDetail{},
		&Receipt{},
		&InventoryRecord{},
		&SalesInvoice{},
		&SalesInvoiceDetail{},
		&TransactionPrefix{},
		&History{},
	)
}
