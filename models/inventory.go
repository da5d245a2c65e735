package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRecord holds on-hand stock per product. It is shared mutable state
// updated additively by every receipt create/update/delete, so all writes go
// through adjustInventoryOnHand under a row lock.
type InventoryRecord struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	ProductId      int             `gorm:"index;not null" json:"product_id"`
	QuantityOnHand decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_on_hand"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func firstOrCreateInventoryRecord(tx *gorm.DB, businessId string, productId int) (*InventoryRecord, bool, error) {
	isNew := false
	record := InventoryRecord{
		BusinessId: businessId,
		ProductId:  productId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		FirstOrCreate(&record)
	if result.Error != nil {
		return nil, isNew, result.Error
	}
	if result.RowsAffected == 1 {
		isNew = true
	}
	return &record, isNew, nil
}

// adjustInventoryOnHand applies a delta to on-hand stock, clamped at zero.
// The row is locked FOR UPDATE and the arithmetic runs in SQL, so concurrent
// flows never lose an increment. Clamping is a recoverable data-integrity
// condition, not an error: on-hand stock may have been independently adjusted
// since the receipt was created.
func adjustInventoryOnHand(tx *gorm.DB, businessId string, productId int, delta decimal.Decimal) ([]IntegrityWarning, error) {
	if productId <= 0 {
		return nil, nil
	}
	var warnings []IntegrityWarning

	record, isNew, err := firstOrCreateInventoryRecord(tx, businessId, productId)
	if err != nil {
		return nil, err
	}
	if isNew {
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnInventoryRecordCreated,
			Message: "no inventory record existed for the product; created one with zero on-hand base",
		})
	}
	if record.QuantityOnHand.Add(delta).IsNegative() {
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnInventoryClamped,
			Message: "inventory adjustment would drive on-hand below zero; clamped to zero",
		})
	}

	if err := tx.Exec(
		"UPDATE inventory_records SET quantity_on_hand = GREATEST(0, quantity_on_hand + ?) WHERE id = ?",
		delta, record.ID,
	).Error; err != nil {
		return nil, err
	}
	return warnings, nil
}
