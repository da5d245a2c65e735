package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt records a quantity physically received against exactly one purchase
// order line. Immutable once created except through the receiving service,
// which pairs every edit/delete with an inventory adjustment.
type Receipt struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	BusinessId            string          `gorm:"index;not null" json:"business_id"`
	PurchaseOrderDetailId int             `gorm:"index;not null" json:"purchase_order_detail_id"`
	ReceiptNumber         string          `gorm:"size:255;not null" json:"receipt_number"`
	SequenceNo            decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	ReferenceNumber       string          `gorm:"size:255;default:null" json:"reference_number"`
	QuantityReceived      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_received"`
	ReceivedDate          time.Time       `gorm:"not null" json:"received_date"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewReceipt struct {
	PurchaseOrderDetailId int             `json:"purchase_order_detail_id" binding:"required"`
	QuantityReceived      decimal.Decimal `json:"quantity_received" binding:"required"`
	ReceivedDate          time.Time       `json:"received_date" binding:"required"`
	ReferenceNumber       string          `json:"reference_number"`
}
