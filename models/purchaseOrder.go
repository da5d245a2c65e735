package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrder struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	SupplierId      int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderNumber     string          `gorm:"size:255;not null" json:"order_number"`
	SequenceNo      decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	ReferenceNumber string          `gorm:"size:255;default:null" json:"reference_number"`
	OrderDate       time.Time       `gorm:"not null" json:"order_date" binding:"required"`
	// Upstream sales order linkage: id-first with a legacy number fallback.
	SalesOrderId     int                   `gorm:"index;default:null" json:"sales_order_id"`
	SalesOrderNumber string                `gorm:"size:255;default:null" json:"sales_order_number"`
	CurrentStatus    PurchaseOrderStatus   `gorm:"type:enum('Pending','Confirmed','Partial','Received','Cancelled','On Hold');not null" json:"current_status"`
	OrderTotalAmount decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"order_total_amount"`
	Notes            string                `gorm:"type:text;default:null" json:"notes"`
	Details          []PurchaseOrderDetail `json:"purchase_order_details"`
	CreatedAt        time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int    `gorm:"primary_key" json:"id"`
	PurchaseOrderId int    `gorm:"index;not null" json:"purchase_order_id"`
	LineNumber      int    `gorm:"not null" json:"line_number"`
	ProductId       int    `gorm:"index;default:null" json:"product_id"`
	Name            string `gorm:"size:100" json:"name" binding:"required"`
	Description     string `gorm:"size:255;default:null" json:"description"`
	// DetailReceivedQty is a materialized view of the quantity ledger over
	// receipts; every receipt mutation rewrites it from source records.
	DetailQty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailUnitRate    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate"`
	DetailTotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_total_amount"`
	DetailReceivedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_received_qty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchaseOrder struct {
	SupplierId       int            `json:"supplier_id" binding:"required"`
	ReferenceNumber  string         `json:"reference_number"`
	OrderDate        time.Time      `json:"order_date" binding:"required"`
	SalesOrderId     int            `json:"sales_order_id"`
	SalesOrderNumber string         `json:"sales_order_number"`
	Notes            string         `json:"notes"`
	Details          []NewOrderLine `json:"details" binding:"required,dive"`
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if len(input.Details) == 0 {
		return nil, validationError("a purchase order needs at least one line")
	}
	if input.SalesOrderId > 0 {
		if err := utils.ValidateResourceId[SalesOrder](ctx, businessId, input.SalesOrderId); err != nil {
			return nil, validationError("sales order %d not found", input.SalesOrderId)
		}
	}

	var details []PurchaseOrderDetail
	var orderTotal decimal.Decimal
	for i, line := range input.Details {
		if line.DetailQty.LessThanOrEqual(decimal.Zero) {
			return nil, validationError("line %d: quantity must be greater than zero", i+1)
		}
		detail := PurchaseOrderDetail{
			LineNumber:        i + 1,
			ProductId:         line.ProductId,
			Name:              line.Name,
			Description:       line.Description,
			DetailQty:         line.DetailQty,
			DetailUnitRate:    line.DetailUnitRate,
			DetailTotalAmount: line.lineTotal(),
		}
		orderTotal = orderTotal.Add(detail.DetailTotalAmount)
		details = append(details, detail)
	}

	purchaseOrder := PurchaseOrder{
		BusinessId:       businessId,
		SupplierId:       input.SupplierId,
		ReferenceNumber:  input.ReferenceNumber,
		OrderDate:        input.OrderDate,
		SalesOrderId:     input.SalesOrderId,
		SalesOrderNumber: input.SalesOrderNumber,
		CurrentStatus:    PurchaseOrderStatusPending,
		Notes:            input.Notes,
		Details:          details,
		OrderTotalAmount: orderTotal,
	}

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	seqNo, err := utils.GetSequence[PurchaseOrder](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Purchase Order")
	if err != nil {
		return nil, err
	}
	purchaseOrder.SequenceNo = decimal.NewFromInt(seqNo)
	purchaseOrder.OrderNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		if utils.IsDuplicateEntryErr(err) {
			return nil, validationError("order number %s already exists", purchaseOrder.OrderNumber)
		}
		return nil, err
	}

	if err := createHistory(tx.WithContext(ctx), "Create", purchaseOrder.ID, "purchase_orders", nil, &purchaseOrder, "Created purchase order "+purchaseOrder.OrderNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
}

// UpdateStatusPurchaseOrder applies a manual status change (confirm, cancel,
// hold). Receiving-derived statuses come from the derivation engine only.
func UpdateStatusPurchaseOrder(ctx context.Context, id int, status PurchaseOrderStatus) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}

	if po.CurrentStatus == PurchaseOrderStatusReceived {
		return nil, errors.New("cannot update purchase order that is fully received")
	}
	if po.CurrentStatus == PurchaseOrderStatusPartial && status == PurchaseOrderStatusCancelled {
		return nil, errors.New("purchase orders with receipts cannot be cancelled")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(po).UpdateColumn("CurrentStatus", status).Error; err != nil {
		return nil, err
	}
	po.CurrentStatus = status

	if err := createHistory(tx.WithContext(ctx), "Update", id, "purchase_orders", nil, nil, "Updated current status to "+string(status)); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return po, nil
}

// DeletePurchaseOrder removes an order with no receipts against any of its
// lines. Receipts are downstream documents; they block deletion with a
// conflict rather than cascading.
func DeletePurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}

	release, err := utils.ReconcileLock(ctx, "purchase_order", id, "purchaseOrder.go", "DeletePurchaseOrder")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	var receiptCount int64
	err = tx.WithContext(ctx).Model(&Receipt{}).
		Joins("JOIN purchase_order_details ON purchase_order_details.id = receipts.purchase_order_detail_id").
		Where("purchase_order_details.purchase_order_id = ?", id).
		Count(&receiptCount).Error
	if err != nil {
		return nil, persistenceError("count linked receipts", err)
	}
	if receiptCount > 0 {
		return nil, referentialConflictError("purchase order %s has %d receipt(s) against it", po.OrderNumber, receiptCount)
	}

	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", id).
		Delete(&PurchaseOrderDetail{}).Error; err != nil {
		return nil, persistenceError("delete purchase order lines", err)
	}
	if err := tx.WithContext(ctx).Delete(po).Error; err != nil {
		return nil, persistenceError("delete purchase order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Delete", id, "purchase_orders", po, nil, "Deleted order "+po.OrderNumber); err != nil {
		return nil, persistenceError("record history", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit order delete", err)
	}
	return po, nil
}

// poDetailHasReceiptReference reports whether any receipt references the
// purchase order line. Referenced lines are never hard-deleted.
func poDetailHasReceiptReference(tx *gorm.DB, detailId int) (bool, error) {
	var count int64
	err := tx.Model(&Receipt{}).
		Where("purchase_order_detail_id = ?", detailId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
