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

type SalesOrder struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId      int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	OrderNumber     string          `gorm:"size:255;not null" json:"order_number"`
	SequenceNo      decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	ReferenceNumber string          `gorm:"size:255;default:null" json:"reference_number"`
	OrderDate       time.Time       `gorm:"not null" json:"order_date" binding:"required"`
	// Upstream estimate linkage: id-first with a legacy number fallback for
	// records that predate id references.
	EstimateId         int                `gorm:"index;default:null" json:"estimate_id"`
	EstimateNumber     string             `gorm:"size:255;default:null" json:"estimate_number"`
	CurrentStatus      SalesOrderStatus   `gorm:"type:enum('Pending','Confirmed','Partial','Invoiced','Cancelled','On Hold');not null" json:"current_status"`
	FulfillmentPercent int                `gorm:"default:0" json:"fulfillment_percent"`
	OrderTotalAmount   decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"order_total_amount"`
	Notes              string             `gorm:"type:text;default:null" json:"notes"`
	Details            []SalesOrderDetail `json:"sales_order_details"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalesOrderDetail struct {
	ID           int    `gorm:"primary_key" json:"id"`
	SalesOrderId int    `gorm:"index;not null" json:"sales_order_id"`
	LineNumber   int    `gorm:"not null" json:"line_number"`
	ProductId    int    `gorm:"index;default:null" json:"product_id"`
	Name         string `gorm:"size:100" json:"name" binding:"required"`
	Description  string `gorm:"size:255;default:null" json:"description"`
	// DetailInvoicedQty and DetailRemainingQty are materialized views of the
	// quantity ledger; every mutation rewrites them from source records.
	DetailQty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailUnitRate     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate"`
	DetailTotalAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_total_amount"`
	DetailInvoicedQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_invoiced_qty"`
	DetailRemainingQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_remaining_qty"`
	FulfillmentStatus  LineFulfillment `gorm:"type:enum('pending','partial','complete');default:pending" json:"fulfillment_status"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSalesOrder struct {
	CustomerId      int                  `json:"customer_id" binding:"required"`
	ReferenceNumber string               `json:"reference_number"`
	OrderDate       time.Time            `json:"order_date" binding:"required"`
	EstimateId      int                  `json:"estimate_id"`
	EstimateNumber  string               `json:"estimate_number"`
	Notes           string               `json:"notes"`
	Details         []NewOrderLine       `json:"details" binding:"required,dive"`
}

// NewOrderLine is the edited line shape shared by sales and purchase orders;
// positional identity, no ids (the reconciliation writer matches by index).
type NewOrderLine struct {
	ProductId      int             `json:"product_id"`
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	DetailQty      decimal.Decimal `json:"detail_qty" binding:"required"`
	DetailUnitRate decimal.Decimal `json:"detail_unit_rate"`
}

func (line NewOrderLine) lineTotal() decimal.Decimal {
	return line.DetailQty.Mul(line.DetailUnitRate)
}

func CreateSalesOrder(ctx context.Context, input *NewSalesOrder) (*SalesOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if len(input.Details) == 0 {
		return nil, validationError("a sales order needs at least one line")
	}

	var details []SalesOrderDetail
	var orderTotal decimal.Decimal
	for i, line := range input.Details {
		if line.DetailQty.LessThanOrEqual(decimal.Zero) {
			return nil, validationError("line %d: quantity must be greater than zero", i+1)
		}
		detail := SalesOrderDetail{
			LineNumber:         i + 1,
			ProductId:          line.ProductId,
			Name:               line.Name,
			Description:        line.Description,
			DetailQty:          line.DetailQty,
			DetailUnitRate:     line.DetailUnitRate,
			DetailTotalAmount:  line.lineTotal(),
			DetailRemainingQty: line.DetailQty,
			FulfillmentStatus:  LineFulfillmentPending,
		}
		orderTotal = orderTotal.Add(detail.DetailTotalAmount)
		details = append(details, detail)
	}

	salesOrder := SalesOrder{
		BusinessId:       businessId,
		CustomerId:       input.CustomerId,
		ReferenceNumber:  input.ReferenceNumber,
		OrderDate:        input.OrderDate,
		EstimateId:       input.EstimateId,
		EstimateNumber:   input.EstimateNumber,
		CurrentStatus:    SalesOrderStatusPending,
		Notes:            input.Notes,
		Details:          details,
		OrderTotalAmount: orderTotal,
	}

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	seqNo, err := utils.GetSequence[SalesOrder](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Sales Order")
	if err != nil {
		return nil, err
	}
	salesOrder.SequenceNo = decimal.NewFromInt(seqNo)
	salesOrder.OrderNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&salesOrder).Error; err != nil {
		if utils.IsDuplicateEntryErr(err) {
			return nil, validationError("order number %s already exists", salesOrder.OrderNumber)
		}
		return nil, err
	}

	// An order created from an estimate consumes it.
	if salesOrder.EstimateId > 0 {
		if err := tx.WithContext(ctx).Model(&Estimate{}).
			Where("business_id = ? AND id = ?", businessId, salesOrder.EstimateId).
			UpdateColumn("current_status", EstimateStatusConverted).Error; err != nil {
			return nil, err
		}
	}

	if err := createHistory(tx.WithContext(ctx), "Create", salesOrder.ID, "sales_orders", nil, &salesOrder, "Created sales order "+salesOrder.OrderNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &salesOrder, nil
}

func GetSalesOrder(ctx context.Context, id int) (*SalesOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[SalesOrder](ctx, businessId, id, "Details")
}

// UpdateStatusSalesOrder applies a manual status change (confirm, cancel,
// hold). Fulfillment-derived statuses come from the derivation engine only.
func UpdateStatusSalesOrder(ctx context.Context, id int, status SalesOrderStatus) (*SalesOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	so, err := utils.FetchModel[SalesOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}

	if so.CurrentStatus == SalesOrderStatusInvoiced {
		return nil, errors.New("cannot update sales order that is fully invoiced")
	}
	if so.CurrentStatus == SalesOrderStatusPartial && status == SalesOrderStatusCancelled {
		return nil, errors.New("sales orders with invoices cannot be cancelled")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(so).UpdateColumn("CurrentStatus", status).Error; err != nil {
		return nil, err
	}
	so.CurrentStatus = status

	if err := createHistory(tx.WithContext(ctx), "Update", id, "sales_orders", nil, nil, "Updated current status to "+string(status)); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return so, nil
}

// DeleteSalesOrder removes an order that nothing downstream references. An
// order with invoices or purchase orders linked to it stays put and the
// conflict is returned for the caller to surface.
func DeleteSalesOrder(ctx context.Context, id int) (*SalesOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	so, err := utils.FetchModel[SalesOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}

	release, err := utils.ReconcileLock(ctx, "sales_order", id, "salesOrder.go", "DeleteSalesOrder")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	var invoiceCount int64
	err = tx.WithContext(ctx).Model(&SalesInvoice{}).
		Where("business_id = ? AND (sales_order_id = ? OR ((sales_order_id = 0 OR sales_order_id IS NULL) AND sales_order_number = ?))",
			businessId, id, so.OrderNumber).
		Count(&invoiceCount).Error
	if err != nil {
		return nil, persistenceError("count linked invoices", err)
	}
	if invoiceCount > 0 {
		return nil, referentialConflictError("sales order %s has %d invoice(s) linked to it", so.OrderNumber, invoiceCount)
	}

	var poCount int64
	err = tx.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("business_id = ? AND (sales_order_id = ? OR ((sales_order_id = 0 OR sales_order_id IS NULL) AND sales_order_number = ?))",
			businessId, id, so.OrderNumber).
		Count(&poCount).Error
	if err != nil {
		return nil, persistenceError("count linked purchase orders", err)
	}
	if poCount > 0 {
		return nil, referentialConflictError("sales order %s has %d purchase order(s) linked to it", so.OrderNumber, poCount)
	}

	if err := tx.WithContext(ctx).Where("sales_order_id = ?", id).
		Delete(&SalesOrderDetail{}).Error; err != nil {
		return nil, persistenceError("delete sales order lines", err)
	}
	if err := tx.WithContext(ctx).Delete(so).Error; err != nil {
		return nil, persistenceError("delete sales order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Delete", id, "sales_orders", so, nil, "Deleted order "+so.OrderNumber); err != nil {
		return nil, persistenceError("record history", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit order delete", err)
	}
	return so, nil
}

// soDetailHasInvoiceReference reports whether any invoice line references the
// sales order line. Referenced lines are never hard-deleted.
func soDetailHasInvoiceReference(tx *gorm.DB, detailId int) (bool, error) {
	var count int64
	err := tx.Model(&SalesInvoiceDetail{}).
		Where("sales_order_detail_id = ?", detailId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
