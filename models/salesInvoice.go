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
	"gorm.io/gorm/clause"
)

type SalesInvoice struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId int    `gorm:"index;not null" json:"customer_id" binding:"required"`
	// Upstream sales order linkage: id-first with a legacy number fallback.
	SalesOrderId       int                  `gorm:"index;default:null" json:"sales_order_id"`
	SalesOrderNumber   string               `gorm:"size:255;default:null" json:"sales_order_number"`
	InvoiceNumber      string               `gorm:"size:255;not null" json:"invoice_number"`
	SequenceNo         decimal.Decimal      `gorm:"type:decimal(15);not null" json:"sequence_no"`
	InvoiceDate        time.Time            `gorm:"not null" json:"invoice_date" binding:"required"`
	CurrentStatus      SalesInvoiceStatus   `gorm:"type:enum('Draft','Confirmed','Paid','Void');not null" json:"current_status"`
	InvoiceTotalAmount decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"invoice_total_amount"`
	Details            []SalesInvoiceDetail `json:"sales_invoice_details"`
	CreatedAt          time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalesInvoiceDetail struct {
	ID             int `gorm:"primary_key" json:"id"`
	SalesInvoiceId int `gorm:"index;not null" json:"sales_invoice_id"`
	// SalesOrderDetailId is the downstream reference that blocks deletion of
	// the sales order line it points at.
	SalesOrderDetailId int             `gorm:"index;default:null" json:"sales_order_detail_id"`
	ProductId          int             `gorm:"index;default:null" json:"product_id"`
	Name               string          `gorm:"size:100" json:"name" binding:"required"`
	DetailQty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailUnitRate     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate"`
	DetailTotalAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_total_amount"`
}

type NewSalesInvoice struct {
	CustomerId       int                     `json:"customer_id" binding:"required"`
	SalesOrderId     int                     `json:"sales_order_id"`
	SalesOrderNumber string                  `json:"sales_order_number"`
	InvoiceDate      time.Time               `json:"invoice_date" binding:"required"`
	Details          []NewSalesInvoiceDetail `json:"details" binding:"required,dive"`
}

type NewSalesInvoiceDetail struct {
	SalesOrderDetailId int             `json:"sales_order_detail_id"`
	ProductId          int             `json:"product_id"`
	Name               string          `json:"name" binding:"required"`
	DetailQty          decimal.Decimal `json:"detail_qty" binding:"required"`
	DetailUnitRate     decimal.Decimal `json:"detail_unit_rate"`
}

// CreateSalesInvoice stores the invoice and, when it is linked to a sales
// order, consumes invoiced quantity on the referenced order lines and
// re-derives the order's status and fulfillment percentage in the same
// transaction.
func CreateSalesInvoice(ctx context.Context, input *NewSalesInvoice) (*SalesInvoice, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if len(input.Details) == 0 {
		return nil, validationError("an invoice needs at least one line")
	}
	if input.SalesOrderId > 0 {
		if err := utils.ValidateResourceId[SalesOrder](ctx, businessId, input.SalesOrderId); err != nil {
			return nil, validationError("sales order %d not found", input.SalesOrderId)
		}
	}

	var details []SalesInvoiceDetail
	var invoiceTotal decimal.Decimal
	for i, line := range input.Details {
		if line.DetailQty.LessThanOrEqual(decimal.Zero) {
			return nil, validationError("line %d: quantity must be greater than zero", i+1)
		}
		detail := SalesInvoiceDetail{
			SalesOrderDetailId: line.SalesOrderDetailId,
			ProductId:          line.ProductId,
			Name:               line.Name,
			DetailQty:          line.DetailQty,
			DetailUnitRate:     line.DetailUnitRate,
			DetailTotalAmount:  line.DetailQty.Mul(line.DetailUnitRate),
		}
		invoiceTotal = invoiceTotal.Add(detail.DetailTotalAmount)
		details = append(details, detail)
	}

	invoice := SalesInvoice{
		BusinessId:         businessId,
		CustomerId:         input.CustomerId,
		SalesOrderId:       input.SalesOrderId,
		SalesOrderNumber:   input.SalesOrderNumber,
		InvoiceDate:        input.InvoiceDate,
		CurrentStatus:      SalesInvoiceStatusConfirmed,
		InvoiceTotalAmount: invoiceTotal,
		Details:            details,
	}

	if invoice.SalesOrderId > 0 {
		release, err := utils.ReconcileLock(ctx, "sales_order", invoice.SalesOrderId, "salesInvoice.go", "CreateSalesInvoice")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	seqNo, err := utils.GetSequence[SalesInvoice](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Sales Invoice")
	if err != nil {
		return nil, err
	}
	invoice.SequenceNo = decimal.NewFromInt(seqNo)
	invoice.InvoiceNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}

	if invoice.SalesOrderId > 0 {
		for _, detail := range invoice.Details {
			if err := consumeSoDetailInvoicedQty(tx.WithContext(ctx), invoice.SalesOrderId, detail, decimal.Zero, "create"); err != nil {
				return nil, err
			}
		}
		if _, err := reconcileSalesOrderTx(tx.WithContext(ctx), businessId, invoice.SalesOrderId); err != nil {
			return nil, err
		}
	}

	if err := createHistory(tx.WithContext(ctx), "Create", invoice.ID, "sales_invoices", nil, &invoice, "Created invoice "+invoice.InvoiceNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// DeleteSalesInvoice removes the invoice and releases the consumed quantities
// on the linked sales order, which may regress the order's derived status.
func DeleteSalesInvoice(ctx context.Context, id int) (*SalesInvoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	invoice, err := utils.FetchModel[SalesInvoice](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}
	if invoice.CurrentStatus == SalesInvoiceStatusPaid {
		return nil, errors.New("cannot delete a paid invoice")
	}

	if invoice.SalesOrderId > 0 {
		release, err := utils.ReconcileLock(ctx, "sales_order", invoice.SalesOrderId, "salesInvoice.go", "DeleteSalesInvoice")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if invoice.SalesOrderId > 0 {
		for _, detail := range invoice.Details {
			if err := consumeSoDetailInvoicedQty(tx.WithContext(ctx), invoice.SalesOrderId, detail, decimal.Zero, "delete"); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.WithContext(ctx).Model(invoice).Association("Details").Unscoped().Clear(); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(invoice).Error; err != nil {
		return nil, err
	}

	if invoice.SalesOrderId > 0 {
		if _, err := reconcileSalesOrderTx(tx.WithContext(ctx), businessId, invoice.SalesOrderId); err != nil {
			return nil, err
		}
	}

	if err := createHistory(tx.WithContext(ctx), "Delete", id, "sales_invoices", invoice, nil, "Deleted invoice "+invoice.InvoiceNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

// consumeSoDetailInvoicedQty moves invoiced quantity on a sales order line for
// an invoice line create/update/delete, keeping the materialized columns equal
// to the ledger. Over-consumption is rejected before any write.
func consumeSoDetailInvoicedQty(tx *gorm.DB, salesOrderId int, invoiceItem SalesInvoiceDetail, oldQty decimal.Decimal, action string) error {
	if invoiceItem.SalesOrderDetailId <= 0 {
		return nil
	}

	var soDetail SalesOrderDetail
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND sales_order_id = ?", invoiceItem.SalesOrderDetailId, salesOrderId).
		First(&soDetail).Error
	if err != nil {
		// The invoice points at a line that no longer exists; ledger ignores
		// it, callers surface the dangling reference.
		return validationError("sales order line %d not found", invoiceItem.SalesOrderDetailId)
	}

	switch action {
	case "create":
		if invoiceItem.DetailQty.GreaterThan(soDetail.DetailQty.Sub(soDetail.DetailInvoicedQty)) {
			return validationError("invoice qty exceeds remaining qty on order line %d", soDetail.ID)
		}
		soDetail.DetailInvoicedQty = soDetail.DetailInvoicedQty.Add(invoiceItem.DetailQty)
	case "update":
		if invoiceItem.DetailQty.GreaterThan(soDetail.DetailQty.Sub(soDetail.DetailInvoicedQty.Sub(oldQty))) {
			return validationError("invoice qty exceeds remaining qty on order line %d", soDetail.ID)
		}
		soDetail.DetailInvoicedQty = soDetail.DetailInvoicedQty.Add(invoiceItem.DetailQty.Sub(oldQty))
	case "delete":
		soDetail.DetailInvoicedQty = soDetail.DetailInvoicedQty.Sub(invoiceItem.DetailQty)
		if soDetail.DetailInvoicedQty.IsNegative() {
			soDetail.DetailInvoicedQty = decimal.Zero
		}
	}

	soDetail.DetailRemainingQty = LineRemaining(soDetail.DetailQty, soDetail.DetailInvoicedQty)
	soDetail.FulfillmentStatus = LineFulfillmentStatus(soDetail.DetailQty, soDetail.DetailInvoicedQty)

	if err := tx.Save(&soDetail).Error; err != nil {
		return err
	}
	return nil
}
