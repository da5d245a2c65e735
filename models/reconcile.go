package models

import (
	"context"
	"errors"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reconciliation core: after any mutation, derived state (materialized line
// quantities, document status, fulfillment percentage) is recomputed from
// source records inside the caller's transaction. Both functions are
// idempotent, so they are safe to call speculatively at any time.

func sumReceiptsForLine(tx *gorm.DB, lineId int) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&Receipt{}).
		Where("purchase_order_detail_id = ?", lineId).
		Select("SUM(quantity_received)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func sumInvoicedForLine(tx *gorm.DB, lineId int) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&SalesInvoiceDetail{}).
		Joins("JOIN sales_invoices ON sales_invoices.id = sales_invoice_details.sales_invoice_id").
		Where("sales_invoice_details.sales_order_detail_id = ? AND sales_invoices.current_status <> ?", lineId, SalesInvoiceStatusVoid).
		Select("SUM(sales_invoice_details.detail_qty)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// reconcilePurchaseOrderTx rewrites each line's received quantity from the
// receipts that reference it, then derives and persists the order status.
func reconcilePurchaseOrderTx(tx *gorm.DB, businessId string, orderId int) (PurchaseOrderStatus, error) {
	var order PurchaseOrder
	err := tx.Preload("Details").
		Where("business_id = ? AND id = ?", businessId, orderId).
		First(&order).Error
	if err != nil {
		return "", utils.ErrorRecordNotFound
	}

	for i := range order.Details {
		line := &order.Details[i]
		received, err := sumReceiptsForLine(tx, line.ID)
		if err != nil {
			return "", err
		}
		if !line.DetailReceivedQty.Equal(received) {
			if err := tx.Model(&PurchaseOrderDetail{}).
				Where("id = ?", line.ID).
				UpdateColumn("detail_received_qty", received).Error; err != nil {
				return "", err
			}
			line.DetailReceivedQty = received
		}
	}

	status := DerivePurchaseOrderStatus(order.CurrentStatus, order.Details)
	if status != order.CurrentStatus {
		if err := tx.Model(&order).UpdateColumn("CurrentStatus", status).Error; err != nil {
			return "", err
		}
	}
	return status, nil
}

// reconcileSalesOrderTx rewrites each line's invoiced/remaining quantities
// from non-void invoice lines, then derives and persists the order status and
// fulfillment percentage.
func reconcileSalesOrderTx(tx *gorm.DB, businessId string, orderId int) (SalesOrderStatus, error) {
	var order SalesOrder
	err := tx.Preload("Details").
		Where("business_id = ? AND id = ?", businessId, orderId).
		First(&order).Error
	if err != nil {
		return "", utils.ErrorRecordNotFound
	}

	for i := range order.Details {
		line := &order.Details[i]
		invoiced, err := sumInvoicedForLine(tx, line.ID)
		if err != nil {
			return "", err
		}
		remaining := LineRemaining(line.DetailQty, invoiced)
		fulfillment := LineFulfillmentStatus(line.DetailQty, invoiced)
		if !line.DetailInvoicedQty.Equal(invoiced) ||
			!line.DetailRemainingQty.Equal(remaining) ||
			line.FulfillmentStatus != fulfillment {
			if err := tx.Model(&SalesOrderDetail{}).
				Where("id = ?", line.ID).
				UpdateColumns(map[string]interface{}{
					"detail_invoiced_qty":  invoiced,
					"detail_remaining_qty": remaining,
					"fulfillment_status":   fulfillment,
				}).Error; err != nil {
				return "", err
			}
			line.DetailInvoicedQty = invoiced
			line.DetailRemainingQty = remaining
			line.FulfillmentStatus = fulfillment
		}
	}

	status := DeriveSalesOrderStatus(order.CurrentStatus, order.Details)

	var invoicedAmount decimal.NullDecimal
	if err := tx.Model(&SalesInvoice{}).
		Where("business_id = ? AND sales_order_id = ? AND current_status <> ?", businessId, orderId, SalesInvoiceStatusVoid).
		Select("SUM(invoice_total_amount)").
		Scan(&invoicedAmount).Error; err != nil {
		return "", err
	}
	amount := decimal.Zero
	if invoicedAmount.Valid {
		amount = invoicedAmount.Decimal
	}
	percent := FulfillmentPercent(amount, order.OrderTotalAmount)

	if status != order.CurrentStatus || percent != order.FulfillmentPercent {
		if err := tx.Model(&order).UpdateColumns(map[string]interface{}{
			"current_status":      status,
			"fulfillment_percent": percent,
		}).Error; err != nil {
			return "", err
		}
	}
	return status, nil
}

// RecomputePurchaseOrderStatus re-derives a purchase order's status from its
// receipts. Idempotent; safe to call speculatively any time.
func RecomputePurchaseOrderStatus(ctx context.Context, orderId int) (PurchaseOrderStatus, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}

	release, err := utils.ReconcileLock(ctx, "purchase_order", orderId, "reconcile.go", "RecomputePurchaseOrderStatus")
	if err != nil {
		return "", err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	status, err := reconcilePurchaseOrderTx(tx.WithContext(ctx), businessId, orderId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return "", err
		}
		return "", persistenceError("recompute purchase order status", err)
	}
	if err := tx.Commit().Error; err != nil {
		return "", persistenceError("recompute purchase order status", err)
	}
	return status, nil
}

// RecomputeSalesOrderStatus re-derives a sales order's status and fulfillment
// percentage from its invoices. Idempotent; safe to call speculatively.
func RecomputeSalesOrderStatus(ctx context.Context, orderId int) (SalesOrderStatus, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}

	release, err := utils.ReconcileLock(ctx, "sales_order", orderId, "reconcile.go", "RecomputeSalesOrderStatus")
	if err != nil {
		return "", err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	status, err := reconcileSalesOrderTx(tx.WithContext(ctx), businessId, orderId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return "", err
		}
		return "", persistenceError("recompute sales order status", err)
	}
	if err := tx.Commit().Error; err != nil {
		return "", persistenceError("recompute sales order status", err)
	}
	return status, nil
}
