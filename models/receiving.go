package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// Receiving reconciliation service: the only component that mutates physical
// stock. Each operation runs as one transaction serialized per purchase order
// (Redis lock), pairing the receipt mutation with the inventory adjustment and
// the status re-derivation. A failure partway rolls everything back and is
// reported as a persistence failure.

// ReceiptResult is the outcome of a receiving operation: the affected receipt
// (nil after delete), the re-derived order status, and any non-fatal
// data-integrity conditions encountered along the way.
type ReceiptResult struct {
	Receipt     *Receipt            `json:"receipt,omitempty"`
	OrderStatus PurchaseOrderStatus `json:"order_status"`
	Warnings    []IntegrityWarning  `json:"warnings,omitempty"`
}

// receivingTarget resolves a purchase order line to its owning order, scoped
// to the caller's business.
func receivingTarget(ctx context.Context, businessId string, lineId int) (*PurchaseOrderDetail, *PurchaseOrder, error) {
	db := config.GetDB()

	var line PurchaseOrderDetail
	if err := db.WithContext(ctx).First(&line, lineId).Error; err != nil {
		return nil, nil, utils.ErrorRecordNotFound
	}
	var order PurchaseOrder
	if err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, line.PurchaseOrderId).
		First(&order).Error; err != nil {
		return nil, nil, utils.ErrorRecordNotFound
	}
	return &line, &order, nil
}

// ReceiveInventory records a goods receipt against a purchase order line,
// adds the received quantity to on-hand stock, and re-derives the owning
// order's status.
func ReceiveInventory(ctx context.Context, input *NewReceipt) (*ReceiptResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.QuantityReceived.LessThanOrEqual(decimal.Zero) {
		return nil, validationError("quantity to receive must be greater than zero")
	}

	line, order, err := receivingTarget(ctx, businessId, input.PurchaseOrderDetailId)
	if err != nil {
		return nil, err
	}
	if isManualPurchaseOrderStatus(order.CurrentStatus) {
		return nil, validationError("cannot receive against a %s purchase order", order.CurrentStatus)
	}

	release, err := utils.ReconcileLock(ctx, "purchase_order", order.ID, "receiving.go", "ReceiveInventory")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	// Re-read the line under a row lock; another receipt may have landed
	// between the unlocked read and the lock acquisition.
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(line, line.ID).Error; err != nil {
		return nil, persistenceError("lock purchase order line", err)
	}

	received, err := sumReceiptsForLine(tx.WithContext(ctx), line.ID)
	if err != nil {
		return nil, persistenceError("sum receipts", err)
	}
	remaining := LineRemaining(line.DetailQty, received)
	if remaining.LessThanOrEqual(decimal.Zero) && !config.AllowOverReceipt() {
		return nil, validationError("line %d is fully received", line.ID)
	}

	qty := input.QuantityReceived
	if !config.AllowOverReceipt() {
		qty = ClampToRemaining(qty, remaining)
	}

	receipt := Receipt{
		BusinessId:            businessId,
		PurchaseOrderDetailId: line.ID,
		ReferenceNumber:       input.ReferenceNumber,
		QuantityReceived:      qty,
		ReceivedDate:          input.ReceivedDate,
	}

	seqNo, err := utils.GetSequence[Receipt](ctx, businessId)
	if err != nil {
		return nil, persistenceError("allocate receipt sequence", err)
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Goods Receipt")
	if err != nil {
		return nil, persistenceError("resolve receipt prefix", err)
	}
	receipt.SequenceNo = decimal.NewFromInt(seqNo)
	receipt.ReceiptNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&receipt).Error; err != nil {
		if utils.IsDuplicateEntryErr(err) {
			return nil, validationError("receipt number %s already exists", receipt.ReceiptNumber)
		}
		return nil, persistenceError("create receipt", err)
	}

	warnings, err := adjustInventoryOnHand(tx.WithContext(ctx), businessId, line.ProductId, qty)
	if err != nil {
		return nil, persistenceError("adjust inventory", err)
	}

	status, err := reconcilePurchaseOrderTx(tx.WithContext(ctx), businessId, order.ID)
	if err != nil {
		return nil, persistenceError("reconcile purchase order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Create", receipt.ID, "receipts", nil, &receipt, "Received "+qty.String()+" against line "+fmt.Sprint(line.ID)); err != nil {
		return nil, persistenceError("record history", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit receipt", err)
	}
	return &ReceiptResult{Receipt: &receipt, OrderStatus: status, Warnings: warnings}, nil
}

// EditReceipt changes the quantity on an existing receipt and applies the
// delta to on-hand stock.
func EditReceipt(ctx context.Context, receiptId int, newQuantity decimal.Decimal) (*ReceiptResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if newQuantity.LessThanOrEqual(decimal.Zero) {
		return nil, validationError("receipt quantity must be greater than zero")
	}

	receipt, err := utils.FetchModel[Receipt](ctx, businessId, receiptId)
	if err != nil {
		return nil, err
	}
	line, order, err := receivingTarget(ctx, businessId, receipt.PurchaseOrderDetailId)
	if err != nil {
		return nil, err
	}
	if isManualPurchaseOrderStatus(order.CurrentStatus) {
		return nil, validationError("cannot edit a receipt on a %s purchase order", order.CurrentStatus)
	}

	release, err := utils.ReconcileLock(ctx, "purchase_order", order.ID, "receiving.go", "EditReceipt")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(line, line.ID).Error; err != nil {
		return nil, persistenceError("lock purchase order line", err)
	}

	received, err := sumReceiptsForLine(tx.WithContext(ctx), line.ID)
	if err != nil {
		return nil, persistenceError("sum receipts", err)
	}
	// Remaining capacity excluding this receipt's current contribution.
	capacity := LineRemaining(line.DetailQty, received.Sub(receipt.QuantityReceived))
	qty := newQuantity
	if !config.AllowOverReceipt() {
		qty = ClampToRemaining(qty, capacity)
	}

	delta := qty.Sub(receipt.QuantityReceived)

	if err := tx.WithContext(ctx).Model(receipt).
		UpdateColumn("quantity_received", qty).Error; err != nil {
		return nil, persistenceError("update receipt", err)
	}
	receipt.QuantityReceived = qty

	warnings, err := adjustInventoryOnHand(tx.WithContext(ctx), businessId, line.ProductId, delta)
	if err != nil {
		return nil, persistenceError("adjust inventory", err)
	}

	status, err := reconcilePurchaseOrderTx(tx.WithContext(ctx), businessId, order.ID)
	if err != nil {
		return nil, persistenceError("reconcile purchase order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Update", receipt.ID, "receipts", nil, receipt, "Changed received quantity by "+delta.String()); err != nil {
		return nil, persistenceError("record history", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit receipt edit", err)
	}
	return &ReceiptResult{Receipt: receipt, OrderStatus: status, Warnings: warnings}, nil
}

// DeleteReceipt removes a receipt, subtracts its quantity from on-hand stock
// (never below zero), and re-derives the owning order's status, which may
// regress from Received/Partial back to Confirmed.
func DeleteReceipt(ctx context.Context, receiptId int) (*ReceiptResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	receipt, err := utils.FetchModel[Receipt](ctx, businessId, receiptId)
	if err != nil {
		return nil, err
	}
	line, order, err := receivingTarget(ctx, businessId, receipt.PurchaseOrderDetailId)
	if err != nil {
		return nil, err
	}

	release, err := utils.ReconcileLock(ctx, "purchase_order", order.ID, "receiving.go", "DeleteReceipt")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	warnings, err := adjustInventoryOnHand(tx.WithContext(ctx), businessId, line.ProductId, receipt.QuantityReceived.Neg())
	if err != nil {
		return nil, persistenceError("adjust inventory", err)
	}

	if err := tx.WithContext(ctx).Delete(receipt).Error; err != nil {
		return nil, persistenceError("delete receipt", err)
	}

	status, err := reconcilePurchaseOrderTx(tx.WithContext(ctx), businessId, order.ID)
	if err != nil {
		return nil, persistenceError("reconcile purchase order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Delete", receiptId, "receipts", receipt, nil, "Deleted receipt "+receipt.ReceiptNumber); err != nil {
		return nil, persistenceError("record history", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit receipt delete", err)
	}
	return &ReceiptResult{OrderStatus: status, Warnings: warnings}, nil
}

// AuditOrphanReceipts scans the business for receipts whose purchase order
// line no longer exists. Such receipts predate deletion blocking; the ledger
// ignores them, so they are surfaced for cleanup instead of silently skewing
// received quantities.
func AuditOrphanReceipts(ctx context.Context) ([]IntegrityWarning, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var receipts []Receipt
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Find(&receipts).Error
	if err != nil {
		return nil, persistenceError("load receipts", err)
	}

	var lines []PurchaseOrderDetail
	err = db.WithContext(ctx).
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_details.purchase_order_id").
		Where("purchase_orders.business_id = ?", businessId).
		Find(&lines).Error
	if err != nil {
		return nil, persistenceError("load purchase order lines", err)
	}

	_, orphans := GroupReceiptsByLine(lines, receipts)
	var warnings []IntegrityWarning
	for _, r := range orphans {
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnOrphanReceipt,
			Message: "receipt " + r.ReceiptNumber + " references missing purchase order line " + fmt.Sprint(r.PurchaseOrderDetailId),
		})
	}
	return warnings, nil
}

// GetReceiptsForLine lists receipts against one purchase order line, newest
// first.
func GetReceiptsForLine(ctx context.Context, lineId int) ([]*Receipt, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var receipts []*Receipt
	err := db.WithContext(ctx).
		Where("business_id = ? AND purchase_order_detail_id = ?", businessId, lineId).
		Order("received_date DESC, id DESC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}
