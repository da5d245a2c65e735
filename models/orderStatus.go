package models

import (
	"github.com/shopspring/decimal"
)

// Status derivation engine: document status is a pure function of its lines'
// quantities. The same derivation runs after every mutation regardless of
// entry point (receiving screen, order edit, invoice create/delete), so it
// must be deterministic and idempotent.
//
// The derivation only ever advances fulfillment statuses; a manually set
// status (Cancelled, On Hold) is never overridden, and a zero-fulfillment
// order keeps its pre-fulfillment status.

// DerivePurchaseOrderStatus computes the document status from line ordered and
// received quantities.
func DerivePurchaseOrderStatus(current PurchaseOrderStatus, lines []PurchaseOrderDetail) PurchaseOrderStatus {
	if isManualPurchaseOrderStatus(current) {
		return current
	}

	totalOrdered := decimal.Zero
	totalReceived := decimal.Zero
	for _, line := range lines {
		if line.DetailQty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		totalOrdered = totalOrdered.Add(line.DetailQty)
		totalReceived = totalReceived.Add(line.DetailReceivedQty)
	}

	switch {
	case totalReceived.LessThanOrEqual(decimal.Zero):
		// Nothing fulfilled: a previously derived status regresses to the
		// pre-fulfillment value, a manual confirmation is preserved.
		if current == PurchaseOrderStatusPartial || current == PurchaseOrderStatusReceived {
			return PurchaseOrderStatusConfirmed
		}
		return current
	case totalReceived.GreaterThanOrEqual(totalOrdered) && totalOrdered.GreaterThan(decimal.Zero):
		return PurchaseOrderStatusReceived
	default:
		return PurchaseOrderStatusPartial
	}
}

// DeriveSalesOrderStatus computes the document status from line ordered and
// invoiced quantities. Invoiced requires every line to be complete, not just
// the aggregate totals to match.
func DeriveSalesOrderStatus(current SalesOrderStatus, lines []SalesOrderDetail) SalesOrderStatus {
	if isManualSalesOrderStatus(current) {
		return current
	}

	totalOrdered := decimal.Zero
	totalInvoiced := decimal.Zero
	allComplete := true
	anyLine := false
	for _, line := range lines {
		if line.DetailQty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		anyLine = true
		totalOrdered = totalOrdered.Add(line.DetailQty)
		totalInvoiced = totalInvoiced.Add(line.DetailInvoicedQty)
		if line.DetailInvoicedQty.LessThan(line.DetailQty) {
			allComplete = false
		}
	}

	switch {
	case totalInvoiced.LessThanOrEqual(decimal.Zero):
		if current == SalesOrderStatusPartial || current == SalesOrderStatusInvoiced {
			return SalesOrderStatusConfirmed
		}
		return current
	case anyLine && allComplete && totalInvoiced.GreaterThanOrEqual(totalOrdered):
		return SalesOrderStatusInvoiced
	default:
		return SalesOrderStatusPartial
	}
}

// FulfillmentPercent is the share of a sales order's value already invoiced,
// rounded and clamped to [0, 100]. Zero when the order total is not positive.
func FulfillmentPercent(invoicedAmount, orderTotal decimal.Decimal) int {
	if orderTotal.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	percent := invoicedAmount.Div(orderTotal).Mul(decimal.NewFromInt(100)).Round(0)
	p := int(percent.IntPart())
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
