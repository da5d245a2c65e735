package models

import (
	"github.com/shopspring/decimal"
)

// Quantity ledger: pure functions over order lines and the receipt/invoice
// records that reference them. Stored quantity columns (DetailReceivedQty,
// DetailInvoicedQty, DetailRemainingQty) are materialized views of these
// functions and must be rewritten from source records after every mutation.

// TotalReceived sums receipt quantities for one purchase order line.
func TotalReceived(receipts []Receipt) decimal.Decimal {
	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(r.QuantityReceived)
	}
	return total
}

// LineRemaining is ordered minus fulfilled, floored at zero. A negative
// computed remainder is not an error.
func LineRemaining(ordered, fulfilled decimal.Decimal) decimal.Decimal {
	remaining := ordered.Sub(fulfilled)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// LineFulfillmentStatus derives the per-line state from ordered and fulfilled
// quantities.
func LineFulfillmentStatus(ordered, fulfilled decimal.Decimal) LineFulfillment {
	if fulfilled.LessThanOrEqual(decimal.Zero) {
		return LineFulfillmentPending
	}
	if fulfilled.GreaterThanOrEqual(ordered) && ordered.GreaterThan(decimal.Zero) {
		return LineFulfillmentComplete
	}
	return LineFulfillmentPartial
}

// GroupReceiptsByLine splits receipts into per-line groups and orphans.
// A receipt whose line id matches no known line is an orphan: the ledger
// ignores it, the caller surfaces it as a data-integrity warning.
func GroupReceiptsByLine(lines []PurchaseOrderDetail, receipts []Receipt) (map[int][]Receipt, []Receipt) {
	known := make(map[int]bool, len(lines))
	for _, line := range lines {
		known[line.ID] = true
	}

	byLine := make(map[int][]Receipt, len(lines))
	var orphans []Receipt
	for _, r := range receipts {
		if !known[r.PurchaseOrderDetailId] {
			orphans = append(orphans, r)
			continue
		}
		byLine[r.PurchaseOrderDetailId] = append(byLine[r.PurchaseOrderDetailId], r)
	}
	return byLine, orphans
}

// ClampToRemaining caps a requested receipt quantity at the line's remaining
// quantity. The UI may allow an over-receipt override, but by default the
// service clamps so that total received never exceeds ordered.
func ClampToRemaining(requested, remaining decimal.Decimal) decimal.Decimal {
	if requested.GreaterThan(remaining) {
		return remaining
	}
	return requested
}
