package models_test

import (
	"testing"

	"github.com/nexvantage/orders_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTotalReceived_SumsAllReceipts(t *testing.T) {
	receipts := []models.Receipt{
		{QuantityReceived: dec("4")},
		{QuantityReceived: dec("3.5")},
		{QuantityReceived: dec("2.5")},
	}
	got := models.TotalReceived(receipts)
	if got.Cmp(dec("10")) != 0 {
		t.Fatalf("expected total received 10; got %s", got.String())
	}
}

func TestTotalReceived_EmptyIsZero(t *testing.T) {
	got := models.TotalReceived(nil)
	if !got.IsZero() {
		t.Fatalf("expected zero; got %s", got.String())
	}
}

func TestLineRemaining_FlooredAtZero(t *testing.T) {
	if got := models.LineRemaining(dec("10"), dec("4")); got.Cmp(dec("6")) != 0 {
		t.Fatalf("expected remaining 6; got %s", got.String())
	}
	// Over-fulfilled lines report zero remaining, not negative.
	if got := models.LineRemaining(dec("10"), dec("12")); !got.IsZero() {
		t.Fatalf("expected remaining 0 when over-fulfilled; got %s", got.String())
	}
}

func TestLineFulfillmentStatus(t *testing.T) {
	cases := []struct {
		name      string
		ordered   string
		fulfilled string
		want      models.LineFulfillment
	}{
		{"nothing fulfilled", "10", "0", models.LineFulfillmentPending},
		{"partially fulfilled", "10", "4", models.LineFulfillmentPartial},
		{"exactly fulfilled", "10", "10", models.LineFulfillmentComplete},
		{"over fulfilled", "10", "12", models.LineFulfillmentComplete},
		{"fractional", "2.5", "2.4999", models.LineFulfillmentPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.LineFulfillmentStatus(dec(tc.ordered), dec(tc.fulfilled))
			if got != tc.want {
				t.Fatalf("expected %s; got %s", tc.want, got)
			}
		})
	}
}

func TestGroupReceiptsByLine_SeparatesOrphans(t *testing.T) {
	lines := []models.PurchaseOrderDetail{{ID: 1}, {ID: 2}}
	receipts := []models.Receipt{
		{ID: 10, PurchaseOrderDetailId: 1, QuantityReceived: dec("4")},
		{ID: 11, PurchaseOrderDetailId: 2, QuantityReceived: dec("6")},
		{ID: 12, PurchaseOrderDetailId: 99, QuantityReceived: dec("1")},
		{ID: 13, PurchaseOrderDetailId: 1, QuantityReceived: dec("2")},
	}

	byLine, orphans := models.GroupReceiptsByLine(lines, receipts)

	if len(byLine[1]) != 2 || len(byLine[2]) != 1 {
		t.Fatalf("unexpected grouping: line1=%d line2=%d", len(byLine[1]), len(byLine[2]))
	}
	if len(orphans) != 1 || orphans[0].ID != 12 {
		t.Fatalf("expected receipt 12 as the only orphan; got %v", orphans)
	}
	// Orphans must not contribute to any line's total.
	if got := models.TotalReceived(byLine[1]); got.Cmp(dec("6")) != 0 {
		t.Fatalf("expected line 1 total 6; got %s", got.String())
	}
}

func TestClampToRemaining(t *testing.T) {
	if got := models.ClampToRemaining(dec("8"), dec("6")); got.Cmp(dec("6")) != 0 {
		t.Fatalf("expected clamp to 6; got %s", got.String())
	}
	if got := models.ClampToRemaining(dec("4"), dec("6")); got.Cmp(dec("4")) != 0 {
		t.Fatalf("expected 4 untouched; got %s", got.String())
	}
}
