package models_test

import (
	"testing"

	"github.com/nexvantage/orders_backend/models"
)

func poLine(ordered, received string) models.PurchaseOrderDetail {
	return models.PurchaseOrderDetail{
		DetailQty:         dec(ordered),
		DetailReceivedQty: dec(received),
	}
}

func soLine(ordered, invoiced string) models.SalesOrderDetail {
	return models.SalesOrderDetail{
		DetailQty:         dec(ordered),
		DetailInvoicedQty: dec(invoiced),
	}
}

func TestDerivePurchaseOrderStatus_Lifecycle(t *testing.T) {
	// Ordered 10: receiving 4 makes it Partial, the remaining 6 makes it
	// Received, and removing a receipt regresses it again.
	lines := []models.PurchaseOrderDetail{poLine("10", "4")}
	if got := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusConfirmed, lines); got != models.PurchaseOrderStatusPartial {
		t.Fatalf("expected Partial after receiving 4 of 10; got %s", got)
	}

	lines = []models.PurchaseOrderDetail{poLine("10", "10")}
	if got := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusPartial, lines); got != models.PurchaseOrderStatusReceived {
		t.Fatalf("expected Received after receiving all 10; got %s", got)
	}

	lines = []models.PurchaseOrderDetail{poLine("10", "4")}
	if got := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusReceived, lines); got != models.PurchaseOrderStatusPartial {
		t.Fatalf("expected regression to Partial after deleting a receipt; got %s", got)
	}

	lines = []models.PurchaseOrderDetail{poLine("10", "0")}
	if got := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusPartial, lines); got != models.PurchaseOrderStatusConfirmed {
		t.Fatalf("expected regression to Confirmed after deleting all receipts; got %s", got)
	}
}

func TestDerivePurchaseOrderStatus_ManualStatusesPreserved(t *testing.T) {
	lines := []models.PurchaseOrderDetail{poLine("10", "10")}
	for _, manual := range []models.PurchaseOrderStatus{models.PurchaseOrderStatusCancelled, models.PurchaseOrderStatusOnHold} {
		if got := models.DerivePurchaseOrderStatus(manual, lines); got != manual {
			t.Fatalf("expected manual status %s preserved; got %s", manual, got)
		}
	}
	// Pending with no receipts stays Pending: derivation never invents a
	// confirmation.
	lines = []models.PurchaseOrderDetail{poLine("10", "0")}
	if got := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusPending, lines); got != models.PurchaseOrderStatusPending {
		t.Fatalf("expected Pending preserved; got %s", got)
	}
}

func TestDerivePurchaseOrderStatus_Idempotent(t *testing.T) {
	lines := []models.PurchaseOrderDetail{poLine("10", "4"), poLine("5", "0")}
	first := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusConfirmed, lines)
	second := models.DerivePurchaseOrderStatus(first, lines)
	if first != second {
		t.Fatalf("derivation is not idempotent: %s then %s", first, second)
	}
}

func TestDerivePurchaseOrderStatus_IgnoresZeroQuantityLines(t *testing.T) {
	lines := []models.PurchaseOrderDetail{poLine("10", "10"), poLine("0", "0")}
	if got := models.DerivePurchaseOrderStatus(models.PurchaseOrderStatusPartial, lines); got != models.PurchaseOrderStatusReceived {
		t.Fatalf("expected zero-quantity line ignored; got %s", got)
	}
}

func TestDeriveSalesOrderStatus_RequiresEveryLineComplete(t *testing.T) {
	// Aggregate totals match but one line is over-invoiced while another is
	// short; the order is still Partial.
	lines := []models.SalesOrderDetail{soLine("10", "12"), soLine("10", "8")}
	if got := models.DeriveSalesOrderStatus(models.SalesOrderStatusPartial, lines); got != models.SalesOrderStatusPartial {
		t.Fatalf("expected Partial when a line is short; got %s", got)
	}

	lines = []models.SalesOrderDetail{soLine("10", "10"), soLine("10", "10")}
	if got := models.DeriveSalesOrderStatus(models.SalesOrderStatusPartial, lines); got != models.SalesOrderStatusInvoiced {
		t.Fatalf("expected Invoiced when all lines complete; got %s", got)
	}
}

func TestDeriveSalesOrderStatus_RegressesAfterInvoiceDeletion(t *testing.T) {
	lines := []models.SalesOrderDetail{soLine("10", "0")}
	if got := models.DeriveSalesOrderStatus(models.SalesOrderStatusInvoiced, lines); got != models.SalesOrderStatusConfirmed {
		t.Fatalf("expected regression to Confirmed; got %s", got)
	}
}

func TestFulfillmentPercent(t *testing.T) {
	cases := []struct {
		name     string
		invoiced string
		total    string
		want     int
	}{
		{"forty percent", "400", "1000", 40},
		{"complete", "1000", "1000", 100},
		{"zero", "0", "1000", 0},
		{"rounds", "333", "1000", 33},
		{"rounds up", "335", "1000", 34},
		{"clamped above", "1500", "1000", 100},
		{"zero total", "400", "0", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.FulfillmentPercent(dec(tc.invoiced), dec(tc.total))
			if got != tc.want {
				t.Fatalf("expected %d; got %d", tc.want, got)
			}
		})
	}
}
