package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/models"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
)

// setupIntegration starts throwaway MySQL and Redis containers, connects the
// globals against them, runs migrations, and returns a context scoped to a
// fresh business.
func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "orders_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, fmt.Sprintf("biz-%d", time.Now().UnixNano()))
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func mustCreateSalesOrder(t *testing.T, ctx context.Context, lines []models.NewOrderLine) *models.SalesOrder {
	t.Helper()
	so, err := models.CreateSalesOrder(ctx, &models.NewSalesOrder{
		CustomerId: 1,
		OrderDate:  time.Now(),
		Details:    lines,
	})
	if err != nil {
		t.Fatalf("CreateSalesOrder: %v", err)
	}
	return so
}

func mustCreatePurchaseOrder(t *testing.T, ctx context.Context, salesOrderId int, lines []models.NewOrderLine) *models.PurchaseOrder {
	t.Helper()
	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:   1,
		OrderDate:    time.Now(),
		SalesOrderId: salesOrderId,
		Details:      lines,
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	return po
}

func onHand(t *testing.T, ctx context.Context, productId int) decimal.Decimal {
	t.Helper()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	var record models.InventoryRecord
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		First(&record).Error
	if err != nil {
		t.Fatalf("fetch inventory record: %v", err)
	}
	return record.QuantityOnHand
}

// Regression: receiving 4 of 10 makes the order Partial, receiving the
// remaining 6 makes it Received, and deleting the second receipt regresses it
// back to Partial with stock adjusted each time.
func TestReceiving_PartialThenCompleteThenRegress(t *testing.T) {
	ctx := setupIntegration(t)

	po := mustCreatePurchaseOrder(t, ctx, 0, []models.NewOrderLine{
		{ProductId: 7, Name: "Widget", DetailQty: dec("10"), DetailUnitRate: dec("25")},
	})
	line := po.Details[0]

	first, err := models.ReceiveInventory(ctx, &models.NewReceipt{
		PurchaseOrderDetailId: line.ID,
		QuantityReceived:      dec("4"),
		ReceivedDate:          time.Now(),
	})
	if err != nil {
		t.Fatalf("ReceiveInventory(4): %v", err)
	}
	if first.OrderStatus != models.PurchaseOrderStatusPartial {
		t.Fatalf("expected Partial after 4 of 10; got %s", first.OrderStatus)
	}
	if got := onHand(t, ctx, 7); got.Cmp(dec("4")) != 0 {
		t.Fatalf("expected on-hand 4; got %s", got.String())
	}

	second, err := models.ReceiveInventory(ctx, &models.NewReceipt{
		PurchaseOrderDetailId: line.ID,
		QuantityReceived:      dec("6"),
		ReceivedDate:          time.Now(),
	})
	if err != nil {
		t.Fatalf("ReceiveInventory(6): %v", err)
	}
	if second.OrderStatus != models.PurchaseOrderStatusReceived {
		t.Fatalf("expected Received after 10 of 10; got %s", second.OrderStatus)
	}
	if got := onHand(t, ctx, 7); got.Cmp(dec("10")) != 0 {
		t.Fatalf("expected on-hand 10; got %s", got.String())
	}

	// The materialized column must match the receipt ledger.
	refreshed, err := models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if refreshed.Details[0].DetailReceivedQty.Cmp(dec("10")) != 0 {
		t.Fatalf("expected received qty 10; got %s", refreshed.Details[0].DetailReceivedQty.String())
	}

	deleted, err := models.DeleteReceipt(ctx, second.Receipt.ID)
	if err != nil {
		t.Fatalf("DeleteReceipt: %v", err)
	}
	if deleted.OrderStatus != models.PurchaseOrderStatusPartial {
		t.Fatalf("expected regression to Partial; got %s", deleted.OrderStatus)
	}
	if got := onHand(t, ctx, 7); got.Cmp(dec("4")) != 0 {
		t.Fatalf("expected on-hand back to 4; got %s", got.String())
	}
	refreshed, err = models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if refreshed.Details[0].DetailReceivedQty.Cmp(dec("4")) != 0 {
		t.Fatalf("expected received qty back to 4; got %s", refreshed.Details[0].DetailReceivedQty.String())
	}
}

// Regression: an over-receipt is clamped to the line's remaining quantity
// instead of rejected, and stock only gains the clamped amount.
func TestReceiving_ClampsToRemaining(t *testing.T) {
	ctx := setupIntegration(t)

	po := mustCreatePurchaseOrder(t, ctx, 0, []models.NewOrderLine{
		{ProductId: 8, Name: "Gadget", DetailQty: dec("10"), DetailUnitRate: dec("5")},
	})
	line := po.Details[0]

	if _, err := models.ReceiveInventory(ctx, &models.NewReceipt{
		PurchaseOrderDetailId: line.ID,
		QuantityReceived:      dec("7"),
		ReceivedDate:          time.Now(),
	}); err != nil {
		t.Fatalf("ReceiveInventory(7): %v", err)
	}

	result, err := models.ReceiveInventory(ctx, &models.NewReceipt{
		PurchaseOrderDetailId: line.ID,
		QuantityReceived:      dec("8"),
		ReceivedDate:          time.Now(),
	})
	if err != nil {
		t.Fatalf("ReceiveInventory(8): %v", err)
	}
	if result.Receipt.QuantityReceived.Cmp(dec("3")) != 0 {
		t.Fatalf("expected clamp to 3; got %s", result.Receipt.QuantityReceived.String())
	}
	if result.OrderStatus != models.PurchaseOrderStatusReceived {
		t.Fatalf("expected Received; got %s", result.OrderStatus)
	}
	if got := onHand(t, ctx, 8); got.Cmp(dec("10")) != 0 {
		t.Fatalf("expected on-hand 10; got %s", got.String())
	}
}

// Regression: a $1000 order invoiced $400 then $600 moves 0 -> 40 -> 100
// percent, and deleting the second invoice regresses status and percent.
func TestInvoicing_FulfillmentPercentLifecycle(t *testing.T) {
	ctx := setupIntegration(t)

	so := mustCreateSalesOrder(t, ctx, []models.NewOrderLine{
		{ProductId: 9, Name: "Service", DetailQty: dec("10"), DetailUnitRate: dec("100")},
	})
	line := so.Details[0]

	if _, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId:   1,
		SalesOrderId: so.ID,
		InvoiceDate:  time.Now(),
		Details: []models.NewSalesInvoiceDetail{
			{SalesOrderDetailId: line.ID, ProductId: 9, Name: "Service", DetailQty: dec("4"), DetailUnitRate: dec("100")},
		},
	}); err != nil {
		t.Fatalf("CreateSalesInvoice(400): %v", err)
	}

	refreshed, err := models.GetSalesOrder(ctx, so.ID)
	if err != nil {
		t.Fatalf("GetSalesOrder: %v", err)
	}
	if refreshed.FulfillmentPercent != 40 {
		t.Fatalf("expected 40 percent; got %d", refreshed.FulfillmentPercent)
	}
	if refreshed.CurrentStatus != models.SalesOrderStatusPartial {
		t.Fatalf("expected Partial; got %s", refreshed.CurrentStatus)
	}

	second, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId:   1,
		SalesOrderId: so.ID,
		InvoiceDate:  time.Now(),
		Details: []models.NewSalesInvoiceDetail{
			{SalesOrderDetailId: line.ID, ProductId: 9, Name: "Service", DetailQty: dec("6"), DetailUnitRate: dec("100")},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesInvoice(600): %v", err)
	}

	refreshed, err = models.GetSalesOrder(ctx, so.ID)
	if err != nil {
		t.Fatalf("GetSalesOrder: %v", err)
	}
	if refreshed.FulfillmentPercent != 100 {
		t.Fatalf("expected 100 percent; got %d", refreshed.FulfillmentPercent)
	}
	if refreshed.CurrentStatus != models.SalesOrderStatusInvoiced {
		t.Fatalf("expected Invoiced; got %s", refreshed.CurrentStatus)
	}

	if _, err := models.DeleteSalesInvoice(ctx, second.ID); err != nil {
		t.Fatalf("DeleteSalesInvoice: %v", err)
	}
	refreshed, err = models.GetSalesOrder(ctx, so.ID)
	if err != nil {
		t.Fatalf("GetSalesOrder: %v", err)
	}
	if refreshed.FulfillmentPercent != 40 {
		t.Fatalf("expected regression to 40 percent; got %d", refreshed.FulfillmentPercent)
	}
	if refreshed.CurrentStatus != models.SalesOrderStatusPartial {
		t.Fatalf("expected regression to Partial; got %s", refreshed.CurrentStatus)
	}
}

// Regression: editing a 3-line order down to 2 lines keeps the third line when
// an invoice references it, and reports the conflict instead of failing.
func TestLineSave_ReferencedLineSurvivesShrink(t *testing.T) {
	ctx := setupIntegration(t)

	so := mustCreateSalesOrder(t, ctx, []models.NewOrderLine{
		{ProductId: 1, Name: "Alpha", DetailQty: dec("1"), DetailUnitRate: dec("10")},
		{ProductId: 2, Name: "Beta", DetailQty: dec("2"), DetailUnitRate: dec("20")},
		{ProductId: 3, Name: "Gamma", DetailQty: dec("3"), DetailUnitRate: dec("30")},
	})
	third := so.Details[2]

	if _, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId:   1,
		SalesOrderId: so.ID,
		InvoiceDate:  time.Now(),
		Details: []models.NewSalesInvoiceDetail{
			{SalesOrderDetailId: third.ID, ProductId: 3, Name: "Gamma", DetailQty: dec("1"), DetailUnitRate: dec("30")},
		},
	}); err != nil {
		t.Fatalf("CreateSalesInvoice: %v", err)
	}

	report, err := models.SaveSalesOrderLines(ctx, so.ID, []models.NewOrderLine{
		{ProductId: 1, Name: "Alpha", DetailQty: dec("1"), DetailUnitRate: dec("10")},
		{ProductId: 2, Name: "Beta edited", DetailQty: dec("5"), DetailUnitRate: dec("20")},
	})
	if err != nil {
		t.Fatalf("SaveSalesOrderLines: %v", err)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0].LineId != third.ID {
		t.Fatalf("expected one conflict for line %d; got %+v", third.ID, report.Conflicts)
	}

	refreshed, err := models.GetSalesOrder(ctx, so.ID)
	if err != nil {
		t.Fatalf("GetSalesOrder: %v", err)
	}
	if len(refreshed.Details) != 3 {
		t.Fatalf("expected 3 surviving lines; got %d", len(refreshed.Details))
	}
	found := false
	for _, detail := range refreshed.Details {
		if detail.ID == third.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("referenced line %d was deleted", third.ID)
	}
	// 1*10 + 5*20 + 3*30 = 200
	if refreshed.OrderTotalAmount.Cmp(dec("200")) != 0 {
		t.Fatalf("expected order total 200; got %s", refreshed.OrderTotalAmount.String())
	}
}

// Regression: a purchase order linked only by legacy order number resolves
// through the graph and gets its id reference backfilled.
func TestDocumentGraph_LegacyNumberHealed(t *testing.T) {
	ctx := setupIntegration(t)

	so := mustCreateSalesOrder(t, ctx, []models.NewOrderLine{
		{ProductId: 4, Name: "Delta", DetailQty: dec("10"), DetailUnitRate: dec("10")},
	})
	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:       1,
		OrderDate:        time.Now(),
		SalesOrderNumber: so.OrderNumber,
		Details: []models.NewOrderLine{
			{ProductId: 4, Name: "Delta", DetailQty: dec("10"), DetailUnitRate: dec("8")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}

	snapshot, err := models.ResolveDocumentGraph(ctx, models.DocumentTypePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("ResolveDocumentGraph: %v", err)
	}
	if snapshot.SalesOrder == nil || snapshot.SalesOrder.ID != so.ID {
		t.Fatalf("expected sales order %d in snapshot", so.ID)
	}
	if len(snapshot.PurchaseOrders) != 1 {
		t.Fatalf("expected 1 purchase order; got %d", len(snapshot.PurchaseOrders))
	}
	healed := false
	for _, w := range snapshot.Warnings {
		if w.Code == models.WarnLegacyReferenceUsed {
			healed = true
		}
	}
	if !healed {
		t.Fatalf("expected legacy reference warning; got %+v", snapshot.Warnings)
	}

	refreshed, err := models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if refreshed.SalesOrderId != so.ID {
		t.Fatalf("expected backfilled sales order id %d; got %d", so.ID, refreshed.SalesOrderId)
	}

	// A second resolution takes the id path and reports no warnings.
	snapshot, err = models.ResolveDocumentGraph(ctx, models.DocumentTypePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("ResolveDocumentGraph (second): %v", err)
	}
	if len(snapshot.Warnings) != 0 {
		t.Fatalf("expected no warnings on second resolution; got %+v", snapshot.Warnings)
	}
}

// Regression: a sales order with two purchase orders and one invoice resolves
// to a snapshot with the orders in creation order and a percentage computed
// from the invoices in the snapshot. The invoice is linked only by order
// number, so the order's materialized percentage still reads zero; the graph
// must not echo that stale value.
func TestDocumentGraph_TwoPosOneInvoiceCoverage(t *testing.T) {
	ctx := setupIntegration(t)

	so := mustCreateSalesOrder(t, ctx, []models.NewOrderLine{
		{ProductId: 5, Name: "Epsilon", DetailQty: dec("10"), DetailUnitRate: dec("100")},
	})
	first := mustCreatePurchaseOrder(t, ctx, so.ID, []models.NewOrderLine{
		{ProductId: 5, Name: "Epsilon", DetailQty: dec("6"), DetailUnitRate: dec("80")},
	})
	second := mustCreatePurchaseOrder(t, ctx, so.ID, []models.NewOrderLine{
		{ProductId: 5, Name: "Epsilon", DetailQty: dec("4"), DetailUnitRate: dec("80")},
	})

	if _, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId:       1,
		SalesOrderNumber: so.OrderNumber,
		InvoiceDate:      time.Now(),
		Details: []models.NewSalesInvoiceDetail{
			{ProductId: 5, Name: "Epsilon", DetailQty: dec("4"), DetailUnitRate: dec("100")},
		},
	}); err != nil {
		t.Fatalf("CreateSalesInvoice: %v", err)
	}

	before, err := models.GetSalesOrder(ctx, so.ID)
	if err != nil {
		t.Fatalf("GetSalesOrder: %v", err)
	}
	if before.FulfillmentPercent != 0 {
		t.Fatalf("expected stored percent 0 before resolution; got %d", before.FulfillmentPercent)
	}

	snapshot, err := models.ResolveDocumentGraph(ctx, models.DocumentTypeSalesOrder, so.ID)
	if err != nil {
		t.Fatalf("ResolveDocumentGraph: %v", err)
	}
	if len(snapshot.PurchaseOrders) != 2 {
		t.Fatalf("expected 2 purchase orders; got %d", len(snapshot.PurchaseOrders))
	}
	if snapshot.PurchaseOrders[0].ID != first.ID || snapshot.PurchaseOrders[1].ID != second.ID {
		t.Fatalf("expected orders [%d %d] in creation order; got [%d %d]",
			first.ID, second.ID, snapshot.PurchaseOrders[0].ID, snapshot.PurchaseOrders[1].ID)
	}
	if len(snapshot.Invoices) != 1 {
		t.Fatalf("expected 1 invoice; got %d", len(snapshot.Invoices))
	}
	// $400 invoiced of a $1000 order.
	if snapshot.FulfillmentPercent != 40 {
		t.Fatalf("expected 40 percent from invoice coverage; got %d", snapshot.FulfillmentPercent)
	}
}

// Regression: shrinking an invoice-referenced line below its invoiced quantity
// is clamped back to the invoiced quantity and reported, so the invoiced
// amount can never exceed the ordered amount.
func TestLineSave_QtyClampedToInvoiced(t *testing.T) {
	ctx := setupIntegration(t)

	so := mustCreateSalesOrder(t, ctx, []models.NewOrderLine{
		{ProductId: 1, Name: "Alpha", DetailQty: dec("10"), DetailUnitRate: dec("10")},
		{ProductId: 2, Name: "Beta", DetailQty: dec("10"), DetailUnitRate: dec("10")},
	})
	firstLine := so.Details[0]

	if _, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId:   1,
		SalesOrderId: so.ID,
		InvoiceDate:  time.Now(),
		Details: []models.NewSalesInvoiceDetail{
			{SalesOrderDetailId: firstLine.ID, ProductId: 1, Name: "Alpha", DetailQty: dec("6"), DetailUnitRate: dec("10")},
		},
	}); err != nil {
		t.Fatalf("CreateSalesInvoice: %v", err)
	}

	report, err := models.SaveSalesOrderLines(ctx, so.ID, []models.NewOrderLine{
		{ProductId: 1, Name: "Alpha", DetailQty: dec("4"), DetailUnitRate: dec("10")},
		{ProductId: 2, Name: "Beta", DetailQty: dec("10"), DetailUnitRate: dec("10")},
	})
	if err != nil {
		t.Fatalf("SaveSalesOrderLines: %v", err)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0].LineId != firstLine.ID {
		t.Fatalf("expected one conflict for line %d; got %+v", firstLine.ID, report.Conflicts)
	}

	refreshed, err := models.GetSalesOrder(ctx, so.ID)
	if err != nil {
		t.Fatalf("GetSalesOrder: %v", err)
	}
	for _, detail := range refreshed.Details {
		if detail.ID != firstLine.ID {
			continue
		}
		if detail.DetailQty.Cmp(dec("6")) != 0 {
			t.Fatalf("expected qty clamped to 6; got %s", detail.DetailQty.String())
		}
		if detail.DetailInvoicedQty.GreaterThan(detail.DetailQty) {
			t.Fatalf("invoiced %s exceeds ordered %s", detail.DetailInvoicedQty.String(), detail.DetailQty.String())
		}
	}
	if refreshed.CurrentStatus != models.SalesOrderStatusPartial {
		t.Fatalf("expected Partial; got %s", refreshed.CurrentStatus)
	}
	// 6*10 + 10*10 = 160
	if refreshed.OrderTotalAmount.Cmp(dec("160")) != 0 {
		t.Fatalf("expected order total 160; got %s", refreshed.OrderTotalAmount.String())
	}
}

// Regression: deleting a sales order that an invoice still links to is refused
// with a referential conflict; once the invoice is gone the delete goes
// through.
func TestSalesOrderDelete_BlockedByInvoice(t *testing.T) {
	ctx := setupIntegration(t)

	so := mustCreateSalesOrder(t, ctx, []models.NewOrderLine{
		{ProductId: 6, Name: "Zeta", DetailQty: dec("2"), DetailUnitRate: dec("50")},
	})
	invoice, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId:   1,
		SalesOrderId: so.ID,
		InvoiceDate:  time.Now(),
		Details: []models.NewSalesInvoiceDetail{
			{SalesOrderDetailId: so.Details[0].ID, ProductId: 6, Name: "Zeta", DetailQty: dec("1"), DetailUnitRate: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesInvoice: %v", err)
	}

	_, err = models.DeleteSalesOrder(ctx, so.ID)
	var recErr *models.ReconciliationError
	if !errors.As(err, &recErr) || recErr.Kind != models.ErrKindReferentialConflict {
		t.Fatalf("expected referential conflict; got %v", err)
	}

	if _, err := models.DeleteSalesInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("DeleteSalesInvoice: %v", err)
	}
	if _, err := models.DeleteSalesOrder(ctx, so.ID); err != nil {
		t.Fatalf("DeleteSalesOrder after invoice removal: %v", err)
	}
	if _, err := models.GetSalesOrder(ctx, so.ID); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected record not found; got %v", err)
	}
}

// Regression: a receipt on an order placed On Hold cannot be edited, and stock
// is left untouched.
func TestReceiptEdit_BlockedOnManualStatus(t *testing.T) {
	ctx := setupIntegration(t)

	po := mustCreatePurchaseOrder(t, ctx, 0, []models.NewOrderLine{
		{ProductId: 11, Name: "Theta", DetailQty: dec("10"), DetailUnitRate: dec("5")},
	})
	result, err := models.ReceiveInventory(ctx, &models.NewReceipt{
		PurchaseOrderDetailId: po.Details[0].ID,
		QuantityReceived:      dec("4"),
		ReceivedDate:          time.Now(),
	})
	if err != nil {
		t.Fatalf("ReceiveInventory: %v", err)
	}

	if _, err := models.UpdateStatusPurchaseOrder(ctx, po.ID, models.PurchaseOrderStatusOnHold); err != nil {
		t.Fatalf("UpdateStatusPurchaseOrder: %v", err)
	}

	if _, err := models.EditReceipt(ctx, result.Receipt.ID, dec("6")); err == nil {
		t.Fatalf("expected edit to be rejected on an On Hold order")
	}
	if got := onHand(t, ctx, 11); got.Cmp(dec("4")) != 0 {
		t.Fatalf("expected on-hand unchanged at 4; got %s", got.String())
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("orders-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("orders-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=orders_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
