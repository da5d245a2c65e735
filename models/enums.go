package models

type EstimateStatus string

const (
	EstimateStatusDraft     EstimateStatus = "Draft"
	EstimateStatusSent      EstimateStatus = "Sent"
	EstimateStatusAccepted  EstimateStatus = "Accepted"
	EstimateStatusDeclined  EstimateStatus = "Declined"
	EstimateStatusConverted EstimateStatus = "Converted"
)

type SalesOrderStatus string

const (
	SalesOrderStatusPending   SalesOrderStatus = "Pending"
	SalesOrderStatusConfirmed SalesOrderStatus = "Confirmed"
	SalesOrderStatusPartial   SalesOrderStatus = "Partial"
	SalesOrderStatusInvoiced  SalesOrderStatus = "Invoiced"
	SalesOrderStatusCancelled SalesOrderStatus = "Cancelled"
	SalesOrderStatusOnHold    SalesOrderStatus = "On Hold"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusPending   PurchaseOrderStatus = "Pending"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusPartial   PurchaseOrderStatus = "Partial"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "Received"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
	PurchaseOrderStatusOnHold    PurchaseOrderStatus = "On Hold"
)

type SalesInvoiceStatus string

const (
	SalesInvoiceStatusDraft     SalesInvoiceStatus = "Draft"
	SalesInvoiceStatusConfirmed SalesInvoiceStatus = "Confirmed"
	SalesInvoiceStatusPaid      SalesInvoiceStatus = "Paid"
	SalesInvoiceStatusVoid      SalesInvoiceStatus = "Void"
)

// LineFulfillment tracks how much of a sales order line has been consumed by
// downstream invoices.
type LineFulfillment string

const (
	LineFulfillmentPending  LineFulfillment = "pending"
	LineFulfillmentPartial  LineFulfillment = "partial"
	LineFulfillmentComplete LineFulfillment = "complete"
)

// DocumentType identifies the entry point for document graph resolution.
type DocumentType string

const (
	DocumentTypeEstimate      DocumentType = "estimate"
	DocumentTypeSalesOrder    DocumentType = "sales_order"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
	DocumentTypeSalesInvoice  DocumentType = "sales_invoice"
)

// manualStatuses never advance or regress automatically; only an explicit user
// action moves an order out of them.
func isManualSalesOrderStatus(s SalesOrderStatus) bool {
	return s == SalesOrderStatusCancelled || s == SalesOrderStatusOnHold
}

func isManualPurchaseOrderStatus(s PurchaseOrderStatus) bool {
	return s == PurchaseOrderStatusCancelled || s == PurchaseOrderStatusOnHold
}
