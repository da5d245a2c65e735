package models

import (
	"context"
	"errors"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Document graph resolver: walks the Estimate -> Sales Order -> {Purchase
// Orders, Invoices} chain from any entry point. Lookups are id-first with a
// legacy document-number fallback, and successful fallbacks self-heal the
// stored reference so the next resolution takes the id path.

// DocumentRelationshipSnapshot is the resolved document family around one
// sales order, plus any reference problems found while walking it.
type DocumentRelationshipSnapshot struct {
	Estimate           *Estimate          `json:"estimate,omitempty"`
	SalesOrder         *SalesOrder        `json:"sales_order,omitempty"`
	PurchaseOrders     []PurchaseOrder    `json:"purchase_orders"`
	Invoices           []SalesInvoice     `json:"invoices"`
	FulfillmentPercent int                `json:"fulfillment_percent"`
	Warnings           []IntegrityWarning `json:"warnings,omitempty"`
}

// ResolveDocumentGraph resolves the full document family from any document in
// it. Broken references are reported as warnings, never as errors; a stale
// upstream reference is cleared so repeated resolutions converge.
func ResolveDocumentGraph(ctx context.Context, documentType DocumentType, id int) (*DocumentRelationshipSnapshot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	switch documentType {
	case DocumentTypeEstimate:
		estimate, err := utils.FetchModel[Estimate](ctx, businessId, id)
		if err != nil {
			return nil, err
		}
		return resolveFromEstimate(ctx, businessId, estimate)
	case DocumentTypeSalesOrder:
		so, err := utils.FetchModel[SalesOrder](ctx, businessId, id, "Details")
		if err != nil {
			return nil, err
		}
		return resolveAroundSalesOrder(ctx, businessId, so)
	case DocumentTypePurchaseOrder:
		po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
		if err != nil {
			return nil, err
		}
		return resolveFromPurchaseOrder(ctx, businessId, po)
	case DocumentTypeSalesInvoice:
		invoice, err := utils.FetchModel[SalesInvoice](ctx, businessId, id, "Details")
		if err != nil {
			return nil, err
		}
		return resolveFromInvoice(ctx, businessId, invoice)
	default:
		return nil, validationError("unknown document type %s", documentType)
	}
}

func resolveFromEstimate(ctx context.Context, businessId string, estimate *Estimate) (*DocumentRelationshipSnapshot, error) {
	db := config.GetDB()

	var so SalesOrder
	err := db.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND estimate_id = ?", businessId, estimate.ID).
		First(&so).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Orders created before id linkage only carry the estimate number.
		err = db.WithContext(ctx).Preload("Details").
			Where("business_id = ? AND (estimate_id = 0 OR estimate_id IS NULL) AND estimate_number = ?", businessId, estimate.EstimateNumber).
			First(&so).Error
		if err == nil {
			return resolveWithHealedEstimate(ctx, businessId, &so, estimate)
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &DocumentRelationshipSnapshot{Estimate: estimate}, nil
		}
		return nil, persistenceError("resolve sales order from estimate", err)
	}

	snapshot, err := resolveAroundSalesOrder(ctx, businessId, &so)
	if err != nil {
		return nil, err
	}
	snapshot.Estimate = estimate
	return snapshot, nil
}

func resolveWithHealedEstimate(ctx context.Context, businessId string, so *SalesOrder, estimate *Estimate) (*DocumentRelationshipSnapshot, error) {
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(so).
		UpdateColumn("estimate_id", estimate.ID).Error; err != nil {
		return nil, persistenceError("heal estimate reference", err)
	}
	so.EstimateId = estimate.ID

	snapshot, err := resolveAroundSalesOrder(ctx, businessId, so)
	if err != nil {
		return nil, err
	}
	snapshot.Estimate = estimate
	snapshot.Warnings = append(snapshot.Warnings, IntegrityWarning{
		Code:    WarnLegacyReferenceUsed,
		Message: "sales order " + so.OrderNumber + " was linked by estimate number; id reference backfilled",
	})
	return snapshot, nil
}

// resolveAroundSalesOrder builds the snapshot with the sales order as the hub:
// upstream estimate, downstream purchase orders in creation order, downstream
// invoices in issuance order.
func resolveAroundSalesOrder(ctx context.Context, businessId string, so *SalesOrder) (*DocumentRelationshipSnapshot, error) {
	db := config.GetDB()
	snapshot := &DocumentRelationshipSnapshot{SalesOrder: so}

	estimate, warnings, err := resolveEstimateUpstream(ctx, businessId, so)
	if err != nil {
		return nil, err
	}
	snapshot.Estimate = estimate
	snapshot.Warnings = append(snapshot.Warnings, warnings...)

	err = db.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND (sales_order_id = ? OR ((sales_order_id = 0 OR sales_order_id IS NULL) AND sales_order_number = ?))",
			businessId, so.ID, so.OrderNumber).
		Order("created_at ASC, id ASC").
		Find(&snapshot.PurchaseOrders).Error
	if err != nil {
		return nil, persistenceError("resolve purchase orders", err)
	}

	err = db.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND (sales_order_id = ? OR ((sales_order_id = 0 OR sales_order_id IS NULL) AND sales_order_number = ?))",
			businessId, so.ID, so.OrderNumber).
		Order("sequence_no ASC, id ASC").
		Find(&snapshot.Invoices).Error
	if err != nil {
		return nil, persistenceError("resolve invoices", err)
	}

	// Backfill legacy number-only links found while walking downstream.
	for i := range snapshot.PurchaseOrders {
		po := &snapshot.PurchaseOrders[i]
		if po.SalesOrderId == 0 {
			if err := db.WithContext(ctx).Model(po).
				UpdateColumn("sales_order_id", so.ID).Error; err != nil {
				return nil, persistenceError("heal purchase order reference", err)
			}
			po.SalesOrderId = so.ID
			snapshot.Warnings = append(snapshot.Warnings, IntegrityWarning{
				Code:    WarnLegacyReferenceUsed,
				Message: "purchase order " + po.OrderNumber + " was linked by order number; id reference backfilled",
			})
		}
	}
	for i := range snapshot.Invoices {
		invoice := &snapshot.Invoices[i]
		if invoice.SalesOrderId == 0 {
			if err := db.WithContext(ctx).Model(invoice).
				UpdateColumn("sales_order_id", so.ID).Error; err != nil {
				return nil, persistenceError("heal invoice reference", err)
			}
			invoice.SalesOrderId = so.ID
			snapshot.Warnings = append(snapshot.Warnings, IntegrityWarning{
				Code:    WarnLegacyReferenceUsed,
				Message: "invoice " + invoice.InvoiceNumber + " was linked by order number; id reference backfilled",
			})
		}
	}

	// The percentage comes from the invoices actually in the snapshot, so an
	// invoice found through the number fallback counts immediately instead of
	// waiting for the order's materialized column to catch up.
	invoicedAmount := decimal.Zero
	for _, invoice := range snapshot.Invoices {
		if invoice.CurrentStatus == SalesInvoiceStatusVoid {
			continue
		}
		invoicedAmount = invoicedAmount.Add(invoice.InvoiceTotalAmount)
	}
	snapshot.FulfillmentPercent = FulfillmentPercent(invoicedAmount, so.OrderTotalAmount)

	return snapshot, nil
}

// resolveEstimateUpstream follows the order's estimate reference, id first and
// then by number. A reference that resolves to nothing is cleared so the next
// walk skips it.
func resolveEstimateUpstream(ctx context.Context, businessId string, so *SalesOrder) (*Estimate, []IntegrityWarning, error) {
	db := config.GetDB()
	var warnings []IntegrityWarning

	if so.EstimateId > 0 {
		var estimate Estimate
		err := db.WithContext(ctx).
			Where("business_id = ? AND id = ?", businessId, so.EstimateId).
			First(&estimate).Error
		if err == nil {
			return &estimate, nil, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, persistenceError("resolve estimate", err)
		}
		if err := clearEstimateReference(ctx, so); err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnDanglingReference,
			Message: "estimate " + so.EstimateNumber + " referenced by sales order " + so.OrderNumber + " no longer exists; reference cleared",
		})
		return nil, warnings, nil
	}

	if so.EstimateNumber == "" {
		return nil, nil, nil
	}

	var estimate Estimate
	err := db.WithContext(ctx).
		Where("business_id = ? AND estimate_number = ?", businessId, so.EstimateNumber).
		First(&estimate).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, persistenceError("resolve estimate by number", err)
		}
		if err := clearEstimateReference(ctx, so); err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnDanglingReference,
			Message: "estimate " + so.EstimateNumber + " referenced by sales order " + so.OrderNumber + " no longer exists; reference cleared",
		})
		return nil, warnings, nil
	}

	// Number-only link resolved; backfill the id.
	if err := db.WithContext(ctx).Model(so).
		UpdateColumn("estimate_id", estimate.ID).Error; err != nil {
		return nil, nil, persistenceError("heal estimate reference", err)
	}
	so.EstimateId = estimate.ID
	warnings = append(warnings, IntegrityWarning{
		Code:    WarnLegacyReferenceUsed,
		Message: "sales order " + so.OrderNumber + " was linked by estimate number; id reference backfilled",
	})
	return &estimate, warnings, nil
}

func clearEstimateReference(ctx context.Context, so *SalesOrder) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Model(so).
		UpdateColumns(map[string]interface{}{"estimate_id": 0, "estimate_number": ""}).Error
	if err != nil {
		return persistenceError("clear estimate reference", err)
	}
	so.EstimateId = 0
	so.EstimateNumber = ""
	return nil
}

func resolveFromPurchaseOrder(ctx context.Context, businessId string, po *PurchaseOrder) (*DocumentRelationshipSnapshot, error) {
	so, warnings, err := resolveSalesOrderUpstream(ctx, businessId, po.SalesOrderId, po.SalesOrderNumber, "purchase order "+po.OrderNumber, func(soId int) error {
		return healOrClearPoReference(ctx, po, soId)
	})
	if err != nil {
		return nil, err
	}
	if so == nil {
		return &DocumentRelationshipSnapshot{
			PurchaseOrders: []PurchaseOrder{*po},
			Warnings:       warnings,
		}, nil
	}

	snapshot, err := resolveAroundSalesOrder(ctx, businessId, so)
	if err != nil {
		return nil, err
	}
	snapshot.Warnings = append(warnings, snapshot.Warnings...)
	return snapshot, nil
}

func resolveFromInvoice(ctx context.Context, businessId string, invoice *SalesInvoice) (*DocumentRelationshipSnapshot, error) {
	so, warnings, err := resolveSalesOrderUpstream(ctx, businessId, invoice.SalesOrderId, invoice.SalesOrderNumber, "invoice "+invoice.InvoiceNumber, func(soId int) error {
		return healOrClearInvoiceReference(ctx, invoice, soId)
	})
	if err != nil {
		return nil, err
	}
	if so == nil {
		return &DocumentRelationshipSnapshot{
			Invoices: []SalesInvoice{*invoice},
			Warnings: warnings,
		}, nil
	}

	snapshot, err := resolveAroundSalesOrder(ctx, businessId, so)
	if err != nil {
		return nil, err
	}
	snapshot.Warnings = append(warnings, snapshot.Warnings...)
	return snapshot, nil
}

// resolveSalesOrderUpstream is the shared id-then-number lookup for documents
// that point upstream at a sales order. heal is called with the resolved
// order id on a successful number fallback, or with 0 when the reference is
// dangling and should be cleared.
func resolveSalesOrderUpstream(ctx context.Context, businessId string, soId int, soNumber string, owner string, heal func(soId int) error) (*SalesOrder, []IntegrityWarning, error) {
	db := config.GetDB()
	var warnings []IntegrityWarning

	if soId > 0 {
		var so SalesOrder
		err := db.WithContext(ctx).Preload("Details").
			Where("business_id = ? AND id = ?", businessId, soId).
			First(&so).Error
		if err == nil {
			return &so, nil, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, persistenceError("resolve sales order", err)
		}
		if err := heal(0); err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnDanglingReference,
			Message: "sales order referenced by " + owner + " no longer exists; reference cleared",
		})
		return nil, warnings, nil
	}

	if soNumber == "" {
		return nil, nil, nil
	}

	var so SalesOrder
	err := db.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND order_number = ?", businessId, soNumber).
		First(&so).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, persistenceError("resolve sales order by number", err)
		}
		if err := heal(0); err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, IntegrityWarning{
			Code:    WarnDanglingReference,
			Message: "sales order " + soNumber + " referenced by " + owner + " no longer exists; reference cleared",
		})
		return nil, warnings, nil
	}

	if err := heal(so.ID); err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, IntegrityWarning{
		Code:    WarnLegacyReferenceUsed,
		Message: owner + " was linked by order number; id reference backfilled",
	})
	return &so, warnings, nil
}

func healOrClearPoReference(ctx context.Context, po *PurchaseOrder, soId int) error {
	db := config.GetDB()
	updates := map[string]interface{}{"sales_order_id": soId}
	if soId == 0 {
		updates["sales_order_number"] = ""
	}
	if err := db.WithContext(ctx).Model(po).UpdateColumns(updates).Error; err != nil {
		return persistenceError("update purchase order reference", err)
	}
	po.SalesOrderId = soId
	if soId == 0 {
		po.SalesOrderNumber = ""
	}
	return nil
}

func healOrClearInvoiceReference(ctx context.Context, invoice *SalesInvoice, soId int) error {
	db := config.GetDB()
	updates := map[string]interface{}{"sales_order_id": soId}
	if soId == 0 {
		updates["sales_order_number"] = ""
	}
	if err := db.WithContext(ctx).Model(invoice).UpdateColumns(updates).Error; err != nil {
		return persistenceError("update invoice reference", err)
	}
	invoice.SalesOrderId = soId
	if soId == 0 {
		invoice.SalesOrderNumber = ""
	}
	return nil
}
