package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Line reconciliation writer: applies an edited line set to a stored order.
// Lines carry no ids in the edited payload, so matching is positional. When no
// stored line is referenced downstream the whole set is replaced; otherwise
// lines are merged in place so referenced line ids survive the edit.

type lineAction int

const (
	lineActionUpdate lineAction = iota
	lineActionCreate
	lineActionDelete
	lineActionKeep
)

// lineMergeStep is one positional decision: which stored line (if any) the
// step touches and what happens to it.
type lineMergeStep struct {
	Index      int
	ExistingId int
	Action     lineAction
}

// LineConflict reports a stored line that an edit tried to remove but that a
// downstream document still references. The line is kept and the caller is
// told, never silently.
type LineConflict struct {
	LineId     int    `json:"line_id"`
	LineNumber int    `json:"line_number"`
	Reason     string `json:"reason"`
}

// SaveReport is the outcome of a line save: the surviving conflicts and any
// integrity warnings raised while re-deriving the order.
type SaveReport struct {
	Conflicts []LineConflict     `json:"conflicts,omitempty"`
	Warnings  []IntegrityWarning `json:"warnings,omitempty"`
}

// buildLineMergePlan matches stored line ids to incoming positions. Positions
// shared by both sets are updates, extra incoming positions are creates, and
// extra stored lines are deletes unless referenced, in which case they are
// kept.
func buildLineMergePlan(existingIds []int, incoming int, referenced map[int]bool) []lineMergeStep {
	var plan []lineMergeStep
	for i := 0; i < incoming; i++ {
		if i < len(existingIds) {
			plan = append(plan, lineMergeStep{Index: i, ExistingId: existingIds[i], Action: lineActionUpdate})
		} else {
			plan = append(plan, lineMergeStep{Index: i, Action: lineActionCreate})
		}
	}
	for i := incoming; i < len(existingIds); i++ {
		action := lineActionDelete
		if referenced[existingIds[i]] {
			action = lineActionKeep
		}
		plan = append(plan, lineMergeStep{Index: i, ExistingId: existingIds[i], Action: action})
	}
	return plan
}

func validateOrderLines(lines []NewOrderLine) error {
	if len(lines) == 0 {
		return validationError("an order needs at least one line")
	}
	for i, line := range lines {
		if line.DetailQty.LessThanOrEqual(decimal.Zero) {
			return validationError("line %d: quantity must be greater than zero", i+1)
		}
	}
	return nil
}

// SaveSalesOrderLines replaces the sales order's lines with the edited set,
// preserving the identity of any line an invoice still references.
func SaveSalesOrderLines(ctx context.Context, orderId int, newLines []NewOrderLine) (*SaveReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validateOrderLines(newLines); err != nil {
		return nil, err
	}

	so, err := utils.FetchModel[SalesOrder](ctx, businessId, orderId)
	if err != nil {
		return nil, err
	}
	if isManualSalesOrderStatus(so.CurrentStatus) {
		return nil, validationError("cannot edit lines of a %s sales order", so.CurrentStatus)
	}

	release, err := utils.ReconcileLock(ctx, "sales_order", orderId, "lineReconciliation.go", "SaveSalesOrderLines")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	var existing []SalesOrderDetail
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sales_order_id = ?", orderId).
		Order("line_number ASC, id ASC").
		Find(&existing).Error
	if err != nil {
		return nil, persistenceError("load sales order lines", err)
	}

	referenced := map[int]bool{}
	for _, detail := range existing {
		has, err := soDetailHasInvoiceReference(tx.WithContext(ctx), detail.ID)
		if err != nil {
			return nil, persistenceError("check invoice references", err)
		}
		if has {
			referenced[detail.ID] = true
		}
	}

	report := &SaveReport{}

	if len(referenced) == 0 {
		// Nothing downstream cares about line identity; replace wholesale.
		if err := tx.WithContext(ctx).Where("sales_order_id = ?", orderId).
			Delete(&SalesOrderDetail{}).Error; err != nil {
			return nil, persistenceError("delete sales order lines", err)
		}
		for i, line := range newLines {
			detail := SalesOrderDetail{
				SalesOrderId:       orderId,
				LineNumber:         i + 1,
				ProductId:          line.ProductId,
				Name:               line.Name,
				Description:        line.Description,
				DetailQty:          line.DetailQty,
				DetailUnitRate:     line.DetailUnitRate,
				DetailTotalAmount:  line.lineTotal(),
				DetailRemainingQty: line.DetailQty,
				FulfillmentStatus:  LineFulfillmentPending,
			}
			if err := tx.WithContext(ctx).Create(&detail).Error; err != nil {
				return nil, persistenceError("create sales order line", err)
			}
		}
	} else {
		existingIds := make([]int, len(existing))
		byId := map[int]*SalesOrderDetail{}
		for i := range existing {
			existingIds[i] = existing[i].ID
			byId[existing[i].ID] = &existing[i]
		}
		plan := buildLineMergePlan(existingIds, len(newLines), referenced)
		nextLineNumber := len(newLines)

		for _, step := range plan {
			switch step.Action {
			case lineActionUpdate:
				line := newLines[step.Index]
				qty := line.DetailQty
				if referenced[step.ExistingId] {
					// Invoiced quantity can never exceed ordered quantity, so a
					// referenced line cannot shrink below what its invoices
					// already consumed.
					invoiced, err := sumInvoicedForLine(tx.WithContext(ctx), step.ExistingId)
					if err != nil {
						return nil, persistenceError("sum invoiced quantity", err)
					}
					if qty.LessThan(invoiced) {
						qty = invoiced
						report.Conflicts = append(report.Conflicts, LineConflict{
							LineId:     step.ExistingId,
							LineNumber: step.Index + 1,
							Reason:     "line " + fmt.Sprint(step.Index+1) + " quantity raised to " + invoiced.String() + "; invoices already consumed that much",
						})
					}
				}
				err := tx.WithContext(ctx).Model(&SalesOrderDetail{ID: step.ExistingId}).
					UpdateColumns(map[string]interface{}{
						"line_number":         step.Index + 1,
						"product_id":          line.ProductId,
						"name":                line.Name,
						"description":         line.Description,
						"detail_qty":          qty,
						"detail_unit_rate":    line.DetailUnitRate,
						"detail_total_amount": qty.Mul(line.DetailUnitRate),
					}).Error
				if err != nil {
					return nil, persistenceError("update sales order line", err)
				}
			case lineActionCreate:
				line := newLines[step.Index]
				detail := SalesOrderDetail{
					SalesOrderId:       orderId,
					LineNumber:         step.Index + 1,
					ProductId:          line.ProductId,
					Name:               line.Name,
					Description:        line.Description,
					DetailQty:          line.DetailQty,
					DetailUnitRate:     line.DetailUnitRate,
					DetailTotalAmount:  line.lineTotal(),
					DetailRemainingQty: line.DetailQty,
					FulfillmentStatus:  LineFulfillmentPending,
				}
				if err := tx.WithContext(ctx).Create(&detail).Error; err != nil {
					return nil, persistenceError("create sales order line", err)
				}
			case lineActionDelete:
				if err := tx.WithContext(ctx).Delete(&SalesOrderDetail{}, step.ExistingId).Error; err != nil {
					return nil, persistenceError("delete sales order line", err)
				}
			case lineActionKeep:
				nextLineNumber++
				err := tx.WithContext(ctx).Model(&SalesOrderDetail{ID: step.ExistingId}).
					UpdateColumn("line_number", nextLineNumber).Error
				if err != nil {
					return nil, persistenceError("renumber sales order line", err)
				}
				kept := byId[step.ExistingId]
				report.Conflicts = append(report.Conflicts, LineConflict{
					LineId:     step.ExistingId,
					LineNumber: nextLineNumber,
					Reason:     "line " + fmt.Sprint(kept.LineNumber) + " is referenced by an invoice and was kept",
				})
			}
		}
	}

	if err := rewriteSalesOrderTotal(tx.WithContext(ctx), orderId); err != nil {
		return nil, err
	}
	if _, err := reconcileSalesOrderTx(tx.WithContext(ctx), businessId, orderId); err != nil {
		return nil, persistenceError("reconcile sales order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Update", orderId, "sales_orders", nil, nil, "Saved order lines"); err != nil {
		return nil, persistenceError("record history", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit line save", err)
	}
	return report, nil
}

// SavePurchaseOrderLines replaces the purchase order's lines with the edited
// set, preserving the identity of any line a receipt still references.
func SavePurchaseOrderLines(ctx context.Context, orderId int, newLines []NewOrderLine) (*SaveReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validateOrderLines(newLines); err != nil {
		return nil, err
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, orderId)
	if err != nil {
		return nil, err
	}
	if isManualPurchaseOrderStatus(po.CurrentStatus) {
		return nil, validationError("cannot edit lines of a %s purchase order", po.CurrentStatus)
	}

	release, err := utils.ReconcileLock(ctx, "purchase_order", orderId, "lineReconciliation.go", "SavePurchaseOrderLines")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	var existing []PurchaseOrderDetail
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("purchase_order_id = ?", orderId).
		Order("line_number ASC, id ASC").
		Find(&existing).Error
	if err != nil {
		return nil, persistenceError("load purchase order lines", err)
	}

	referenced := map[int]bool{}
	for _, detail := range existing {
		has, err := poDetailHasReceiptReference(tx.WithContext(ctx), detail.ID)
		if err != nil {
			return nil, persistenceError("check receipt references", err)
		}
		if has {
			referenced[detail.ID] = true
		}
	}

	report := &SaveReport{}

	if len(referenced) == 0 {
		if err := tx.WithContext(ctx).Where("purchase_order_id = ?", orderId).
			Delete(&PurchaseOrderDetail{}).Error; err != nil {
			return nil, persistenceError("delete purchase order lines", err)
		}
		for i, line := range newLines {
			detail := PurchaseOrderDetail{
				PurchaseOrderId:   orderId,
				LineNumber:        i + 1,
				ProductId:         line.ProductId,
				Name:              line.Name,
				Description:       line.Description,
				DetailQty:         line.DetailQty,
				DetailUnitRate:    line.DetailUnitRate,
				DetailTotalAmount: line.lineTotal(),
			}
			if err := tx.WithContext(ctx).Create(&detail).Error; err != nil {
				return nil, persistenceError("create purchase order line", err)
			}
		}
	} else {
		existingIds := make([]int, len(existing))
		byId := map[int]*PurchaseOrderDetail{}
		for i := range existing {
			existingIds[i] = existing[i].ID
			byId[existing[i].ID] = &existing[i]
		}
		plan := buildLineMergePlan(existingIds, len(newLines), referenced)
		nextLineNumber := len(newLines)

		for _, step := range plan {
			switch step.Action {
			case lineActionUpdate:
				line := newLines[step.Index]
				qty := line.DetailQty
				if referenced[step.ExistingId] {
					received, err := sumReceiptsForLine(tx.WithContext(ctx), step.ExistingId)
					if err != nil {
						return nil, persistenceError("sum received quantity", err)
					}
					if qty.LessThan(received) {
						qty = received
						report.Conflicts = append(report.Conflicts, LineConflict{
							LineId:     step.ExistingId,
							LineNumber: step.Index + 1,
							Reason:     "line " + fmt.Sprint(step.Index+1) + " quantity raised to " + received.String() + "; receipts already recorded that much",
						})
					}
				}
				err := tx.WithContext(ctx).Model(&PurchaseOrderDetail{ID: step.ExistingId}).
					UpdateColumns(map[string]interface{}{
						"line_number":         step.Index + 1,
						"product_id":          line.ProductId,
						"name":                line.Name,
						"description":         line.Description,
						"detail_qty":          qty,
						"detail_unit_rate":    line.DetailUnitRate,
						"detail_total_amount": qty.Mul(line.DetailUnitRate),
					}).Error
				if err != nil {
					return nil, persistenceError("update purchase order line", err)
				}
			case lineActionCreate:
				line := newLines[step.Index]
				detail := PurchaseOrderDetail{
					PurchaseOrderId:   orderId,
					LineNumber:        step.Index + 1,
					ProductId:         line.ProductId,
					Name:              line.Name,
					Description:       line.Description,
					DetailQty:         line.DetailQty,
					DetailUnitRate:    line.DetailUnitRate,
					DetailTotalAmount: line.lineTotal(),
				}
				if err := tx.WithContext(ctx).Create(&detail).Error; err != nil {
					return nil, persistenceError("create purchase order line", err)
				}
			case lineActionDelete:
				if err := tx.WithContext(ctx).Delete(&PurchaseOrderDetail{}, step.ExistingId).Error; err != nil {
					return nil, persistenceError("delete purchase order line", err)
				}
			case lineActionKeep:
				nextLineNumber++
				err := tx.WithContext(ctx).Model(&PurchaseOrderDetail{ID: step.ExistingId}).
					UpdateColumn("line_number", nextLineNumber).Error
				if err != nil {
					return nil, persistenceError("renumber purchase order line", err)
				}
				kept := byId[step.ExistingId]
				report.Conflicts = append(report.Conflicts, LineConflict{
					LineId:     step.ExistingId,
					LineNumber: nextLineNumber,
					Reason:     "line " + fmt.Sprint(kept.LineNumber) + " is referenced by a receipt and was kept",
				})
			}
		}
	}

	if err := rewritePurchaseOrderTotal(tx.WithContext(ctx), orderId); err != nil {
		return nil, err
	}
	if _, err := reconcilePurchaseOrderTx(tx.WithContext(ctx), businessId, orderId); err != nil {
		return nil, persistenceError("reconcile purchase order", err)
	}

	if err := createHistory(tx.WithContext(ctx), "Update", orderId, "purchase_orders", nil, nil, "Saved order lines"); err != nil {
		return nil, persistenceError("record history", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, persistenceError("commit line save", err)
	}
	return report, nil
}

func rewriteSalesOrderTotal(tx *gorm.DB, orderId int) error {
	err := tx.Model(&SalesOrder{}).
		Where("id = ?", orderId).
		UpdateColumn("order_total_amount", tx.Session(&gorm.Session{NewDB: true}).
			Model(&SalesOrderDetail{}).
			Select("COALESCE(SUM(detail_total_amount), 0)").
			Where("sales_order_id = ?", orderId)).Error
	if err != nil {
		return persistenceError("rewrite order total", err)
	}
	return nil
}

func rewritePurchaseOrderTotal(tx *gorm.DB, orderId int) error {
	err := tx.Model(&PurchaseOrder{}).
		Where("id = ?", orderId).
		UpdateColumn("order_total_amount", tx.Session(&gorm.Session{NewDB: true}).
			Model(&PurchaseOrderDetail{}).
			Select("COALESCE(SUM(detail_total_amount), 0)").
			Where("purchase_order_id = ?", orderId)).Error
	if err != nil {
		return persistenceError("rewrite order total", err)
	}
	return nil
}
