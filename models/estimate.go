package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
)

type Estimate struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BusinessId          string          `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId          int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	EstimateNumber      string          `gorm:"size:255;not null" json:"estimate_number"`
	SequenceNo          decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	ReferenceNumber     string          `gorm:"size:255;default:null" json:"reference_number"`
	EstimateDate        time.Time       `gorm:"not null" json:"estimate_date" binding:"required"`
	CurrentStatus       EstimateStatus  `gorm:"type:enum('Draft','Sent','Accepted','Declined','Converted');not null" json:"current_status"`
	EstimateTotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"estimate_total_amount"`
	Notes               string          `gorm:"type:text;default:null" json:"notes"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEstimate struct {
	CustomerId          int             `json:"customer_id" binding:"required"`
	ReferenceNumber     string          `json:"reference_number"`
	EstimateDate        time.Time       `json:"estimate_date" binding:"required"`
	EstimateTotalAmount decimal.Decimal `json:"estimate_total_amount"`
	Notes               string          `json:"notes"`
}

func CreateEstimate(ctx context.Context, input *NewEstimate) (*Estimate, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	estimate := Estimate{
		BusinessId:          businessId,
		CustomerId:          input.CustomerId,
		ReferenceNumber:     input.ReferenceNumber,
		EstimateDate:        input.EstimateDate,
		CurrentStatus:       EstimateStatusDraft,
		EstimateTotalAmount: input.EstimateTotalAmount,
		Notes:               input.Notes,
	}

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	seqNo, err := utils.GetSequence[Estimate](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Estimate")
	if err != nil {
		return nil, err
	}
	estimate.SequenceNo = decimal.NewFromInt(seqNo)
	estimate.EstimateNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&estimate).Error; err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &estimate, nil
}

func GetEstimate(ctx context.Context, id int) (*Estimate, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Estimate](ctx, businessId, id)
}

// MarkEstimateConverted is called when a sales order is created from an
// estimate so the estimate stops being editable.
func MarkEstimateConverted(ctx context.Context, id int) (*Estimate, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	estimate, err := utils.FetchModel[Estimate](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if estimate.CurrentStatus == EstimateStatusDeclined {
		return nil, errors.New("cannot convert a declined estimate")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(estimate).
		UpdateColumn("CurrentStatus", EstimateStatusConverted).Error; err != nil {
		return nil, err
	}
	estimate.CurrentStatus = EstimateStatusConverted
	return estimate, nil
}
