package models

import (
	"context"
	"errors"
	"time"

	"github.com/nexvantage/orders_backend/config"
	"gorm.io/gorm"
)

// TransactionPrefix lets a business override the document number prefix per
// module. Missing rows fall back to the built-in defaults below.
type TransactionPrefix struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	ModuleName string    `gorm:"size:100;not null" json:"module_name"`
	Prefix     string    `gorm:"size:20;not null" json:"prefix"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var defaultPrefixes = map[string]string{
	"Estimate":       "EST-",
	"Sales Order":    "SO-",
	"Purchase Order": "PO-",
	"Sales Invoice":  "INV-",
	"Goods Receipt":  "GRN-",
}

func getTransactionPrefix(ctx context.Context, businessId string, moduleName string) (string, error) {
	cacheKey := "prefix:" + businessId + ":" + moduleName
	var cached string
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found && cached != "" {
		return cached, nil
	}

	db := config.GetDB()
	var row TransactionPrefix
	err := db.WithContext(ctx).
		Where("business_id = ? AND module_name = ?", businessId, moduleName).
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		prefix, ok := defaultPrefixes[moduleName]
		if !ok {
			return "", errors.New("unknown module name " + moduleName)
		}
		return prefix, nil
	}

	_ = config.SetRedisObject(cacheKey, row.Prefix, time.Hour)
	return row.Prefix, nil
}
