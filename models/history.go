package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// History is an append-only audit row written inside the same transaction as
// the mutation it describes.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:50;not null" json:"action_type"`
	ReferenceId   int       `gorm:"index;not null" json:"reference_id"`
	ReferenceType string    `gorm:"size:100;index;not null" json:"reference_type"`
	Before        string    `gorm:"type:longtext;default:null" json:"before"`
	After         string    `gorm:"type:longtext;default:null" json:"after"`
	Description   string    `gorm:"size:500;default:null" json:"description"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func createHistory(tx *gorm.DB, actionType string, referenceId int, referenceType string, before any, after any, description string) error {
	history := History{
		ActionType:    actionType,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		Description:   description,
	}
	if before != nil {
		if data, err := json.Marshal(before); err == nil {
			history.Before = string(data)
		}
	}
	if after != nil {
		if data, err := json.Marshal(after); err == nil {
			history.After = string(data)
		}
	}
	return tx.Create(&history).Error
}
