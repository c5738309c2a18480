package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TransitionSourceBilling = "billing"
	TransitionSourceAdmin   = "admin"
)

// AccessStateTransition is the audit trail of every applied state change,
// kept for manual reconciliation.
type AccessStateTransition struct {
	ID        uint                                    `gorm:"primaryKey" json:"id"`
	AccountID uint                                    `gorm:"not null;index" json:"account_id"`
	Source    string                                  `gorm:"type:varchar(20);not null" json:"source"`
	Cause     string                                  `gorm:"type:varchar(100);not null" json:"cause"`
	EventID   string                                  `gorm:"type:varchar(191);not null;default:''" json:"event_id,omitempty"`
	Before    datatypes.JSONType[AccessStateSnapshot] `gorm:"type:json" json:"before"`
	After     datatypes.JSONType[AccessStateSnapshot] `gorm:"type:json" json:"after"`
	CreatedAt time.Time                               `gorm:"autoCreateTime;index" json:"created_at"`
}

// NewAccessStateTransition records a before/after pair for one cause.
func NewAccessStateTransition(source, cause, eventID string, before, after *AccessState) *AccessStateTransition {
	return &AccessStateTransition{
		AccountID: after.AccountID,
		Source:    source,
		Cause:     cause,
		EventID:   eventID,
		Before:    datatypes.NewJSONType(before.Snapshot()),
		After:     datatypes.NewJSONType(after.Snapshot()),
	}
}
