package models

import "time"

// ApprovalStatus is the administrator-driven gate of a practitioner.
type ApprovalStatus string

const (
	ApprovalNone      ApprovalStatus = "NONE"
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalActive    ApprovalStatus = "ACTIVE"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalCancelled ApprovalStatus = "CANCELLED"
)

const (
	BillingStatusNone     = "none"
	BillingStatusActive   = "active"
	BillingStatusPastDue  = "past_due"
	BillingStatusCanceled = "canceled"
)

// approvalGraph lists every valid approval edge. ACTIVE -> ACTIVE is the
// renewal self-loop driven by billing events.
var approvalGraph = map[ApprovalStatus][]ApprovalStatus{
	ApprovalNone:    {ApprovalPending},
	ApprovalPending: {ApprovalActive, ApprovalRejected},
	ApprovalActive:  {ApprovalActive, ApprovalCancelled},
}

// CanTransition reports whether approval may move from one status to another.
func CanTransition(from, to ApprovalStatus) bool {
	for _, next := range approvalGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AccessState is the per-practitioner record combining approval and billing
// health into the derived IsEntitled flag.
type AccessState struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	AccountID              uint           `gorm:"not null;uniqueIndex" json:"account_id"`
	Account                User           `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	ApprovalStatus         ApprovalStatus `gorm:"type:varchar(20);not null;default:'NONE';index" json:"approval_status"`
	BillingStatus          string         `gorm:"type:varchar(20);not null;default:'none'" json:"billing_status"`
	BillingCustomerRef     string         `gorm:"type:varchar(191);not null;default:''" json:"billing_customer_ref"`
	BillingSubscriptionRef *string        `gorm:"type:varchar(191);uniqueIndex" json:"billing_subscription_ref,omitempty"`
	BillingPriceRef        string         `gorm:"type:varchar(191);not null;default:''" json:"billing_price_ref"`
	BillingPeriodEnd       *time.Time     `gorm:"type:timestamp;default:null" json:"billing_period_end,omitempty"`
	BillingEventAt         *time.Time     `gorm:"type:timestamp;default:null" json:"billing_event_at,omitempty"`
	IsEntitled             bool           `gorm:"not null;default:false;index" json:"is_entitled"`
	RejectionReason        string         `gorm:"type:varchar(500);not null;default:''" json:"rejection_reason,omitempty"`
	ApprovedAt             *time.Time     `gorm:"type:timestamp;default:null" json:"approved_at,omitempty"`
	RejectedAt             *time.Time     `gorm:"type:timestamp;default:null" json:"rejected_at,omitempty"`
	CancelledAt            *time.Time     `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	Version                uint           `gorm:"not null;default:0" json:"version"`
	CreatedAt              time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewAccessState returns the initial state of a practitioner before checkout.
func NewAccessState(accountID uint) *AccessState {
	return &AccessState{
		AccountID:      accountID,
		ApprovalStatus: ApprovalNone,
		BillingStatus:  BillingStatusNone,
	}
}

// Recompute derives IsEntitled. It is the only place the flag is written.
func (s *AccessState) Recompute() {
	s.IsEntitled = s.ApprovalStatus == ApprovalActive && s.BillingStatus == BillingStatusActive
}

// ObserveBillingEvent advances BillingEventAt to the provider time of an
// applied billing event. It reports whether the field changed.
func (s *AccessState) ObserveBillingEvent(at time.Time) bool {
	if at.IsZero() || (s.BillingEventAt != nil && !at.After(*s.BillingEventAt)) {
		return false
	}
	at = at.UTC()
	s.BillingEventAt = &at
	return true
}

// SubscriptionRef returns the subscription reference or "" when unset.
func (s *AccessState) SubscriptionRef() string {
	if s.BillingSubscriptionRef == nil {
		return ""
	}
	return *s.BillingSubscriptionRef
}

// Snapshot captures the fields that state transitions touch.
func (s *AccessState) Snapshot() AccessStateSnapshot {
	return AccessStateSnapshot{
		ApprovalStatus:  s.ApprovalStatus,
		BillingStatus:   s.BillingStatus,
		CustomerRef:     s.BillingCustomerRef,
		SubscriptionRef: s.SubscriptionRef(),
		PriceRef:        s.BillingPriceRef,
		PeriodEnd:       s.BillingPeriodEnd,
		IsEntitled:      s.IsEntitled,
		RejectionReason: s.RejectionReason,
		Version:         s.Version,
	}
}

// AccessStateSnapshot is the JSON form stored in the transition log.
type AccessStateSnapshot struct {
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	BillingStatus   string         `json:"billing_status"`
	CustomerRef     string         `json:"customer_ref,omitempty"`
	SubscriptionRef string         `json:"subscription_ref,omitempty"`
	PriceRef        string         `json:"price_ref,omitempty"`
	PeriodEnd       *time.Time     `json:"period_end,omitempty"`
	IsEntitled      bool           `json:"is_entitled"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	Version         uint           `json:"version"`
}

// Equal compares two snapshots, period ends by instant.
func (a AccessStateSnapshot) Equal(b AccessStateSnapshot) bool {
	if (a.PeriodEnd == nil) != (b.PeriodEnd == nil) {
		return false
	}
	if a.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd) {
		return false
	}
	a.PeriodEnd, b.PeriodEnd = nil, nil
	return a == b
}
