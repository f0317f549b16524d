package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the lifecycle state of a payout request.
type WithdrawalStatus string

const (
	StatusPending   WithdrawalStatus = "pending"
	StatusApproved  WithdrawalStatus = "approved"
	StatusRejected  WithdrawalStatus = "rejected"
	StatusCompleted WithdrawalStatus = "completed"
)

// allowedTransitions encodes the forward-only state machine. rejected and
// completed have no outgoing edges.
var allowedTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, n := range allowedTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transition.
func (s WithdrawalStatus) Terminal() bool { return len(allowedTransitions[s]) == 0 }

// Valid reports whether s is a known status value.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// WithdrawalRequest is a driver's payout request. Amount, payout destination,
// transaction identifier and requested_at are written once at creation and
// never updated; only status, processed_at, settlement_reference and
// operator_remark change afterwards, through guarded transitions.
type WithdrawalRequest struct {
	ID                  string           `gorm:"size:36;primaryKey" json:"id"`
	DriverID            string           `gorm:"size:36;not null;index" json:"driver_id"`
	RequestingUserID    string           `gorm:"size:36;not null" json:"requesting_user_id"`
	Amount              decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	AccountNumber       string           `gorm:"size:34;not null" json:"account_number"`
	AccountHolderName   string           `gorm:"size:128;not null" json:"account_holder_name"`
	RoutingCode         string           `gorm:"size:16;not null" json:"routing_code"`
	Status              WithdrawalStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	TransactionID       string           `gorm:"size:32;not null;uniqueIndex" json:"transaction_id"`
	SettlementReference *string          `gorm:"size:64" json:"settlement_reference,omitempty"`
	OperatorRemark      *string          `gorm:"size:512" json:"operator_remark,omitempty"`
	RequestedAt         time.Time        `gorm:"not null;index" json:"requested_at"`
	ProcessedAt         *time.Time       `json:"processed_at,omitempty"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_request" }
