package model

import "time"

// Event types emitted on the withdrawal_request aggregate.
const (
	EventWithdrawalRequested = "WithdrawalRequested"
	EventWithdrawalApproved  = "WithdrawalApproved"
	EventWithdrawalRejected  = "WithdrawalRejected"
	EventWithdrawalSettled   = "WithdrawalSettled"
)

// OutboxEvent is written in the same transaction as the state change it
// describes; cmd/poller publishes it to Kafka afterwards.
type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:36;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Processed   bool      `gorm:"not null;default:false"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }
