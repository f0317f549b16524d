package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/model"
)

// ErrDuplicateTransactionID is returned when an insert collides with an
// existing transaction identifier. The caller may regenerate and retry once.
var ErrDuplicateTransactionID = errors.New("duplicate transaction id")

const cacheTTL = 5 * time.Minute

// ListFilter narrows ListWithdrawals. Zero values mean "no constraint".
type ListFilter struct {
	Status   model.WithdrawalStatus
	DriverID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// RepositoryInterface restricts Repo methods so services can be unit-tested
// against a narrow surface.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	CreateWithdrawal(ctx context.Context, tx *gorm.DB, w *model.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, tx *gorm.DB, id string) (*model.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, f ListFilter) ([]model.WithdrawalRequest, error)
	TransitionStatus(ctx context.Context, tx *gorm.DB, id string, from, to model.WithdrawalStatus, updates map[string]interface{}) (bool, error)
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error
	GetCachedWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// CreateWithdrawal inserts a new request. A unique-index violation on
// transaction_id surfaces as ErrDuplicateTransactionID.
func (r *Repository) CreateWithdrawal(ctx context.Context, tx *gorm.DB, w *model.WithdrawalRequest) error {
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransactionID
		}
		return err
	}
	return nil
}

// GetWithdrawal loads one request by id.
func (r *Repository) GetWithdrawal(ctx context.Context, tx *gorm.DB, id string) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWithdrawals returns requests matching f, newest first.
func (r *Repository) ListWithdrawals(ctx context.Context, f ListFilter) ([]model.WithdrawalRequest, error) {
	q := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DriverID != "" {
		q = q.Where("driver_id = ?", f.DriverID)
	}
	if !f.From.IsZero() {
		q = q.Where("requested_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("requested_at <= ?", f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var out []model.WithdrawalRequest
	err := q.Order("requested_at desc").Find(&out).Error
	return out, err
}

// TransitionStatus performs the conditional check-and-set that guards every
// status change: the UPDATE is keyed on the expected prior status, so of N
// concurrent callers only the one that still observes `from` wins. Returns
// false when the guard did not match (request missing or already moved on).
func (r *Repository) TransitionStatus(ctx context.Context, tx *gorm.DB, id string, from, to model.WithdrawalStatus, updates map[string]interface{}) (bool, error) {
	cols := map[string]interface{}{"status": to}
	for k, v := range updates {
		cols[k] = v
	}
	res := tx.WithContext(ctx).
		Model(&model.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka, keyed by aggregate id so all events for one
// request land in one partition.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheWithdrawal writes the serialized record to Redis.
func (r *Repository) CacheWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, withdrawalKey(w.ID), payload, cacheTTL).Err()
}

// GetCachedWithdrawal reads a record back from Redis.
func (r *Repository) GetCachedWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	raw, err := r.rdb.Get(ctx, withdrawalKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var w model.WithdrawalRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func withdrawalKey(id string) string { return fmt.Sprintf("withdrawal:%s", id) }
