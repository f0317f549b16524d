package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/model"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/repo"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/txnid"
)

// Decision is an operator's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// WithdrawalService owns the payout request lifecycle: it is the only writer
// of status, transaction_id and processed_at. Every transition goes through a
// conditional update keyed on the expected prior status, so the service stays
// correct with any number of concurrent instances.
type WithdrawalService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewWithdrawalService returns WithdrawalService.
func NewWithdrawalService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *WithdrawalService {
	return &WithdrawalService{repo: r, log: logger}
}

// CreateInput carries everything a driver-facing caller supplies for a new
// request. AvailableBalance comes from the earnings collaborator at call
// time; the service neither computes nor caches it.
type CreateInput struct {
	DriverID          string
	RequestingUserID  string
	Amount            decimal.Decimal
	AvailableBalance  decimal.Decimal
	AccountNumber     string
	AccountHolderName string
	RoutingCode       string
}

// Create validates the input, assigns a fresh transaction identifier and
// persists the request in pending state. The payout destination is captured
// as submitted so the audit trail stays accurate even if the driver's stored
// bank details change later.
func (s *WithdrawalService) Create(ctx context.Context, in CreateInput) (*model.WithdrawalRequest, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	if in.Amount.GreaterThan(in.AvailableBalance) {
		return nil, fmt.Errorf("%w: amount %s exceeds available balance %s", ErrInvalidAmount, in.Amount, in.AvailableBalance)
	}
	if strings.TrimSpace(in.AccountNumber) == "" ||
		strings.TrimSpace(in.AccountHolderName) == "" ||
		strings.TrimSpace(in.RoutingCode) == "" {
		return nil, fmt.Errorf("%w: account number, holder name and routing code are all required", ErrInvalidPayoutDetails)
	}

	w := &model.WithdrawalRequest{
		ID:                uuid.NewString(),
		DriverID:          in.DriverID,
		RequestingUserID:  in.RequestingUserID,
		Amount:            in.Amount,
		AccountNumber:     in.AccountNumber,
		AccountHolderName: in.AccountHolderName,
		RoutingCode:       in.RoutingCode,
		Status:            model.StatusPending,
		TransactionID:     txnid.New(),
		RequestedAt:       time.Now().UTC(),
	}

	insert := func() error {
		return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.CreateWithdrawal(ctx, tx, w); err != nil {
				return err
			}
			return s.writeEvent(ctx, tx, w, model.EventWithdrawalRequested)
		})
	}

	err := insert()
	if errors.Is(err, repo.ErrDuplicateTransactionID) {
		// the generator lost the one-in-a-million race; regenerate and retry
		// exactly once, then surface the duplicate to the caller
		w.TransactionID = txnid.New()
		err = insert()
	}
	if err != nil {
		return nil, s.wrapStorage(err)
	}

	s.cache(ctx, w)
	s.log.Infof("withdrawal %s created driver=%s txn=%s amount=%s", w.ID, w.DriverID, w.TransactionID, w.Amount)
	return w, nil
}

// Disposition moves a pending request to approved or rejected and stamps
// processed_at. Of N concurrent calls against the same pending record exactly
// one wins; the rest observe the already-updated status.
func (s *WithdrawalService) Disposition(ctx context.Context, id string, decision Decision, operatorRemark string) (*model.WithdrawalRequest, error) {
	var target model.WithdrawalStatus
	var eventType string
	switch decision {
	case DecisionApprove:
		target, eventType = model.StatusApproved, model.EventWithdrawalApproved
	case DecisionReject:
		target, eventType = model.StatusRejected, model.EventWithdrawalRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	var out *model.WithdrawalRequest
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		updates := map[string]interface{}{"processed_at": &now}
		if operatorRemark != "" {
			updates["operator_remark"] = operatorRemark
		}
		ok, err := s.repo.TransitionStatus(ctx, tx, id, model.StatusPending, target, updates)
		if err != nil {
			return err
		}
		if !ok {
			return s.transitionConflict(ctx, tx, id, target)
		}
		w, err := s.repo.GetWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		out = w
		return s.writeEvent(ctx, tx, w, eventType)
	})
	if err != nil {
		return nil, s.wrapStorage(err)
	}

	s.cache(ctx, out)
	s.log.Infof("withdrawal %s %s txn=%s", out.ID, out.Status, out.TransactionID)
	return out, nil
}

// Settle records the confirmed external payout against an approved request
// and moves it to completed. The funds transfer itself happened outside;
// only its reference is stored here.
func (s *WithdrawalService) Settle(ctx context.Context, id, settlementReference, operatorRemark string) (*model.WithdrawalRequest, error) {
	if strings.TrimSpace(settlementReference) == "" {
		return nil, ErrMissingSettlementReference
	}

	var out *model.WithdrawalRequest
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"settlement_reference": settlementReference}
		if operatorRemark != "" {
			updates["operator_remark"] = operatorRemark
		}
		ok, err := s.repo.TransitionStatus(ctx, tx, id, model.StatusApproved, model.StatusCompleted, updates)
		if err != nil {
			return err
		}
		if !ok {
			return s.transitionConflict(ctx, tx, id, model.StatusCompleted)
		}
		w, err := s.repo.GetWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		out = w
		return s.writeEvent(ctx, tx, w, model.EventWithdrawalSettled)
	})
	if err != nil {
		return nil, s.wrapStorage(err)
	}

	s.cache(ctx, out)
	s.log.Infof("withdrawal %s settled ref=%s txn=%s", out.ID, settlementReference, out.TransactionID)
	return out, nil
}

// Get returns one request, trying the Redis cache first. The durable store
// stays authoritative; a cache miss or error falls through to it.
func (s *WithdrawalService) Get(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	if w, err := s.repo.GetCachedWithdrawal(ctx, id); err == nil {
		return w, nil
	}
	w, err := s.repo.GetWithdrawal(ctx, s.repo.DB(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.wrapStorage(err)
	}
	s.cache(ctx, w)
	return w, nil
}

// List returns requests matching the filter, requested_at descending.
func (s *WithdrawalService) List(ctx context.Context, f repo.ListFilter) ([]model.WithdrawalRequest, error) {
	out, err := s.repo.ListWithdrawals(ctx, f)
	if err != nil {
		return nil, s.wrapStorage(err)
	}
	return out, nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *WithdrawalService) Repo() repo.RepositoryInterface {
	return s.repo
}

// transitionConflict re-reads the record inside the same transaction to tell
// a missing request apart from one that already moved on.
func (s *WithdrawalService) transitionConflict(ctx context.Context, tx *gorm.DB, id string, attempted model.WithdrawalStatus) error {
	w, err := s.repo.GetWithdrawal(ctx, tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return &InvalidTransitionError{Current: w.Status, Attempted: attempted}
}

func (s *WithdrawalService) writeEvent(ctx context.Context, tx *gorm.DB, w *model.WithdrawalRequest, eventType string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"withdrawal_id":  w.ID,
		"driver_id":      w.DriverID,
		"transaction_id": w.TransactionID,
		"status":         w.Status,
		"amount":         w.Amount,
	})
	if err != nil {
		return err
	}
	evt := &model.OutboxEvent{
		Aggregate:   "withdrawal_request",
		AggregateID: w.ID,
		EventType:   eventType,
		Payload:     string(payload),
	}
	return s.repo.CreateOutboxEvent(ctx, tx, evt)
}

func (s *WithdrawalService) cache(ctx context.Context, w *model.WithdrawalRequest) {
	if err := s.repo.CacheWithdrawal(ctx, w); err != nil {
		s.log.Warn(err)
	}
}

// wrapStorage keeps taxonomy and cancellation errors as-is and folds
// everything else into ErrStorageUnavailable.
func (s *WithdrawalService) wrapStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotFound),
		errors.Is(err, repo.ErrDuplicateTransactionID),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
