package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/logger"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/model"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/repo"
)

var txnIDPattern = regexp.MustCompile(`^WD[0-9A-Z]+[0-9A-Z]{4}$`)

func newTestService(t *testing.T) (*WithdrawalService, context.Context) {
	// SQLite in-memory DB, one per test. A single connection makes
	// concurrent goroutines queue instead of hitting SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	assert.NoError(t, db.AutoMigrate(&model.WithdrawalRequest{}, &model.OutboxEvent{}))

	// Redis mock with no expectations: every cache call errors, which the
	// service treats as a miss. The durable store stays authoritative.
	rdb, _ := redismock.NewClientMock()

	writer := &kafka.Writer{} // not used here
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, writer, log)
	svc := NewWithdrawalService(repository, log)

	return svc, context.Background()
}

func validInput() CreateInput {
	return CreateInput{
		DriverID:          "drv-1",
		RequestingUserID:  "usr-1",
		Amount:            decimal.NewFromInt(500),
		AvailableBalance:  decimal.NewFromInt(1000),
		AccountNumber:     "001122334455",
		AccountHolderName: "Asha Kumari",
		RoutingCode:       "RIDE0004321",
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, ctx := newTestService(t)

	in := validInput()
	in.Amount = decimal.Zero
	_, err := svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	in = validInput()
	in.Amount = decimal.NewFromInt(-5)
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	in = validInput()
	in.Amount = decimal.NewFromInt(1001)
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	in = validInput()
	in.AccountHolderName = "   "
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidPayoutDetails)

	in = validInput()
	in.RoutingCode = ""
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidPayoutDetails)

	// nothing persisted on failed creates
	var count int64
	assert.NoError(t, svc.Repo().DB(ctx).Model(&model.WithdrawalRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreate_NewRequest(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, model.StatusPending, w.Status)
	assert.Regexp(t, txnIDPattern, w.TransactionID)
	assert.Nil(t, w.ProcessedAt)
	assert.Nil(t, w.SettlementReference)
	assert.False(t, w.RequestedAt.IsZero())

	// amount equal to balance is allowed
	in := validInput()
	in.Amount = decimal.NewFromInt(1000)
	_, err = svc.Create(ctx, in)
	assert.NoError(t, err)
}

func TestFullApprovalFlow(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, w.Status)

	approved, err := svc.Disposition(ctx, w.ID, DecisionApprove, "ok")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	assert.NotNil(t, approved.ProcessedAt)
	assert.NotNil(t, approved.OperatorRemark)
	assert.Equal(t, "ok", *approved.OperatorRemark)

	settled, err := svc.Settle(ctx, w.ID, "UTR123", "")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, settled.Status)
	assert.NotNil(t, settled.SettlementReference)
	assert.Equal(t, "UTR123", *settled.SettlementReference)

	// creation-time fields untouched by the transitions
	assert.Equal(t, w.TransactionID, settled.TransactionID)
	assert.True(t, settled.Amount.Equal(w.Amount))
	assert.Equal(t, w.AccountNumber, settled.AccountNumber)

	// one outbox event per successful mutation
	var events []model.OutboxEvent
	assert.NoError(t, svc.Repo().DB(ctx).Order("id").Find(&events).Error)
	assert.Len(t, events, 3)
	assert.Equal(t, model.EventWithdrawalRequested, events[0].EventType)
	assert.Equal(t, model.EventWithdrawalApproved, events[1].EventType)
	assert.Equal(t, model.EventWithdrawalSettled, events[2].EventType)
}

func TestRejectFlow(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)

	rejected, err := svc.Disposition(ctx, w.ID, DecisionReject, "insufficient docs")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.NotNil(t, rejected.ProcessedAt)

	// rejected is terminal
	_, err = svc.Settle(ctx, w.ID, "X", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Disposition(ctx, w.ID, DecisionApprove, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	var te *InvalidTransitionError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, model.StatusRejected, te.Current)
	assert.Equal(t, model.StatusApproved, te.Attempted)

	final, err := svc.Get(ctx, w.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusRejected, final.Status)
}

func TestSettle_Preconditions(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)

	// settle before approval
	_, err = svc.Settle(ctx, w.ID, "UTR9", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Disposition(ctx, w.ID, DecisionApprove, "")
	assert.NoError(t, err)

	// blank settlement reference leaves the record approved
	_, err = svc.Settle(ctx, w.ID, "   ", "")
	assert.ErrorIs(t, err, ErrMissingSettlementReference)
	cur, err := svc.Get(ctx, w.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusApproved, cur.Status)

	// double settlement
	_, err = svc.Settle(ctx, w.ID, "UTR9", "")
	assert.NoError(t, err)
	_, err = svc.Settle(ctx, w.ID, "UTR10", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	cur, err = svc.Get(ctx, w.ID)
	assert.NoError(t, err)
	assert.Equal(t, "UTR9", *cur.SettlementReference)
}

func TestDisposition_UnknownDecision(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)

	_, err = svc.Disposition(ctx, w.ID, Decision("maybe"), "")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	cur, err := svc.Get(ctx, w.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, cur.Status)
}

func TestDisposition_NotFound(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.Disposition(ctx, "no-such-id", DecisionApprove, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentDisposition_OneWinner(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			decision := DecisionApprove
			if n%2 == 1 {
				decision = DecisionReject
			}
			_, errs[n] = svc.Disposition(ctx, w.ID, decision, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one disposition should win")

	final, err := svc.Get(ctx, w.ID)
	assert.NoError(t, err)
	assert.Contains(t, []model.WithdrawalStatus{model.StatusApproved, model.StatusRejected}, final.Status)
}

func TestConcurrentSettle_OneWinner(t *testing.T) {
	svc, ctx := newTestService(t)

	w, err := svc.Create(ctx, validInput())
	assert.NoError(t, err)
	_, err = svc.Disposition(ctx, w.ID, DecisionApprove, "")
	assert.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Settle(ctx, w.ID, fmt.Sprintf("UTR-%d", n), "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one settlement should win")
}

func TestConcurrentCreate_UniqueTransactionIDs(t *testing.T) {
	svc, ctx := newTestService(t)

	const workers = 50
	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w, err := svc.Create(ctx, validInput())
			errs[n] = err
			if err == nil {
				ids[n] = w.TransactionID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, workers)
	for i := 0; i < workers; i++ {
		assert.NoError(t, errs[i])
		assert.Regexp(t, txnIDPattern, ids[i])
		_, dup := seen[ids[i]]
		assert.False(t, dup, "transaction id %s issued twice", ids[i])
		seen[ids[i]] = struct{}{}
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	svc, ctx := newTestService(t)

	mk := func(driver string) *model.WithdrawalRequest {
		in := validInput()
		in.DriverID = driver
		w, err := svc.Create(ctx, in)
		assert.NoError(t, err)
		time.Sleep(5 * time.Millisecond) // distinct requested_at for ordering
		return w
	}

	a := mk("drv-1")
	b := mk("drv-2")
	c := mk("drv-1")

	_, err := svc.Disposition(ctx, b.ID, DecisionReject, "")
	assert.NoError(t, err)

	all, err := svc.List(ctx, repo.ListFilter{})
	assert.NoError(t, err)
	assert.Len(t, all, 3)
	// newest first
	assert.Equal(t, c.ID, all[0].ID)
	assert.Equal(t, a.ID, all[2].ID)

	drv1, err := svc.List(ctx, repo.ListFilter{DriverID: "drv-1"})
	assert.NoError(t, err)
	assert.Len(t, drv1, 2)

	pending, err := svc.List(ctx, repo.ListFilter{Status: model.StatusPending})
	assert.NoError(t, err)
	assert.Len(t, pending, 2)

	rejected, err := svc.List(ctx, repo.ListFilter{Status: model.StatusRejected, DriverID: "drv-2"})
	assert.NoError(t, err)
	assert.Len(t, rejected, 1)
	assert.Equal(t, b.ID, rejected[0].ID)

	limited, err := svc.List(ctx, repo.ListFilter{Limit: 1})
	assert.NoError(t, err)
	assert.Len(t, limited, 1)
	assert.Equal(t, c.ID, limited[0].ID)
}
