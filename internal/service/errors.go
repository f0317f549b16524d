package service

import (
	"errors"
	"fmt"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/model"
)

// Failure kinds surfaced to callers. Presentation layers map these to status
// codes and show the message verbatim.
var (
	// ErrInvalidAmount means the amount is not positive or exceeds the
	// supplied available balance.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPayoutDetails means a required payout destination field is blank.
	ErrInvalidPayoutDetails = errors.New("invalid payout details")

	// ErrInvalidDecision means a disposition verdict other than approve or reject.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrMissingSettlementReference means settle was called without a reference.
	ErrMissingSettlementReference = errors.New("missing settlement reference")

	// ErrNotFound means no withdrawal request exists with the given id.
	ErrNotFound = errors.New("withdrawal request not found")

	// ErrInvalidTransition is the errors.Is target for InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageUnavailable wraps transient storage failures. Not retried
	// here beyond the single duplicate-id regeneration on create.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InvalidTransitionError reports the state the request was actually in and
// the state the caller tried to move it to.
type InvalidTransitionError struct {
	Current   model.WithdrawalStatus
	Attempted model.WithdrawalStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: request is %s, cannot move to %s", e.Current, e.Attempted)
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
