// Package biddingerrors defines the error taxonomy of the bidding core.
// Callers match sentinels with errors.Is and use KindOf to decide whether a
// failure is a hard rejection or something the client may retry.
package biddingerrors

import "errors"

// Input validation: rejected synchronously, never retried.
var (
	ErrInvalidAmount   = errors.New("invalid bid amount")
	ErrInvalidID       = errors.New("malformed identifier")
	ErrInvalidSchedule = errors.New("invalid auction schedule")
)

// Business rule violations: rejected synchronously with a reason.
var (
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrAuctionClosed     = errors.New("auction has ended")
	ErrBidTooLow         = errors.New("bid too low")
	ErrSelfBid           = errors.New("owner cannot bid on own auction")
	ErrNotOwner          = errors.New("only the auction owner may do this")
	ErrInvalidTransition = errors.New("invalid auction status transition")
	ErrNotEditable       = errors.New("auction can only be changed while pending")
)

// Contention: retryable by the caller.
var (
	ErrLockNotAcquired = errors.New("auction is busy, try again")
	ErrVersionConflict = errors.New("auction was modified concurrently, try again")
)

var ErrAuctionNotFound = errors.New("auction not found")

// Kind groups errors by how callers should react to them.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindBusinessRule
	KindContention
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindContention:
		return "contention"
	case KindNotFound:
		return "not_found"
	}
	return "infrastructure"
}

// KindOf classifies err.  Anything not recognised is infrastructure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInfrastructure
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidSchedule):
		return KindValidation
	case errors.Is(err, ErrLockNotAcquired), errors.Is(err, ErrVersionConflict):
		return KindContention
	case errors.Is(err, ErrAuctionNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuctionNotActive), errors.Is(err, ErrAuctionClosed),
		errors.Is(err, ErrBidTooLow), errors.Is(err, ErrSelfBid),
		errors.Is(err, ErrNotOwner), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotEditable):
		return KindBusinessRule
	}
	return KindInfrastructure
}

// IsRetryable reports whether the caller may resubmit the same request.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindContention
}
