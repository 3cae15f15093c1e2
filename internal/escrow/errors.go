package escrow

import (
	"errors"
	"fmt"
)

// Typed, recoverable failures. Each of these is returned before any state
// write, so a failing call is a clean no-op.
var (
	ErrAmountUnavailable   = errors.New("escrow: amount unavailable")
	ErrInsufficientFunds   = errors.New("escrow: insufficient funds")
	ErrListingLimitReached = errors.New("escrow: listing limit reached")
	ErrListingNotFound     = errors.New("escrow: listing not found")
	ErrNotAVendor          = errors.New("escrow: listing can only be created by a vendor")
	ErrOrderCancelled      = errors.New("escrow: order cancelled")
	ErrOrderFinalised      = errors.New("escrow: order finalised")
	ErrOrderNotFound       = errors.New("escrow: order not found")
	ErrUnauthorised        = errors.New("escrow: unauthorised")
	ErrVendorAlreadyExists = errors.New("escrow: vendor already exists")
)

// ErrNotInitialised is returned by Open when the store holds no admin record,
// i.e. New was never run against it.
var ErrNotInitialised = errors.New("escrow: state not initialised")

// TransferFailedError is the fatal failure tier: the native transfer was
// refused after all validation passed. It is distinct from the recoverable
// errors above: the whole transaction is aborted and the engine guarantees
// nothing was committed, so the listing balance still covers the amount.
type TransferFailedError struct {
	ListingID uint32
	Vendor    AccountID
	Amount    uint64
	Err       error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("escrow: native transfer of %d to %s for listing %d failed: %v",
		e.Amount, e.Vendor, e.ListingID, e.Err)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }
