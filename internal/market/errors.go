package market

import "errors"

// Every precondition failure aborts the whole operation with no state
// mutation. None of these are transient; callers must resubmit with
// corrected inputs.
var (
	// ErrNotAuthorized is returned when the issuer-validity or admin check
	// fails, or a caller has no ownership entry for the asset.
	ErrNotAuthorized = errors.New("market: caller is not authorized")

	// ErrNotSeller is returned when someone other than the listing's
	// seller tries to cancel it.
	ErrNotSeller = errors.New("market: caller is not the listing seller")

	// ErrPaused is returned by every mutating operation while the
	// marketplace is paused.
	ErrPaused = errors.New("market: marketplace is paused")

	// ErrInvalidPayment is returned when a payment does not cover the
	// total cost, or the cost itself is not representable.
	ErrInvalidPayment = errors.New("market: payment does not cover total cost")

	// ErrNotFound is returned when a listing, escrow record, or ownership
	// ledger is absent.
	ErrNotFound = errors.New("market: not found")

	// ErrWrongKind is returned when an operation is applied to the wrong
	// asset kind.
	ErrWrongKind = errors.New("market: operation does not apply to this asset kind")

	// ErrInsufficientSupply is returned when a buy asks for more units
	// than the listing has available.
	ErrInsufficientSupply = errors.New("market: quantity exceeds available supply")

	// ErrInvalidQuantity is returned for zero or out-of-range quantities.
	ErrInvalidQuantity = errors.New("market: quantity must be positive and within supply")

	// ErrInvalidPrice is returned for a zero per-unit price on a
	// fractional listing.
	ErrInvalidPrice = errors.New("market: price per unit must be positive")

	// ErrPriceMismatch is returned when a sell-back's price conflicts
	// with the live listing's price.
	ErrPriceMismatch = errors.New("market: relist price conflicts with live listing")

	// ErrAlreadyListed is returned when an asset already has an active
	// listing or escrow record.
	ErrAlreadyListed = errors.New("market: asset is already listed")
)
