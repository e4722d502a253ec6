package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidState is returned when the total account valuation is not
	// positive, making the allocation ratio undefined.
	ErrInvalidState = errors.New("account total valuation is not positive")

	// ErrNoBalance is returned when neither the coin nor the base currency
	// has a positive balance. Unrecoverable account state, never retried.
	ErrNoBalance = errors.New("neither coin has a balance")

	// ErrUnsupportedSymbol is returned when the coin is not configured for
	// the selected exchange. Fails before any network call.
	ErrUnsupportedSymbol = errors.New("symbol is not supported")

	// ErrUnsupportedOperation marks an optional capability a venue does not
	// provide (best bid/ask, deposit history). Callers fall back or skip.
	ErrUnsupportedOperation = errors.New("operation is not supported by this exchange")
)

// APIError is a transport, auth or exchange-side rejection. Fatal for the
// current run; order placement is never retried because a blind retry of a
// limit order risks duplicate fills.
type APIError struct {
	Exchange string
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error %s: %s", e.Exchange, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Exchange, e.Message)
}

// StoreError wraps a point-store read or write failure. A missing checkpoint
// is not a StoreError: only a reachable-but-empty store degrades to "no
// checkpoint found".
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("point store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
