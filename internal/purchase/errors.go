package purchase

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a purchase failure at the client boundary. This
// taxonomy is distinct from the gateway's verification status codes and the
// two are never conflated when surfaced upward.
type ErrorCode string

const (
	ErrAlreadyOwned       ErrorCode = "already_owned"
	ErrUserCancelled      ErrorCode = "user_cancelled"
	ErrProductUnavailable ErrorCode = "product_unavailable"
	ErrNetwork            ErrorCode = "network_error"
	ErrUnknown            ErrorCode = "unknown"
)

// ErrNotConnected is returned when a purchase is attempted before Connect.
var ErrNotConnected = errors.New("store connection not initialized")

// PurchaseError is a classified purchase failure. Raw keeps the platform's
// original error string for diagnostics; it is never shown to users.
type PurchaseError struct {
	Code ErrorCode
	Raw  string
	Err  error
}

func (e *PurchaseError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("purchase failed (%s): %s", e.Code, e.Raw)
	}
	return fmt.Sprintf("purchase failed (%s)", e.Code)
}

func (e *PurchaseError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry with backoff. Only
// network-class failures qualify; semantic failures are terminal.
func (e *PurchaseError) Retryable() bool {
	return e.Code == ErrNetwork
}

// Message returns the short human-readable reason for the UI layer, derived
// from the taxonomy rather than the raw platform string.
func (e *PurchaseError) Message() string {
	switch e.Code {
	case ErrAlreadyOwned:
		return "You already own this subscription."
	case ErrUserCancelled:
		return "Purchase was cancelled."
	case ErrProductUnavailable:
		return "This subscription is currently unavailable."
	case ErrNetwork:
		return "Network problem during purchase. Please try again."
	default:
		return "Purchase could not be completed. Please try again later."
	}
}

// StoreError is the raw error shape reported by the platform store bridge.
type StoreError struct {
	Code        string
	Description string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error %s: %s", e.Code, e.Description)
}

// Platform store error codes recognized by the taxonomy mapping.
const (
	storeCodeAlreadyOwned    = "E_ALREADY_OWNED"
	storeCodeUserCancelled   = "E_USER_CANCELLED"
	storeCodeItemUnavailable = "E_ITEM_UNAVAILABLE"
	storeCodeNetwork         = "E_NETWORK_ERROR"
)

// classifyStoreError maps a platform store failure onto the purchase error
// taxonomy. Unrecognized codes map to ErrUnknown with the raw code kept,
// never silently swallowed.
func classifyStoreError(err error) *PurchaseError {
	var se *StoreError
	if errors.As(err, &se) {
		switch se.Code {
		case storeCodeAlreadyOwned:
			return &PurchaseError{Code: ErrAlreadyOwned, Raw: se.Description, Err: err}
		case storeCodeUserCancelled:
			return &PurchaseError{Code: ErrUserCancelled, Raw: se.Description, Err: err}
		case storeCodeItemUnavailable:
			return &PurchaseError{Code: ErrProductUnavailable, Raw: se.Description, Err: err}
		case storeCodeNetwork:
			return &PurchaseError{Code: ErrNetwork, Raw: se.Description, Err: err}
		default:
			return &PurchaseError{Code: ErrUnknown, Raw: se.Code + ": " + se.Description, Err: err}
		}
	}
	return &PurchaseError{Code: ErrUnknown, Raw: err.Error(), Err: err}
}
