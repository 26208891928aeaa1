package appstore

import "fmt"

// App Store verifyReceipt status codes. The numeric values are a fixed
// external contract and must be preserved as-is.
const (
	StatusOK                   = 0     // receipt is valid
	StatusMalformedReceipt     = 21002 // receipt-data property was malformed or missing
	StatusAuthFailed           = 21003 // receipt could not be authenticated
	StatusSharedSecretMismatch = 21004 // shared secret does not match the account's secret
	StatusServerUnavailable    = 21005 // verification server temporarily unavailable
	StatusSubscriptionExpired  = 21006 // receipt valid but the subscription has expired
	StatusSandboxReceipt       = 21007 // sandbox receipt sent to production
	StatusProductionReceipt    = 21008 // production receipt sent to sandbox
)

// StatusMessage returns a short description for a verification status code.
// Unknown codes keep the raw value for diagnostics.
func StatusMessage(status int) string {
	switch status {
	case StatusOK:
		return "receipt is valid"
	case StatusMalformedReceipt:
		return "malformed receipt data"
	case StatusAuthFailed:
		return "receipt could not be authenticated"
	case StatusSharedSecretMismatch:
		return "shared secret mismatch"
	case StatusServerUnavailable:
		return "verification server temporarily unavailable"
	case StatusSubscriptionExpired:
		return "receipt valid but subscription expired"
	case StatusSandboxReceipt:
		return "sandbox receipt sent to production"
	case StatusProductionReceipt:
		return "production receipt sent to sandbox"
	default:
		return fmt.Sprintf("unknown verification status %d", status)
	}
}

// StatusRetryable reports whether a status code represents a transient
// upstream condition the caller may retry with backoff. Every other
// non-zero status is a terminal, semantic failure.
func StatusRetryable(status int) bool {
	return status == StatusServerUnavailable
}

// VerificationError is a semantic verification failure carrying the
// upstream status code. It must never be retried by the caller unless
// Retryable reports true.
type VerificationError struct {
	Status int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("receipt verification failed with status %d: %s", e.Status, StatusMessage(e.Status))
}

// Retryable reports whether the failure is transient on the upstream side.
func (e *VerificationError) Retryable() bool {
	return StatusRetryable(e.Status)
}

// NetworkError is a transport-level failure (timeout, connection reset) on
// one verification leg. It is distinct from a semantically invalid receipt:
// callers retry these with backoff and must never treat them as terminal.
type NetworkError struct {
	Environment Environment
	Err         error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("verification request to %s environment failed: %v", e.Environment, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
