package types

import "errors"

// Error codes. Transient fetch errors are absorbed and retried inside
// polling loops; every other code is terminal to the current attempt.
const (
	ErrWalletNotFound      = "wallet_not_found"
	ErrUserRejected        = "user_rejected"
	ErrInsufficientFunds   = "insufficient_funds"
	ErrNetworkMismatch     = "network_mismatch"
	ErrMalformedTxRef      = "malformed_transaction_reference"
	ErrPaymentUnconfirmed  = "payment_unconfirmed"
	ErrVerificationTimeout = "verification_timeout"
	ErrTransientFetch      = "transient_fetch_error"
	ErrPersistence         = "persistence_error"
	ErrVersionConflict     = "version_conflict"
	ErrAutoRenewalFailed   = "auto_renewal_failed"
	ErrInvalidPlan         = "invalid_plan"
	ErrInvalidState        = "invalid_state"
)

// Error carries a machine-readable code alongside the message. The code is
// what callers branch on; Err preserves the cause for logging.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from err, or "" if err carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
