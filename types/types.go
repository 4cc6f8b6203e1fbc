package types

import (
	"math/big"
	"time"
)

// Method identifies which chain a payment travels over.
type Method string

const (
	// MethodKaspa is the base UTXO chain, reached through a kasware-style
	// injected wallet extension. Amounts are sompi (1 KAS = 1e8 sompi).
	MethodKaspa Method = "kaspa"

	// MethodEVM is the EVM-compatible scaling chain, reached through an
	// EIP-1193 injected provider. Amounts are wei (1 KAS-equivalent = 1e18 wei).
	MethodEVM Method = "evm"
)

func (m Method) String() string {
	return string(m)
}

// Valid reports whether m names a supported payment method.
func (m Method) Valid() bool {
	return m == MethodKaspa || m == MethodEVM
}

// Decimals returns the base-unit precision of the method's chain.
func (m Method) Decimals() int32 {
	if m == MethodEVM {
		return 18
	}
	return 8
}

// WalletSession is the live state of a connected wallet. It is owned by the
// wallet adapter that produced it and never persisted.
type WalletSession struct {
	Method    Method   `json:"method"`
	Address   string   `json:"address"`
	Balance   *big.Int `json:"balance"` // base units
	Connected bool     `json:"connected"`
}

// VerificationStatus is the terminal state of a self-transfer verification.
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationTimedOut VerificationStatus = "timed_out"
	VerificationAborted  VerificationStatus = "aborted"
)

// VerificationRequest describes a self-transfer proof attempt. NotBefore is
// the temporal fence: only transfers timestamped at or after it count.
type VerificationRequest struct {
	Address        string        `json:"address" validate:"required"`
	ExpectedAmount *big.Int      `json:"expectedAmount" validate:"required"`
	NotBefore      int64         `json:"notBefore" validate:"gt=0"` // epoch millis
	PollInterval   time.Duration `json:"pollInterval" validate:"gt=0"`
	MaxAttempts    int           `json:"maxAttempts" validate:"gt=0"`
}

// VerificationOutcome is the result of running a VerificationRequest.
type VerificationOutcome struct {
	Status   VerificationStatus `json:"status"`
	TxRef    string             `json:"txRef,omitempty"`
	Attempts int                `json:"attempts"`
}

// Millis converts a time to the epoch-millisecond representation used by the
// persisted entitlement record.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
