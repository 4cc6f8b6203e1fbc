package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entitlement is the persisted subscription record. It is created on the
// first successful payment commit, extended additively by renewals, and
// reset to the inactive shape by the expiry monitor. It is never deleted.
//
// Version increases by one on every write; writers must present the version
// they read so concurrent writers (for example two browser tabs) cannot
// silently overwrite each other.
type Entitlement struct {
	IsActive      bool            `json:"isActive"`
	ExpiresAt     int64           `json:"expiresAt"` // epoch millis, 0 when expired
	AutoRenew     bool            `json:"autoRenew"`
	Method        Method          `json:"paymentMethod,omitempty"`
	Network       Network         `json:"network,omitempty"` // EVM only
	TxRef         string          `json:"txRef,omitempty"`
	PayerAddress  string          `json:"payerAddress,omitempty"`
	HourlyRate    decimal.Decimal `json:"hourlyRate"`
	DurationHours int             `json:"durationHours,omitempty"`
	Version       int64           `json:"version"`
}

// ActiveAt reports whether the entitlement grants access at the given
// instant.
func (e Entitlement) ActiveAt(now time.Time) bool {
	return e.IsActive && e.ExpiresAt > Millis(now)
}

// PlanSpec reconstructs the plan the entitlement was purchased with, used
// to re-enter the purchase flow on auto-renewal.
func (e Entitlement) PlanSpec() Plan {
	return Plan{HourlyRate: e.HourlyRate, DurationHours: e.DurationHours}
}

// Expire resets the record to the inactive shape. Identity fields (method,
// payer, plan) survive so a later renewal can reuse them.
func (e *Entitlement) Expire() {
	e.IsActive = false
	e.ExpiresAt = 0
	e.AutoRenew = false
}
