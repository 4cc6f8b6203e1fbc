package purchase

import (
	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/store"
	"github.com/kaspay/kaspay/types"
)

// CommitParams describes a confirmed payment to record.
type CommitParams struct {
	Plan      types.Plan
	Method    types.Method
	Network   types.Network // EVM only
	TxRef     string
	Payer     string
	AutoRenew bool
}

// Commit writes a confirmed payment into the entitlement record. An active
// entitlement is extended from its current expiry, never reset from now;
// an inactive one starts fresh. Both the wallet purchase flow and verified
// self-transfer proofs commit through here.
func Commit(s *store.EntitlementStore, clk clock.Clock, p CommitParams) (types.Entitlement, error) {
	now := types.Millis(clk.Now())
	durationMs := p.Plan.Duration().Milliseconds()

	return s.Update(func(e *types.Entitlement) error {
		if e.IsActive {
			e.ExpiresAt += durationMs
		} else {
			e.ExpiresAt = now + durationMs
		}
		e.IsActive = true
		e.AutoRenew = p.AutoRenew
		e.Method = p.Method
		e.Network = p.Network
		e.TxRef = p.TxRef
		e.PayerAddress = p.Payer
		e.HourlyRate = p.Plan.HourlyRate
		e.DurationHours = p.Plan.DurationHours
		return nil
	})
}
