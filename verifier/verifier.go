// Package verifier proves a payment without any wallet callback by
// watching the chain for a self-transfer made after a recorded instant.
// The notBefore temporal fence is the safety property: an old self-transfer
// can never be replayed as fresh proof.
package verifier

import (
	"context"
	"math/big"
	"time"

	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/inspector"
	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/metrics"
	"github.com/kaspay/kaspay/scheduler"
	"github.com/kaspay/kaspay/types"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 200 // ~10 minutes at the default interval
)

// SelfTransferVerifier polls a chain inspector for a fenced self-transfer.
type SelfTransferVerifier struct {
	inspector    inspector.Inspector
	clock        clock.Clock
	log          logger.Logger
	metrics      metrics.Recorder
	pollInterval time.Duration
	maxAttempts  int
}

func New(ins inspector.Inspector, clk clock.Clock, log logger.Logger, rec metrics.Recorder) *SelfTransferVerifier {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log = logger.OrNoop(log)
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &SelfTransferVerifier{
		inspector:    ins,
		clock:        clk,
		log:          log,
		metrics:      rec,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
}

// SetBudget overrides the default poll interval and attempt budget for
// requests stamped by Begin.
func (v *SelfTransferVerifier) SetBudget(pollInterval time.Duration, maxAttempts int) {
	if pollInterval > 0 {
		v.pollInterval = pollInterval
	}
	if maxAttempts > 0 {
		v.maxAttempts = maxAttempts
	}
}

// Begin stamps the temporal fence and returns the request the caller must
// satisfy: a self-transfer of exactly expectedAmount sent strictly after
// the returned NotBefore instant.
func (v *SelfTransferVerifier) Begin(address string, expectedAmount *big.Int) types.VerificationRequest {
	return types.VerificationRequest{
		Address:        address,
		ExpectedAmount: expectedAmount,
		NotBefore:      types.Millis(v.clock.Now()),
		PollInterval:   v.pollInterval,
		MaxAttempts:    v.maxAttempts,
	}
}

// Wait polls until the transfer appears, the attempt budget is exhausted,
// or ctx is cancelled. Transient inspector errors are swallowed and
// retried; only an exhausted budget surfaces as a timeout. No state is
// committed here: the caller decides what a verified proof is worth.
func (v *SelfTransferVerifier) Wait(ctx context.Context, req types.VerificationRequest) (types.VerificationOutcome, error) {
	if err := types.ValidateVerificationRequest(&req); err != nil {
		return types.VerificationOutcome{Status: types.VerificationAborted}, err
	}

	start := time.Now()
	outcome := types.VerificationOutcome{Status: types.VerificationAborted}

	tick := scheduler.NewTicker(req.PollInterval, true)
	tick.Run(ctx, func(ctx context.Context) bool {
		outcome.Attempts++

		transfer, err := v.inspector.FindSelfTransfer(ctx, req.Address, req.ExpectedAmount, req.NotBefore)
		switch {
		case err != nil:
			// transient; retry within the attempt budget
			v.log.Debug("self-transfer poll failed", map[string]any{
				"attempt": outcome.Attempts,
				"error":   err.Error(),
			})
		case transfer != nil:
			if transfer.Timestamp < req.NotBefore {
				// predates the fence: replay, not proof
				v.log.Warn("ignoring self-transfer before fence", map[string]any{
					"txRef":     transfer.TxID,
					"timestamp": transfer.Timestamp,
					"notBefore": req.NotBefore,
				})
			} else if transfer.Amount != nil && transfer.Amount.Cmp(req.ExpectedAmount) == 0 {
				outcome.Status = types.VerificationVerified
				outcome.TxRef = transfer.TxID
				return false
			}
		}

		if outcome.Attempts >= req.MaxAttempts {
			outcome.Status = types.VerificationTimedOut
			return false
		}
		return true
	})

	v.metrics.ObserveLatency("self_transfer_wait", time.Since(start), map[string]string{"method": string(types.MethodKaspa)})
	v.metrics.IncCounter("self_transfer_"+string(outcome.Status), nil)

	if outcome.Status == types.VerificationTimedOut {
		return outcome, &types.Error{
			Code:    types.ErrVerificationTimeout,
			Message: "self-transfer did not appear within the attempt budget",
		}
	}
	return outcome, nil
}
