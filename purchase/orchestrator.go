// Package purchase drives a payment from plan selection to an entitlement
// commit through a small state machine. All entitlement writes flow through
// the store's single write path; nothing here mutates expiry state directly.
package purchase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/metrics"
	"github.com/kaspay/kaspay/store"
	"github.com/kaspay/kaspay/txref"
	"github.com/kaspay/kaspay/types"
	"github.com/kaspay/kaspay/wallet"
)

// State is the orchestrator's position in the purchase flow.
type State string

const (
	StateIdle             State = "idle"
	StatePlanSelected     State = "plan_selected"
	StateMethodSelected   State = "method_selected"
	StateWalletConnecting State = "wallet_connecting"
	StateSubmitting       State = "submitting"
	StateNormalizing      State = "normalizing"
	StateCommitted        State = "committed"
)

// Config wires the orchestrator's collaborators.
type Config struct {
	Store      *store.EntitlementStore
	Adapters   map[types.Method]wallet.Adapter
	Recipients map[types.Method]string // fixed payment recipient per chain
	Clock      clock.Clock
	Logger     logger.Logger
	Metrics    metrics.Recorder
}

// Orchestrator is the single logical writer for payment commits.
type Orchestrator struct {
	store      *store.EntitlementStore
	adapters   map[types.Method]wallet.Adapter
	recipients map[types.Method]string
	clock      clock.Clock
	log        logger.Logger
	metrics    metrics.Recorder

	mu        sync.Mutex
	state     State
	plan      types.Plan
	method    types.Method
	adapter   wallet.Adapter
	autoRenew bool
	attemptID string
}

func New(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock{}
	}
	cfg.Logger = logger.OrNoop(cfg.Logger)
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		store:      cfg.Store,
		adapters:   cfg.Adapters,
		recipients: cfg.Recipients,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		state:      StateIdle,
	}
}

// State returns the current flow position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset clears all transient purchase state and returns to Idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reset()
}

func (o *Orchestrator) reset() {
	o.state = StateIdle
	o.plan = types.Plan{}
	o.method = ""
	o.adapter = nil
	o.autoRenew = false
	o.attemptID = ""
}

// SelectPlan moves Idle -> PlanSelected.
func (o *Orchestrator) SelectPlan(plan types.Plan) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return o.wrongState("select plan", StateIdle)
	}
	if err := types.Validate(&plan); err != nil {
		return err
	}
	o.plan = plan
	o.state = StatePlanSelected
	return nil
}

// SetAutoRenew records whether the resulting entitlement renews itself.
func (o *Orchestrator) SetAutoRenew(autoRenew bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoRenew = autoRenew
}

// SelectMethod moves PlanSelected -> MethodSelected and binds the adapter.
func (o *Orchestrator) SelectMethod(method types.Method) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePlanSelected && o.state != StateMethodSelected {
		return o.wrongState("select method", StatePlanSelected)
	}
	adapter, ok := o.adapters[method]
	if !ok || adapter == nil {
		return &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: fmt.Sprintf("no wallet adapter bound for method %s", method),
		}
	}
	o.method = method
	o.adapter = adapter
	o.state = StateMethodSelected
	return nil
}

// Purchase runs WalletConnecting -> Submitting -> Normalizing -> Committed.
// On recoverable failures the flow returns to MethodSelected so the user
// can retry; a normalization failure after the funds moved is reported with
// its own code so the UI can say "payment unconfirmed, contact support"
// rather than "payment failed".
func (o *Orchestrator) Purchase(ctx context.Context) (types.Entitlement, error) {
	o.mu.Lock()
	if o.state != StateMethodSelected {
		err := o.wrongState("purchase", StateMethodSelected)
		o.mu.Unlock()
		return types.Entitlement{}, err
	}
	o.attemptID = uuid.NewString()
	plan, method, adapter, autoRenew := o.plan, o.method, o.adapter, o.autoRenew
	o.state = StateWalletConnecting
	o.mu.Unlock()

	start := time.Now()
	labels := map[string]string{"method": string(method)}

	ent, err := o.run(ctx, plan, method, adapter, autoRenew)
	if err != nil {
		o.metrics.IncCounter("purchase_failed", labels)
		return types.Entitlement{}, err
	}

	o.metrics.IncCounter("purchase_committed", labels)
	o.metrics.ObserveLatency("purchase", time.Since(start), labels)
	return ent, nil
}

func (o *Orchestrator) run(
	ctx context.Context,
	plan types.Plan,
	method types.Method,
	adapter wallet.Adapter,
	autoRenew bool,
) (types.Entitlement, error) {
	address, err := adapter.Connect(ctx)
	if err != nil {
		o.backToMethodSelected()
		o.log.Warn("wallet connection failed", map[string]any{
			"attempt": o.attemptID,
			"method":  string(method),
			"error":   err.Error(),
		})
		return types.Entitlement{}, err
	}

	o.setState(StateSubmitting)

	// The EVM chain must be a recognized network before anything is sent.
	var network types.Network
	if detector, ok := adapter.(wallet.NetworkDetector); ok {
		network, err = detector.DetectNetwork(ctx)
		if err != nil {
			o.backToMethodSelected()
			if types.IsCode(err, types.ErrTransientFetch) {
				// an RPC hiccup is not a wrong network; keep it retryable
				return types.Entitlement{}, err
			}
			return types.Entitlement{}, &types.Error{
				Code:    types.ErrNetworkMismatch,
				Message: "connected chain is not a recognized network",
				Err:     err,
			}
		}
	}

	amount, err := plan.BaseUnits(method)
	if err != nil {
		o.backToMethodSelected()
		return types.Entitlement{}, err
	}

	balance, err := adapter.Balance(ctx)
	if err != nil {
		// the wallet is still the authority on funds; proceed and let it
		// reject the send if the balance really is short
		o.log.Warn("balance check skipped", map[string]any{
			"attempt": o.attemptID,
			"method":  string(method),
			"error":   err.Error(),
		})
	} else if balance.Cmp(amount) < 0 {
		o.backToMethodSelected()
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrInsufficientFunds,
			Message: fmt.Sprintf("balance %s is below the price %s", balance, amount),
		}
	}

	recipient, ok := o.recipients[method]
	if !ok || recipient == "" {
		o.backToMethodSelected()
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrInvalidState,
			Message: fmt.Sprintf("no payment recipient configured for method %s", method),
		}
	}

	raw, err := adapter.SendPayment(ctx, recipient, amount)
	if err != nil {
		o.backToMethodSelected()
		return types.Entitlement{}, err
	}

	o.setState(StateNormalizing)

	ref, err := txref.Normalize(raw, method)
	if err != nil {
		// the funds may already have moved; this is not "payment failed"
		o.backToMethodSelected()
		o.log.Error("payment sent but reference unparseable", map[string]any{
			"attempt": o.attemptID,
			"method":  string(method),
			"error":   err.Error(),
		})
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrPaymentUnconfirmed,
			Message: "payment submitted but unconfirmed, contact support",
			Err:     err,
		}
	}

	o.setState(StateCommitted)

	ent, err := Commit(o.store, o.clock, CommitParams{
		Plan:      plan,
		Method:    method,
		Network:   network,
		TxRef:     ref,
		Payer:     address,
		AutoRenew: autoRenew,
	})
	if err != nil {
		o.backToMethodSelected()
		return types.Entitlement{}, err
	}

	o.log.Info("payment committed", map[string]any{
		"attempt":   o.attemptID,
		"method":    string(method),
		"txRef":     ref,
		"expiresAt": ent.ExpiresAt,
	})

	o.Reset()
	return ent, nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) backToMethodSelected() {
	o.setState(StateMethodSelected)
}

func (o *Orchestrator) wrongState(op string, want State) error {
	return &types.Error{
		Code:    types.ErrInvalidState,
		Message: fmt.Sprintf("cannot %s in state %s (requires %s)", op, o.state, want),
	}
}
