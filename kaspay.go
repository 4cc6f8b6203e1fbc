// Package kaspay implements a client-side payment verification and
// time-boxed entitlement engine over two chains: the Kaspa base chain and
// an EVM-compatible scaling chain, both reached through injected wallet
// providers. It holds no server-side state: its guarantees are bounded by
// what the host and the queried chain services report.
package kaspay

import (
	"context"
	"math/big"
	"time"

	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/expiry"
	"github.com/kaspay/kaspay/inspector"
	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/metrics"
	"github.com/kaspay/kaspay/purchase"
	"github.com/kaspay/kaspay/renewal"
	"github.com/kaspay/kaspay/scheduler"
	"github.com/kaspay/kaspay/store"
	"github.com/kaspay/kaspay/types"
	"github.com/kaspay/kaspay/verifier"
	"github.com/kaspay/kaspay/wallet"
)

// Config wires the engine to its host environment: the injected wallet
// providers, the chain inspector, the persistence surface, and the fixed
// payment recipients.
type Config struct {
	KaspaProvider wallet.KaspaProvider
	EVMProvider   wallet.EVMProvider
	Inspector     inspector.Inspector
	KV            store.KV

	// Recipients maps each method to the address payments are sent to.
	Recipients map[types.Method]string

	// SelfTransferMethod is the chain Inspector watches, recorded on
	// entitlements committed through the self-transfer flow. Defaults to
	// MethodKaspa.
	SelfTransferMethod types.Method

	TickInterval    time.Duration // expiry tick, default 1s
	PollInterval    time.Duration // self-transfer poll, default 3s
	MaxPollAttempts int           // self-transfer budget, default 200

	BalanceRefreshInterval time.Duration // 0 disables the refresh loop
}

// Engine is the assembled entitlement engine.
type Engine struct {
	cfg      Config
	log      logger.Logger
	metrics  metrics.Recorder
	clock    clock.Clock
	confirm  renewal.ConfirmFunc
	remain   func(expiry.Remaining)
	expired  func()
	sessions *wallet.Sessions
	adapters map[types.Method]wallet.Adapter

	store        *store.EntitlementStore
	orchestrator *purchase.Orchestrator
	monitor      *expiry.Monitor
	coordinator  *renewal.Coordinator
	verifier     *verifier.SelfTransferVerifier

	unwatch       func()
	balanceTicker *scheduler.Ticker
}

// New assembles the engine. The KV surface is required; wallet providers
// and the inspector may be nil when the corresponding entry point is not
// used (a missing provider surfaces as WalletNotFound at connect time).
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.KV == nil {
		return nil, &types.Error{
			Code:    types.ErrPersistence,
			Message: "a key-value store is required",
		}
	}
	if cfg.SelfTransferMethod == "" {
		cfg.SelfTransferMethod = types.MethodKaspa
	}
	if !cfg.SelfTransferMethod.Valid() {
		return nil, &types.Error{
			Code:    types.ErrInvalidState,
			Message: "unsupported self-transfer method: " + cfg.SelfTransferMethod.String(),
		}
	}

	e := &Engine{
		cfg:     cfg,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		clock:   clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.sessions = wallet.NewSessions()
	e.adapters = map[types.Method]wallet.Adapter{
		types.MethodKaspa: wallet.NewKaspaAdapter(cfg.KaspaProvider, e.sessions, e.log),
		types.MethodEVM:   wallet.NewEVMAdapter(cfg.EVMProvider, e.sessions, e.log),
	}

	e.store = store.New(cfg.KV, e.log)
	e.orchestrator = purchase.New(purchase.Config{
		Store:      e.store,
		Adapters:   e.adapters,
		Recipients: cfg.Recipients,
		Clock:      e.clock,
		Logger:     e.log,
		Metrics:    e.metrics,
	})
	e.coordinator = renewal.NewCoordinator(renewal.Config{
		Store:        e.store,
		Orchestrator: e.orchestrator,
		Sessions:     e.sessions,
		Adapters:     e.adapters,
		Confirm:      e.confirm,
		Logger:       e.log,
	})
	e.monitor = expiry.NewMonitor(expiry.Config{
		Store:        e.store,
		Renewer:      e.coordinator,
		Clock:        e.clock,
		Logger:       e.log,
		Metrics:      e.metrics,
		TickInterval: cfg.TickInterval,
		OnRemaining:  e.remain,
		OnExpired:    e.expired,
	})

	e.verifier = verifier.New(cfg.Inspector, e.clock, e.log, e.metrics)
	e.verifier.SetBudget(cfg.PollInterval, cfg.MaxPollAttempts)

	return e, nil
}

// Entitlement returns the current persisted record.
func (e *Engine) Entitlement() (types.Entitlement, error) {
	return e.store.Load()
}

// SubscribeEntitlement registers a change listener; consumers react to
// change events instead of re-reading storage on their own timers.
func (e *Engine) SubscribeEntitlement(l store.Listener) (unsubscribe func()) {
	return e.store.Subscribe(l)
}

// Sessions exposes wallet session state and its observer channel.
func (e *Engine) Sessions() *wallet.Sessions {
	return e.sessions
}

// SelectPlan starts a purchase attempt.
func (e *Engine) SelectPlan(plan types.Plan) error {
	return e.orchestrator.SelectPlan(plan)
}

// SetAutoRenew marks the pending purchase as self-renewing.
func (e *Engine) SetAutoRenew(autoRenew bool) {
	e.orchestrator.SetAutoRenew(autoRenew)
}

// SelectMethod binds the payment method for the pending purchase.
func (e *Engine) SelectMethod(method types.Method) error {
	return e.orchestrator.SelectMethod(method)
}

// Purchase drives the pending purchase to a committed entitlement.
func (e *Engine) Purchase(ctx context.Context) (types.Entitlement, error) {
	return e.orchestrator.Purchase(ctx)
}

// PurchaseState reports the orchestrator's position in the flow.
func (e *Engine) PurchaseState() purchase.State {
	return e.orchestrator.State()
}

// ResetPurchase abandons a pending purchase attempt.
func (e *Engine) ResetPurchase() {
	e.orchestrator.Reset()
}

// Start launches the expiry monitor and, if configured, the balance
// refresh loop. Committed purchases restart a stopped monitor.
func (e *Engine) Start(ctx context.Context) {
	e.unwatch = e.monitor.Watch(ctx)
	e.monitor.Start(ctx)

	if e.cfg.BalanceRefreshInterval > 0 {
		e.balanceTicker = scheduler.NewTicker(e.cfg.BalanceRefreshInterval, true)
		e.balanceTicker.Go(ctx, e.refreshBalances)
	}
}

// Stop halts all polling loops. The entitlement record is untouched.
func (e *Engine) Stop() {
	e.monitor.Stop()
	if e.balanceTicker != nil {
		e.balanceTicker.Stop()
	}
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
}

func (e *Engine) refreshBalances(ctx context.Context) bool {
	for method, adapter := range e.adapters {
		sess, ok := e.sessions.Get(method)
		if !ok || !sess.Connected {
			continue
		}
		if _, err := adapter.Balance(ctx); err != nil {
			e.log.Debug("balance refresh failed", map[string]any{
				"method": string(method),
				"error":  err.Error(),
			})
		}
	}
	return true
}

// BeginSelfTransfer stamps the temporal fence for a wallet-callback-free
// payment proof. The caller must perform a self-transfer of exactly
// expectedAmount after this call returns.
func (e *Engine) BeginSelfTransfer(address string, expectedAmount *big.Int) types.VerificationRequest {
	return e.verifier.Begin(address, expectedAmount)
}

// AwaitSelfTransfer polls the chain for the fenced self-transfer and, on
// success, commits the proof through the same entitlement commit path the
// wallet purchase flow uses.
func (e *Engine) AwaitSelfTransfer(
	ctx context.Context,
	req types.VerificationRequest,
	plan types.Plan,
) (types.VerificationOutcome, types.Entitlement, error) {
	outcome, err := e.verifier.Wait(ctx, req)
	if err != nil || outcome.Status != types.VerificationVerified {
		return outcome, types.Entitlement{}, err
	}

	ent, err := purchase.Commit(e.store, e.clock, purchase.CommitParams{
		Plan:   plan,
		Method: e.cfg.SelfTransferMethod,
		TxRef:  outcome.TxRef,
		Payer:  req.Address,
	})
	if err != nil {
		return outcome, types.Entitlement{}, err
	}
	return outcome, ent, nil
}
