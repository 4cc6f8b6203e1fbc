// Package renewal decides whether an expiring entitlement with autoRenew
// set can be re-purchased, asks the user, and re-enters the purchase flow
// with the original plan.
package renewal

import (
	"context"

	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/purchase"
	"github.com/kaspay/kaspay/store"
	"github.com/kaspay/kaspay/types"
	"github.com/kaspay/kaspay/wallet"
)

// ConfirmFunc asks the user to approve the renewal charge. It runs on the
// renewal path without blocking any UI thread; implementations typically
// bridge to a prompt and resolve asynchronously. Returning false declines.
type ConfirmFunc func(ctx context.Context, plan types.Plan) (bool, error)

// Config wires the coordinator's collaborators.
type Config struct {
	Store        *store.EntitlementStore
	Orchestrator *purchase.Orchestrator
	Sessions     *wallet.Sessions
	Adapters     map[types.Method]wallet.Adapter
	Confirm      ConfirmFunc
	Logger       logger.Logger
}

// Coordinator runs the auto-renewal protocol. It is invoked only by the
// expiry monitor when an entitlement with autoRenew set runs out.
type Coordinator struct {
	store        *store.EntitlementStore
	orchestrator *purchase.Orchestrator
	sessions     *wallet.Sessions
	adapters     map[types.Method]wallet.Adapter
	confirm      ConfirmFunc
	log          logger.Logger
}

func NewCoordinator(cfg Config) *Coordinator {
	cfg.Logger = logger.OrNoop(cfg.Logger)
	return &Coordinator{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		sessions:     cfg.Sessions,
		adapters:     cfg.Adapters,
		confirm:      cfg.Confirm,
		log:          cfg.Logger,
	}
}

// Renew checks eligibility, obtains user confirmation, and re-enters the
// purchase flow at plan selection with the original plan. Ineligibility or
// a declined prompt expires the entitlement immediately, the same write the
// monitor would otherwise perform.
func (c *Coordinator) Renew(ctx context.Context) (types.Entitlement, error) {
	ent, err := c.store.Load()
	if err != nil {
		return types.Entitlement{}, err
	}
	plan := ent.PlanSpec()

	if !c.eligible(ctx, ent) {
		return c.fail("renewal requirements not met")
	}

	if c.confirm == nil {
		return c.fail("no renewal confirmation channel configured")
	}
	approved, err := c.confirm(ctx, plan)
	if err != nil {
		c.log.Warn("renewal confirmation errored", map[string]any{"error": err.Error()})
		return c.fail("renewal confirmation unavailable")
	}
	if !approved {
		return c.fail("renewal declined")
	}

	c.orchestrator.Reset()
	if err := c.orchestrator.SelectPlan(plan); err != nil {
		return types.Entitlement{}, err
	}
	c.orchestrator.SetAutoRenew(true)
	if err := c.orchestrator.SelectMethod(ent.Method); err != nil {
		return types.Entitlement{}, err
	}
	return c.orchestrator.Purchase(ctx)
}

// eligible checks wallet connectivity, and for the EVM method also that
// the wallet still sits on the network the entitlement was bought on.
// The kaspa path deliberately does not check funds; the purchase flow
// surfaces insufficient balance when the renewal actually runs.
func (c *Coordinator) eligible(ctx context.Context, ent types.Entitlement) bool {
	sess, ok := c.sessions.Get(ent.Method)
	if !ok || !sess.Connected {
		return false
	}

	if ent.Method == types.MethodEVM {
		adapter, ok := c.adapters[types.MethodEVM]
		if !ok {
			return false
		}
		detector, ok := adapter.(wallet.NetworkDetector)
		if !ok {
			return false
		}
		network, err := detector.DetectNetwork(ctx)
		if err != nil || network != ent.Network {
			return false
		}
	}
	return true
}

func (c *Coordinator) fail(reason string) (types.Entitlement, error) {
	if _, _, err := c.store.Expire(); err != nil {
		c.log.Error("expiry write after failed renewal errored", map[string]any{"error": err.Error()})
	}
	return types.Entitlement{}, &types.Error{
		Code:    types.ErrAutoRenewalFailed,
		Message: reason,
	}
}
