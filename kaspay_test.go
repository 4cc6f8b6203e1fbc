package kaspay

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/inspector"
	"github.com/kaspay/kaspay/store"
	"github.com/kaspay/kaspay/types"
	"github.com/kaspay/kaspay/wallet"
)

var engineTxID = strings.Repeat("c3", 32)

type stubKaspaProvider struct{}

func (stubKaspaProvider) GetAccounts(context.Context) ([]string, error) {
	return []string{"kaspa:qzpayer"}, nil
}

func (stubKaspaProvider) RequestAccounts(context.Context) ([]string, error) {
	return []string{"kaspa:qzpayer"}, nil
}

func (stubKaspaProvider) GetBalance(context.Context) (wallet.KaspaBalance, error) {
	return wallet.KaspaBalance{Total: 1000_0000_0000}, nil
}

func (stubKaspaProvider) SendKaspa(context.Context, string, int64) (any, error) {
	return engineTxID, nil
}

type stubInspector struct {
	transfer *inspector.Transfer
}

func (s *stubInspector) Balance(context.Context, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubInspector) FindSelfTransfer(context.Context, string, *big.Int, int64) (*inspector.Transfer, error) {
	return s.transfer, nil
}

func TestNewRequiresStorage(t *testing.T) {
	_, err := New(Config{})
	assert.Equal(t, types.ErrPersistence, types.CodeOf(err))
}

func TestEngineEndToEndPurchase(t *testing.T) {
	clk := clock.NewFake(time.UnixMilli(1_000))
	e, err := New(Config{
		KaspaProvider: stubKaspaProvider{},
		KV:            store.NewMemoryKV(),
		Recipients:    map[types.Method]string{types.MethodKaspa: "kaspa:qzshop"},
	}, WithClock(clk))
	require.NoError(t, err)

	var fromSubscription types.Entitlement
	unsubscribe := e.SubscribeEntitlement(func(ent types.Entitlement) {
		fromSubscription = ent
	})
	defer unsubscribe()

	plan, err := types.NewPlan(decimal.RequireFromString("0.5"), 24)
	require.NoError(t, err)
	require.NoError(t, e.SelectPlan(plan))
	require.NoError(t, e.SelectMethod(types.MethodKaspa))

	ent, err := e.Purchase(context.Background())
	require.NoError(t, err)

	assert.True(t, ent.IsActive)
	assert.Equal(t, engineTxID, ent.TxRef)
	assert.Equal(t, ent.ExpiresAt, fromSubscription.ExpiresAt)

	loaded, err := e.Entitlement()
	require.NoError(t, err)
	assert.Equal(t, ent.Version, loaded.Version)

	sess, ok := e.Sessions().Get(types.MethodKaspa)
	require.True(t, ok)
	assert.True(t, sess.Connected)
	assert.Equal(t, "kaspa:qzpayer", sess.Address)
}

func TestEngineSelfTransferCommits(t *testing.T) {
	clk := clock.NewFake(time.UnixMilli(50_000))
	ins := &stubInspector{}
	e, err := New(Config{
		KV:              store.NewMemoryKV(),
		Inspector:       ins,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
	}, WithClock(clk))
	require.NoError(t, err)

	amount := big.NewInt(12_0000_0000)
	req := e.BeginSelfTransfer("kaspa:qzself", amount)
	assert.Equal(t, int64(50_000), req.NotBefore)

	ins.transfer = &inspector.Transfer{
		TxID:      engineTxID,
		From:      "kaspa:qzself",
		To:        "kaspa:qzself",
		Amount:    amount,
		Timestamp: 51_000,
	}

	plan, err := types.NewPlan(decimal.RequireFromString("0.5"), 24)
	require.NoError(t, err)

	outcome, ent, err := e.AwaitSelfTransfer(context.Background(), req, plan)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationVerified, outcome.Status)
	assert.True(t, ent.IsActive)
	assert.Equal(t, engineTxID, ent.TxRef)
	assert.Equal(t, types.MethodKaspa, ent.Method)
	assert.Equal(t, int64(50_000)+24*time.Hour.Milliseconds(), ent.ExpiresAt)
}

func TestEngineSelfTransferMethodIsConfigurable(t *testing.T) {
	clk := clock.NewFake(time.UnixMilli(50_000))
	amount := new(big.Int)
	amount.SetString("12000000000000000000", 10) // wei
	ins := &stubInspector{transfer: &inspector.Transfer{
		TxID:      "0x" + engineTxID,
		From:      "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		To:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Amount:    amount,
		Timestamp: 51_000,
	}}

	e, err := New(Config{
		KV:                 store.NewMemoryKV(),
		Inspector:          ins,
		SelfTransferMethod: types.MethodEVM,
		PollInterval:       time.Millisecond,
		MaxPollAttempts:    5,
	}, WithClock(clk))
	require.NoError(t, err)

	plan, err := types.NewPlan(decimal.RequireFromString("0.5"), 24)
	require.NoError(t, err)

	req := e.BeginSelfTransfer("0x70997970C51812dc3A010C7d01b50e0d17dc79C8", amount)
	_, ent, err := e.AwaitSelfTransfer(context.Background(), req, plan)
	require.NoError(t, err)
	assert.Equal(t, types.MethodEVM, ent.Method)
}

func TestNewRejectsUnknownSelfTransferMethod(t *testing.T) {
	_, err := New(Config{
		KV:                 store.NewMemoryKV(),
		SelfTransferMethod: "solana",
	})
	assert.Equal(t, types.ErrInvalidState, types.CodeOf(err))
}

func TestEngineSelfTransferTimeoutCommitsNothing(t *testing.T) {
	e, err := New(Config{
		KV:              store.NewMemoryKV(),
		Inspector:       &stubInspector{}, // never finds anything
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 3,
	})
	require.NoError(t, err)

	req := e.BeginSelfTransfer("kaspa:qzself", big.NewInt(1_0000_0000))
	plan, err := types.NewPlan(decimal.RequireFromString("1"), 1)
	require.NoError(t, err)

	outcome, _, err := e.AwaitSelfTransfer(context.Background(), req, plan)
	assert.Equal(t, types.ErrVerificationTimeout, types.CodeOf(err))
	assert.Equal(t, types.VerificationTimedOut, outcome.Status)

	ent, loadErr := e.Entitlement()
	require.NoError(t, loadErr)
	assert.False(t, ent.IsActive)
	assert.Zero(t, ent.Version)
}

func TestEngineStartStop(t *testing.T) {
	e, err := New(Config{
		KV:           store.NewMemoryKV(),
		TickInterval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Start(ctx)
	e.Stop()
	e.Stop() // stopping twice is safe
}
