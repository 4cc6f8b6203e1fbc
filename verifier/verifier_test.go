package verifier

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/inspector"
	"github.com/kaspay/kaspay/types"
)

const testAddress = "kaspa:qzself"

var (
	staleTxID = strings.Repeat("aa", 32)
	freshTxID = strings.Repeat("bb", 32)
)

// scriptedInspector replays one FindSelfTransfer result per poll, repeating
// the last entry once the script runs out.
type scriptedInspector struct {
	script []func() (*inspector.Transfer, error)
	calls  int
}

func (s *scriptedInspector) Balance(context.Context, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *scriptedInspector) FindSelfTransfer(context.Context, string, *big.Int, int64) (*inspector.Transfer, error) {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i]()
}

func nothing() (*inspector.Transfer, error) { return nil, nil }

func found(txID string, amount int64, ts int64) func() (*inspector.Transfer, error) {
	return func() (*inspector.Transfer, error) {
		return &inspector.Transfer{
			TxID:      txID,
			From:      testAddress,
			To:        testAddress,
			Amount:    big.NewInt(amount),
			Timestamp: ts,
		}, nil
	}
}

func newVerifier(ins inspector.Inspector, now int64) *SelfTransferVerifier {
	v := New(ins, clock.NewFake(time.UnixMilli(now)), nil, nil)
	v.SetBudget(time.Millisecond, 5)
	return v
}

func TestWaitVerifiesFreshTransfer(t *testing.T) {
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){
		nothing,
		found(freshTxID, 12_0000_0000, 100_500),
	}}
	v := newVerifier(ins, 100_000)
	req := v.Begin(testAddress, big.NewInt(12_0000_0000))

	outcome, err := v.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationVerified, outcome.Status)
	assert.Equal(t, freshTxID, outcome.TxRef)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestWaitIgnoresTransferBeforeFence(t *testing.T) {
	// same address, same exact amount, but sent before Begin was called
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){
		found(staleTxID, 12_0000_0000, 99_000),
		found(staleTxID, 12_0000_0000, 99_000),
		found(freshTxID, 12_0000_0000, 100_000), // exactly at the fence counts
	}}
	v := newVerifier(ins, 100_000)
	req := v.Begin(testAddress, big.NewInt(12_0000_0000))

	outcome, err := v.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationVerified, outcome.Status)
	assert.Equal(t, freshTxID, outcome.TxRef, "the pre-fence transfer must never become proof")
	assert.Equal(t, 3, outcome.Attempts)
}

func TestWaitIgnoresAmountMismatch(t *testing.T) {
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){
		found(staleTxID, 11_0000_0000, 100_500),
		found(freshTxID, 12_0000_0000, 100_500),
	}}
	v := newVerifier(ins, 100_000)
	req := v.Begin(testAddress, big.NewInt(12_0000_0000))

	outcome, err := v.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, freshTxID, outcome.TxRef)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestWaitTimesOutAfterAttemptBudget(t *testing.T) {
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){nothing}}
	v := newVerifier(ins, 100_000)
	req := v.Begin(testAddress, big.NewInt(12_0000_0000))

	outcome, err := v.Wait(context.Background(), req)
	assert.Equal(t, types.ErrVerificationTimeout, types.CodeOf(err))
	assert.Equal(t, types.VerificationTimedOut, outcome.Status)
	assert.Equal(t, 5, outcome.Attempts)
	assert.Equal(t, 5, ins.calls)
}

func TestWaitRetriesThroughTransientErrors(t *testing.T) {
	transient := func() (*inspector.Transfer, error) {
		return nil, &types.Error{Code: types.ErrTransientFetch, Message: "api unreachable"}
	}
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){
		transient,
		transient,
		found(freshTxID, 12_0000_0000, 100_500),
	}}
	v := newVerifier(ins, 100_000)
	req := v.Begin(testAddress, big.NewInt(12_0000_0000))

	outcome, err := v.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationVerified, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestWaitAbortsOnCancel(t *testing.T) {
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){nothing}}
	v := New(ins, clock.NewFake(time.UnixMilli(100_000)), nil, nil)
	v.SetBudget(50*time.Millisecond, 1000)
	req := v.Begin(testAddress, big.NewInt(12_0000_0000))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome, err := v.Wait(ctx, req)
	assert.NoError(t, err, "cancellation is not a failure")
	assert.Equal(t, types.VerificationAborted, outcome.Status)
}

func TestWaitRejectsInvalidRequest(t *testing.T) {
	ins := &scriptedInspector{script: []func() (*inspector.Transfer, error){nothing}}
	v := newVerifier(ins, 100_000)

	_, err := v.Wait(context.Background(), types.VerificationRequest{})
	require.Error(t, err)
	assert.Zero(t, ins.calls)
}

func TestBeginStampsFence(t *testing.T) {
	v := newVerifier(&scriptedInspector{script: []func() (*inspector.Transfer, error){nothing}}, 42_000)

	req := v.Begin(testAddress, big.NewInt(1))
	assert.Equal(t, int64(42_000), req.NotBefore)
	assert.Equal(t, time.Millisecond, req.PollInterval)
	assert.Equal(t, 5, req.MaxAttempts)
}
