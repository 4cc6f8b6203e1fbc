package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/types"
)

// EVMProvider mirrors an EIP-1193 injected provider. A nil provider means
// no wallet extension is present.
type EVMProvider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// On subscribes to provider events ("chainChanged", "accountsChanged").
	On(event string, handler func(payload json.RawMessage))
}

// EVMAdapter adapts an EIP-1193 provider to the Adapter contract. It
// re-runs network detection and connection whenever the provider reports a
// chain or account change.
type EVMAdapter struct {
	provider EVMProvider
	sessions *Sessions
	log      logger.Logger

	mu      sync.Mutex
	network types.Network // last recognized network, "" if none
}

func NewEVMAdapter(provider EVMProvider, sessions *Sessions, log logger.Logger) *EVMAdapter {
	log = logger.OrNoop(log)
	a := &EVMAdapter{provider: provider, sessions: sessions, log: log}

	if provider != nil {
		provider.On("chainChanged", func(json.RawMessage) {
			if _, err := a.DetectNetwork(context.Background()); err != nil {
				a.log.Warn("chain changed to unrecognized network", map[string]any{"error": err.Error()})
			}
		})
		provider.On("accountsChanged", func(payload json.RawMessage) {
			var accounts []string
			if err := json.Unmarshal(payload, &accounts); err == nil && len(accounts) == 0 {
				a.sessions.Disconnect(types.MethodEVM)
				return
			}
			if _, err := a.Connect(context.Background()); err != nil {
				a.log.Warn("reconnect after account change failed", map[string]any{"error": err.Error()})
			}
		})
	}
	return a
}

func (a *EVMAdapter) Method() types.Method {
	return types.MethodEVM
}

// DetectNetwork asks the provider for its chain id and resolves it against
// the recognized network table.
func (a *EVMAdapter) DetectNetwork(ctx context.Context) (types.Network, error) {
	if a.provider == nil {
		return "", &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "evm wallet extension is not installed",
		}
	}

	raw, err := a.provider.Request(ctx, "eth_chainId")
	if err != nil {
		return "", &types.Error{
			Code:    types.ErrTransientFetch,
			Message: "eth_chainId query failed",
			Err:     err,
		}
	}
	var chainID string
	if err := json.Unmarshal(raw, &chainID); err != nil {
		return "", &types.Error{
			Code:    types.ErrNetworkMismatch,
			Message: "provider returned an undecodable chain id",
			Err:     err,
		}
	}

	network, ok := types.NetworkByChainID(chainID)
	if !ok {
		a.setNetwork("")
		return "", &types.Error{
			Code:    types.ErrNetworkMismatch,
			Message: fmt.Sprintf("chain id %s is not a recognized network", chainID),
		}
	}
	a.setNetwork(network)
	return network, nil
}

func (a *EVMAdapter) setNetwork(n types.Network) {
	a.mu.Lock()
	a.network = n
	a.mu.Unlock()
}

func (a *EVMAdapter) Connect(ctx context.Context) (string, error) {
	if a.provider == nil {
		return "", &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "evm wallet extension is not installed",
		}
	}

	raw, err := a.provider.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return "", rejected("evm wallet connection refused", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", &types.Error{
			Code:    types.ErrUserRejected,
			Message: "provider returned an undecodable account list",
			Err:     err,
		}
	}
	if len(accounts) == 0 {
		return "", &types.Error{
			Code:    types.ErrUserRejected,
			Message: "evm wallet returned no accounts",
		}
	}
	address := accounts[0]
	if !common.IsHexAddress(address) {
		return "", &types.Error{
			Code:    types.ErrUserRejected,
			Message: fmt.Sprintf("provider returned invalid address %q", address),
		}
	}

	sess := types.WalletSession{
		Method:    types.MethodEVM,
		Address:   address,
		Connected: true,
	}
	if bal, err := a.balanceOf(ctx, address); err == nil {
		sess.Balance = bal
	}
	a.sessions.put(sess)

	a.log.Info("evm wallet connected", map[string]any{"address": address})
	return address, nil
}

func (a *EVMAdapter) Balance(ctx context.Context) (*big.Int, error) {
	sess, ok := a.sessions.Get(types.MethodEVM)
	if !ok || !sess.Connected {
		return nil, &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "evm wallet is not connected",
		}
	}

	bal, err := a.balanceOf(ctx, sess.Address)
	if err != nil {
		return nil, err
	}
	sess.Balance = bal
	a.sessions.put(sess)
	return bal, nil
}

func (a *EVMAdapter) balanceOf(ctx context.Context, address string) (*big.Int, error) {
	raw, err := a.provider.Request(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrTransientFetch,
			Message: "eth_getBalance query failed",
			Err:     err,
		}
	}
	var hexBal string
	if err := json.Unmarshal(raw, &hexBal); err != nil {
		return nil, &types.Error{
			Code:    types.ErrTransientFetch,
			Message: "provider returned an undecodable balance",
			Err:     err,
		}
	}
	bal, err := hexutil.DecodeBig(hexBal)
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrTransientFetch,
			Message: fmt.Sprintf("balance %q is not valid hex", hexBal),
			Err:     err,
		}
	}
	return bal, nil
}

// SendPayment submits an eth_sendTransaction. The connected chain must be
// a recognized network; nothing is sent otherwise.
func (a *EVMAdapter) SendPayment(ctx context.Context, recipient string, amount *big.Int) (any, error) {
	if a.provider == nil {
		return nil, &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "evm wallet extension is not installed",
		}
	}
	if _, err := a.DetectNetwork(ctx); err != nil {
		return nil, err
	}
	sess, ok := a.sessions.Get(types.MethodEVM)
	if !ok || !sess.Connected {
		return nil, &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "evm wallet is not connected",
		}
	}

	tx := map[string]any{
		"from":  sess.Address,
		"to":    recipient,
		"value": hexutil.EncodeBig(amount),
	}
	raw, err := a.provider.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return nil, rejected("evm payment refused", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// hand the undecoded bytes to the normalizer
		return string(raw), nil
	}
	return decoded, nil
}
