package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/types"
)

// KaspaBalance mirrors the balance object the kasware-style extension
// returns. Amounts are sompi.
type KaspaBalance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
	Total       int64 `json:"total"`
}

// KaspaProvider mirrors the kasware-style injected wallet API. A nil
// provider means the extension is not installed.
type KaspaProvider interface {
	GetAccounts(ctx context.Context) ([]string, error)
	RequestAccounts(ctx context.Context) ([]string, error)
	GetBalance(ctx context.Context) (KaspaBalance, error)

	// SendKaspa submits a direct value transfer. The response shape varies
	// between extension versions: a raw id string, a URL-encoded JSON
	// string, or an object.
	SendKaspa(ctx context.Context, to string, sompi int64) (any, error)
}

// KaspaAdapter adapts the kasware-style extension to the Adapter contract.
type KaspaAdapter struct {
	provider KaspaProvider
	sessions *Sessions
	log      logger.Logger
}

func NewKaspaAdapter(provider KaspaProvider, sessions *Sessions, log logger.Logger) *KaspaAdapter {
	log = logger.OrNoop(log)
	return &KaspaAdapter{provider: provider, sessions: sessions, log: log}
}

func (a *KaspaAdapter) Method() types.Method {
	return types.MethodKaspa
}

func (a *KaspaAdapter) Connect(ctx context.Context) (string, error) {
	if a.provider == nil {
		return "", &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "kaspa wallet extension is not installed",
		}
	}

	accounts, err := a.provider.RequestAccounts(ctx)
	if err != nil {
		return "", rejected("kaspa wallet connection refused", err)
	}
	if len(accounts) == 0 {
		return "", &types.Error{
			Code:    types.ErrUserRejected,
			Message: "kaspa wallet returned no accounts",
		}
	}
	address := accounts[0]

	sess := types.WalletSession{
		Method:    types.MethodKaspa,
		Address:   address,
		Connected: true,
	}
	if bal, err := a.provider.GetBalance(ctx); err == nil {
		sess.Balance = big.NewInt(bal.Total)
	} else {
		a.log.Warn("kaspa balance fetch failed on connect", map[string]any{"error": err.Error()})
	}
	a.sessions.put(sess)

	a.log.Info("kaspa wallet connected", map[string]any{"address": address})
	return address, nil
}

func (a *KaspaAdapter) Balance(ctx context.Context) (*big.Int, error) {
	if a.provider == nil {
		return nil, &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "kaspa wallet extension is not installed",
		}
	}

	bal, err := a.provider.GetBalance(ctx)
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrTransientFetch,
			Message: "kaspa balance query failed",
			Err:     err,
		}
	}

	total := big.NewInt(bal.Total)
	if sess, ok := a.sessions.Get(types.MethodKaspa); ok && sess.Connected {
		sess.Balance = total
		a.sessions.put(sess)
	}
	return total, nil
}

func (a *KaspaAdapter) SendPayment(ctx context.Context, recipient string, amount *big.Int) (any, error) {
	if a.provider == nil {
		return nil, &types.Error{
			Code:    types.ErrWalletNotFound,
			Message: "kaspa wallet extension is not installed",
		}
	}
	if !amount.IsInt64() || amount.Int64() <= 0 {
		return nil, &types.Error{
			Code:    types.ErrInvalidPlan,
			Message: fmt.Sprintf("amount %s is not a valid sompi value", amount),
		}
	}

	raw, err := a.provider.SendKaspa(ctx, recipient, amount.Int64())
	if err != nil {
		return nil, rejected("kaspa payment refused", err)
	}
	return raw, nil
}

// rejected preserves a code the provider already classified, otherwise the
// refusal is attributed to the user.
func rejected(msg string, err error) error {
	if code := types.CodeOf(err); code != "" {
		return err
	}
	return &types.Error{
		Code:    types.ErrUserRejected,
		Message: msg,
		Err:     err,
	}
}
