package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/kaspay/kaspay/types"
)

// DefaultKaspaAPI is the public Kaspa REST endpoint.
const DefaultKaspaAPI = "https://api.kaspa.org"

// KaspaInspector reads chain state from a Kaspa REST API.
type KaspaInspector struct {
	baseURL string
	client  *http.Client
}

func NewKaspaInspector(baseURL string) *KaspaInspector {
	if baseURL == "" {
		baseURL = DefaultKaspaAPI
	}
	return &KaspaInspector{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type kaspaBalanceResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

type kaspaOutpoint struct {
	PreviousOutpointAddress string `json:"previous_outpoint_address"`
}

type kaspaOutput struct {
	ScriptPublicKeyAddress string `json:"script_public_key_address"`
	Amount                 int64  `json:"amount"`
}

type kaspaTransaction struct {
	TransactionID string          `json:"transaction_id"`
	BlockTime     int64           `json:"block_time"` // epoch millis
	Inputs        []kaspaOutpoint `json:"inputs"`
	Outputs       []kaspaOutput   `json:"outputs"`
}

func (k *KaspaInspector) Balance(ctx context.Context, address string) (*big.Int, error) {
	var resp kaspaBalanceResponse
	path := fmt.Sprintf("/addresses/%s/balance", url.PathEscape(address))
	if err := k.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return big.NewInt(resp.Balance), nil
}

// FindSelfTransfer scans the address's recent transactions for an output
// back to the same address of exactly amount sompi, accepted (block time)
// at or after notBefore.
func (k *KaspaInspector) FindSelfTransfer(ctx context.Context, address string, amount *big.Int, notBefore int64) (*Transfer, error) {
	if !amount.IsInt64() {
		return nil, &types.Error{
			Code:    types.ErrInvalidState,
			Message: fmt.Sprintf("amount %s is not a valid sompi value", amount),
		}
	}
	want := amount.Int64()

	var txs []kaspaTransaction
	path := fmt.Sprintf(
		"/addresses/%s/full-transactions?limit=20&resolve_previous_outpoints=light",
		url.PathEscape(address),
	)
	if err := k.getJSON(ctx, path, &txs); err != nil {
		return nil, err
	}

	for _, tx := range txs {
		if tx.BlockTime < notBefore {
			continue
		}
		if !spentBy(tx, address) {
			continue
		}
		for _, out := range tx.Outputs {
			if out.ScriptPublicKeyAddress == address && out.Amount == want {
				return &Transfer{
					TxID:      tx.TransactionID,
					From:      address,
					To:        address,
					Amount:    big.NewInt(out.Amount),
					Timestamp: tx.BlockTime,
				}, nil
			}
		}
	}
	return nil, nil
}

func spentBy(tx kaspaTransaction, address string) bool {
	for _, in := range tx.Inputs {
		if in.PreviousOutpointAddress == address {
			return true
		}
	}
	return false
}

func (k *KaspaInspector) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path, nil)
	if err != nil {
		return &types.Error{Code: types.ErrTransientFetch, Message: "building kaspa api request", Err: err}
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return &types.Error{Code: types.ErrTransientFetch, Message: "kaspa api request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &types.Error{
			Code:    types.ErrTransientFetch,
			Message: fmt.Sprintf("kaspa api returned status %d", resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.Error{Code: types.ErrTransientFetch, Message: "decoding kaspa api response", Err: err}
	}
	return nil
}
