// Package inspector queries chain state directly, without any wallet. It
// is the collaborator the self-transfer verifier polls.
package inspector

import (
	"context"
	"math/big"
)

// Transfer is a matched on-chain transfer.
type Transfer struct {
	TxID      string   `json:"txId"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    *big.Int `json:"amount"`    // base units
	Timestamp int64    `json:"timestamp"` // epoch millis
}

// Inspector reads balances and scans for self-transfers. FindSelfTransfer
// returns (nil, nil) when no matching transfer exists yet; an error means
// the query itself failed and may be retried.
type Inspector interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
	FindSelfTransfer(ctx context.Context, address string, amount *big.Int, notBefore int64) (*Transfer, error)
}
