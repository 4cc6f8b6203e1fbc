package inspector

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kaspay/kaspay/types"
)

// Blocks walked backwards from the head per self-transfer scan.
const evmScanDepth = 256

// EVMInspector reads chain state over an EVM JSON-RPC endpoint.
type EVMInspector struct {
	client *ethclient.Client

	mu      sync.Mutex
	chainID *big.Int
}

func NewEVMInspector(rpcURL string) (*EVMInspector, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}
	return &EVMInspector{client: client}, nil
}

func (e *EVMInspector) Close() {
	e.client.Close()
}

func (e *EVMInspector) Balance(ctx context.Context, address string) (*big.Int, error) {
	bal, err := e.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, &types.Error{Code: types.ErrTransientFetch, Message: "eth balance query failed", Err: err}
	}
	return bal, nil
}

func (e *EVMInspector) signer(ctx context.Context) (ethtypes.Signer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chainID == nil {
		id, err := e.client.ChainID(ctx)
		if err != nil {
			return nil, &types.Error{Code: types.ErrTransientFetch, Message: "chain id query failed", Err: err}
		}
		e.chainID = id
	}
	return ethtypes.LatestSignerForChainID(e.chainID), nil
}

// FindSelfTransfer walks recent blocks looking for a transaction from the
// address to itself of exactly amount wei, mined at or after notBefore.
func (e *EVMInspector) FindSelfTransfer(ctx context.Context, address string, amount *big.Int, notBefore int64) (*Transfer, error) {
	addr := common.HexToAddress(address)

	signer, err := e.signer(ctx)
	if err != nil {
		return nil, err
	}
	head, err := e.client.BlockNumber(ctx)
	if err != nil {
		return nil, &types.Error{Code: types.ErrTransientFetch, Message: "head block query failed", Err: err}
	}

	for n, scanned := head, 0; n > 0 && scanned < evmScanDepth; n, scanned = n-1, scanned+1 {
		block, err := e.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, &types.Error{Code: types.ErrTransientFetch, Message: "block query failed", Err: err}
		}

		minedAt := int64(block.Time()) * 1000
		if minedAt < notBefore {
			break
		}

		if transfer := matchSelfTransfer(signer, block.Transactions(), addr, amount, minedAt); transfer != nil {
			return transfer, nil
		}
	}
	return nil, nil
}

// matchSelfTransfer scans a block's transactions for a value transfer whose
// recovered sender and recipient are both addr and whose value is exactly
// amount.
func matchSelfTransfer(
	signer ethtypes.Signer,
	txs ethtypes.Transactions,
	addr common.Address,
	amount *big.Int,
	minedAt int64,
) *Transfer {
	for _, tx := range txs {
		to := tx.To()
		if to == nil || *to != addr {
			continue
		}
		if tx.Value().Cmp(amount) != 0 {
			continue
		}
		from, err := ethtypes.Sender(signer, tx)
		if err != nil || from != addr {
			continue
		}
		return &Transfer{
			TxID:      tx.Hash().Hex(),
			From:      from.Hex(),
			To:        to.Hex(),
			Amount:    new(big.Int).Set(tx.Value()),
			Timestamp: minedAt,
		}
	}
	return nil
}
