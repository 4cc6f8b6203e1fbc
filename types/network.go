package types

import "strings"

// Network names an EVM network the engine recognizes. The Kaspa chain has a
// single network, so Network is only meaningful for MethodEVM.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// NetworkInfo describes a recognized EVM network.
type NetworkInfo struct {
	ChainID     string `json:"chainId"` // hex, as returned by eth_chainId
	Name        string `json:"name"`
	RPCURL      string `json:"rpcUrl"`
	ExplorerURL string `json:"explorerUrl"`
}

// Exactly two EVM networks are recognized. Any other chain id is a mismatch.
var evmNetworks = map[Network]NetworkInfo{
	NetworkMainnet: {
		ChainID:     "0x3173b", // 202555
		Name:        "Kasplex Mainnet",
		RPCURL:      "https://rpc.kasplex.org",
		ExplorerURL: "https://explorer.kasplex.org",
	},
	NetworkTestnet: {
		ChainID:     "0x28c64", // 167012
		Name:        "Kasplex Testnet",
		RPCURL:      "https://rpc.kasplextest.xyz",
		ExplorerURL: "https://explorer.testnet.kasplextest.xyz",
	},
}

func (n Network) String() string {
	return string(n)
}

// Info returns the static description of a recognized network. The zero
// NetworkInfo is returned for unknown networks.
func (n Network) Info() NetworkInfo {
	return evmNetworks[n]
}

// ExplorerTxURL builds the explorer link for a canonical transaction ref.
func (n Network) ExplorerTxURL(txRef string) string {
	info, ok := evmNetworks[n]
	if !ok {
		return ""
	}
	return info.ExplorerURL + "/tx/" + txRef
}

// NetworkByChainID resolves an eth_chainId value to a recognized network.
func NetworkByChainID(chainID string) (Network, bool) {
	id := strings.ToLower(strings.TrimSpace(chainID))
	for network, info := range evmNetworks {
		if id == info.ChainID {
			return network, true
		}
	}
	return "", false
}
