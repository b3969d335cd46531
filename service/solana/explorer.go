package solana

import (
	"fmt"
	"net/url"

	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultExplorerHost is the block explorer used for transaction links.
const DefaultExplorerHost = "solscan.io"

// ExplorerTxURL builds the public explorer link for a transaction signature.
func ExplorerTxURL(host, signature, cluster string) string {
	return fmt.Sprintf("https://%s/tx/%s?cluster=%s", host, url.PathEscape(signature), url.QueryEscape(cluster))
}

// ClusterEndpoints returns the public RPC and websocket endpoints for a
// cluster name ("devnet", "testnet", "mainnet-beta", "localnet").
func ClusterEndpoints(cluster string) (rpcURL, wsURL string, err error) {
	switch cluster {
	case "devnet":
		return rpc.DevNet.RPC, rpc.DevNet.WS, nil
	case "testnet":
		return rpc.TestNet.RPC, rpc.TestNet.WS, nil
	case "mainnet-beta", "mainnet":
		return rpc.MainNetBeta.RPC, rpc.MainNetBeta.WS, nil
	case "localnet":
		return rpc.LocalNet.RPC, rpc.LocalNet.WS, nil
	default:
		return "", "", fmt.Errorf("unknown cluster %q: must be devnet, testnet, mainnet-beta or localnet", cluster)
	}
}
