package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

func writeKeypairFile(t *testing.T) string {
	t.Helper()

	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExplorerURLCommand(t *testing.T) {
	out, err := runApp(t, "explorer-url", testSignature)
	require.NoError(t, err)
	assert.Equal(t, "https://solscan.io/tx/"+testSignature+"?cluster=devnet\n", out)

	out, err = runApp(t, "explorer-url", "--cluster", "testnet", "--explorer-host", "explorer.solana.com", "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://explorer.solana.com/tx/abc?cluster=testnet\n", out)
}

func TestExplorerURLCommand_Errors(t *testing.T) {
	_, err := runApp(t, "explorer-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature is required")

	_, err = runApp(t, "explorer-url", "--cluster", "moonnet", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cluster")
}

// An unparseable destination fails inside the workflow before any RPC call,
// so these run without a cluster.
func TestTransferCommand_InvalidAddress(t *testing.T) {
	keypair := writeKeypairFile(t)

	out, err := runApp(t, "transfer", "--keypair", keypair, "--address", "not-base58!", "--amount", "1")
	require.ErrorIs(t, err, errTransferFailed)
	assert.Contains(t, out, "Transfer failed")
	assert.Contains(t, out, "invalid destination address")
}

func TestTransferCommand_JSONOutput(t *testing.T) {
	keypair := writeKeypairFile(t)

	out, err := runApp(t, "--json", "transfer", "--keypair", keypair, "--address", "not-base58!", "--amount", "1")
	require.ErrorIs(t, err, errTransferFailed)

	var got transferOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Done)
	assert.Contains(t, got.Message, "invalid destination address")
	assert.Empty(t, got.ExplorerURL, "failures carry no link")
}

func TestTransferCommand_JQOutput(t *testing.T) {
	keypair := writeKeypairFile(t)

	out, err := runApp(t, "transfer", "--keypair", keypair, "--address", "not-base58!", "--amount", "1", "--jq", ".done")
	require.ErrorIs(t, err, errTransferFailed)
	assert.Equal(t, "false\n", out)
}

func TestTransferCommand_Errors(t *testing.T) {
	keypair := writeKeypairFile(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing keypair file",
			args:    []string{"transfer", "--keypair", filepath.Join(t.TempDir(), "nope.json"), "--address", "a", "--amount", "1"},
			wantErr: "failed to load keypair",
		},
		{
			name:    "bad jq filter",
			args:    []string{"transfer", "--keypair", keypair, "--address", "a", "--amount", "1", "--jq", ".["},
			wantErr: "failed to parse jq filter",
		},
		{
			name:    "unknown cluster",
			args:    []string{"transfer", "--keypair", keypair, "--address", "a", "--amount", "1", "--cluster", "moonnet"},
			wantErr: "unknown cluster",
		},
		{
			name:    "missing amount",
			args:    []string{"transfer", "--keypair", keypair, "--address", "a"},
			wantErr: "amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.NotErrorIs(t, err, errTransferFailed)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewTransferOutput(t *testing.T) {
	ok := newTransferOutput(true, testSignature, "solscan.io", "devnet")
	assert.Equal(t, "https://solscan.io/tx/"+testSignature+"?cluster=devnet", ok.ExplorerURL)

	failed := newTransferOutput(false, "wallet not connected", "solscan.io", "devnet")
	assert.Empty(t, failed.ExplorerURL)
	assert.Equal(t, "wallet not connected", failed.Message)
}
