package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// Connection is the network handle the transfer workflow needs.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type Connection interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error)

	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// ConfirmTransaction blocks until the cluster reports the signature at
	// the given commitment level, or ctx is done.
	ConfirmTransaction(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
}

// rpcConnection adapts the solana-go RPC and websocket clients to Connection.
type rpcConnection struct {
	client   *rpc.Client
	wsURL    string
	endpoint string // metrics label
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewConnection creates a Connection backed by the given RPC and websocket endpoints.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://devnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
// The endpoint parameter is only used for metrics labeling (e.g. "devnet").
// If m is nil, no metrics will be recorded.
func NewConnection(rpcURL, wsURL, endpoint string, m *metrics.Metrics, logger *slog.Logger) Connection {
	return &rpcConnection{
		client:   rpc.New(rpcURL),
		wsURL:    wsURL,
		endpoint: endpoint,
		metrics:  m,
		logger:   logger,
	}
}

func (c *rpcConnection) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

func (c *rpcConnection) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	start := time.Now()
	out, err := c.client.GetLatestBlockhash(ctx, commitment)
	c.record("GetLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

func (c *rpcConnection) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	c.record("SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (c *rpcConnection) ConfirmTransaction(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	start := time.Now()
	err := c.confirm(ctx, signature, commitment)
	c.record("SignatureSubscribe", start, err)
	return err
}

func (c *rpcConnection) confirm(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	wsClient, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.wsURL, err)
	}
	defer wsClient.Close()

	sub, err := wsClient.SignatureSubscribe(signature, commitment)
	if err != nil {
		return fmt.Errorf("failed to subscribe to signature: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.DebugContext(ctx, "waiting for confirmation",
		"signature", signature.String(),
		"commitment", commitment,
	)

	res, err := sub.Recv(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm transaction: %w", err)
	}
	if res != nil && res.Value.Err != nil {
		return fmt.Errorf("transaction %s failed: %v", signature, res.Value.Err)
	}
	return nil
}
