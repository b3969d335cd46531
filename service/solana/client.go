package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// Transferer runs the native SOL transfer workflow against a Connection.
type Transferer struct {
	conn     Connection
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // cluster identifier for metrics (e.g. "devnet")
}

// NewTransferer creates a new Transferer.
// If m is nil, no metrics will be recorded.
func NewTransferer(conn Connection, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Transferer {
	return &Transferer{
		conn:     conn,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// Transfer executes exactly one transfer attempt and returns its outcome.
// It never returns an error: every failure is reported in the outcome.
// A nil wallet means no wallet is connected.
func (t *Transferer) Transfer(ctx context.Context, wallet Wallet, req TransferRequest) TransferOutcome {
	return t.Execute(ctx, wallet, req).Outcome
}

// Execute is like Transfer but returns the full Attempt record.
func (t *Transferer) Execute(ctx context.Context, wallet Wallet, req TransferRequest) (attempt Attempt) {
	attempt = Attempt{
		To:        req.Address,
		Amount:    req.Amount,
		StartedAt: time.Now(),
	}
	if wallet != nil {
		attempt.From = wallet.PublicKey().String()
	}

	defer func() {
		if r := recover(); r != nil {
			attempt.Outcome = TransferOutcome{Done: false, Message: panicMessage(r)}
		}
		attempt.Duration = time.Since(attempt.StartedAt)
		t.finish(ctx, attempt)
	}()

	lamports, sig, err := t.transfer(ctx, wallet, req)
	attempt.Lamports = lamports
	if sig != (solana.Signature{}) {
		attempt.Signature = sig.String()
	}
	if err != nil {
		attempt.Outcome = Failed(err)
		return attempt
	}
	attempt.Outcome = Succeeded(sig.String())
	return attempt
}

func (t *Transferer) transfer(ctx context.Context, wallet Wallet, req TransferRequest) (uint64, solana.Signature, error) {
	if wallet == nil {
		return 0, solana.Signature{}, ErrWalletNotConnected
	}
	from := wallet.PublicKey()

	to, err := solana.PublicKeyFromBase58(req.Address)
	if err != nil {
		return 0, solana.Signature{}, fmt.Errorf("invalid destination address: %w", err)
	}

	lamports, err := ToLamports(req.Amount)
	if err != nil {
		return 0, solana.Signature{}, err
	}

	blockhash, err := t.conn.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return lamports, solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return lamports, solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	t.logger.DebugContext(ctx, "requesting wallet signature",
		"from", from.String(),
		"to", to.String(),
		"lamports", lamports,
	)

	sig, err := wallet.SendTransaction(ctx, tx, t.conn)
	if err != nil {
		return lamports, solana.Signature{}, err
	}

	if err := t.conn.ConfirmTransaction(ctx, sig, rpc.CommitmentProcessed); err != nil {
		return lamports, sig, err
	}

	return lamports, sig, nil
}

func (t *Transferer) finish(ctx context.Context, attempt Attempt) {
	status := "success"
	if !attempt.Outcome.Done {
		status = "error"
	}
	if t.metrics != nil {
		t.metrics.RecordTransfer(t.endpoint, status, attempt.Lamports, attempt.Duration.Seconds())
	}

	if attempt.Outcome.Done {
		t.logger.InfoContext(ctx, "transfer confirmed",
			"from", attempt.From,
			"to", attempt.To,
			"lamports", attempt.Lamports,
			"signature", attempt.Outcome.Message,
			"duration", attempt.Duration,
		)
		return
	}
	t.logger.WarnContext(ctx, "transfer failed",
		"from", attempt.From,
		"to", attempt.To,
		"amount", attempt.Amount,
		"signature", attempt.Signature,
		"error", attempt.Outcome.Message,
		"duration", attempt.Duration,
	)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
