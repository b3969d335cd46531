package server

import (
	"context"
	"log/slog"

	natspkg "github.com/brojonat/solxfer/service/nats"
	"github.com/brojonat/solxfer/service/solana"
)

// TransferExecutor runs the transfer workflow. *solana.Transferer satisfies it.
type TransferExecutor interface {
	Execute(ctx context.Context, wallet solana.Wallet, req solana.TransferRequest) solana.Attempt
}

// TransferService binds the workflow to the process wallet adapter and
// publishes every attempt when a publisher is configured.
type TransferService struct {
	executor  TransferExecutor
	wallets   *solana.WalletAdapter
	publisher natspkg.Publisher // optional
	cluster   string
	logger    *slog.Logger
}

// NewTransferService creates a TransferService. publisher may be nil.
func NewTransferService(executor TransferExecutor, wallets *solana.WalletAdapter, publisher natspkg.Publisher, cluster string, logger *slog.Logger) *TransferService {
	return &TransferService{
		executor:  executor,
		wallets:   wallets,
		publisher: publisher,
		cluster:   cluster,
		logger:    logger,
	}
}

// Transfer runs one attempt with whatever wallet is connected right now.
// It has the dialog.TransferFunc signature.
func (s *TransferService) Transfer(ctx context.Context, req solana.TransferRequest) solana.TransferOutcome {
	attempt := s.executor.Execute(ctx, s.wallets.Wallet(), req)

	if s.publisher != nil {
		event := natspkg.FromAttempt(attempt, s.cluster)
		if err := s.publisher.PublishTransfer(ctx, event); err != nil {
			// The transfer already happened; a lost event must not change its outcome.
			s.logger.ErrorContext(ctx, "failed to publish transfer event",
				"subject", event.Subject(),
				"signature", event.Signature,
				"error", err,
			)
		}
	}

	return attempt.Outcome
}
