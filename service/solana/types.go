package solana

import (
	"errors"
	"time"
)

// ErrWalletNotConnected is reported when a transfer is attempted without a
// connected signing wallet.
var ErrWalletNotConnected = errors.New("wallet not connected")

// TransferRequest is a single native SOL transfer as entered by the user.
// Amount is expressed in SOL (display units), e.g. "1.5".
type TransferRequest struct {
	Address string `json:"address" validate:"required"`
	Amount  string `json:"amount" validate:"required"`
}

// TransferOutcome is the uniform result of a transfer attempt.
// When Done is true, Message holds the base58 transaction signature.
// Otherwise Message holds a human-readable error.
type TransferOutcome struct {
	Done    bool   `json:"done"`
	Message string `json:"message"`
}

// Succeeded builds a successful outcome for the given signature.
func Succeeded(signature string) TransferOutcome {
	return TransferOutcome{Done: true, Message: signature}
}

// Failed builds a failed outcome carrying the error text.
func Failed(err error) TransferOutcome {
	return TransferOutcome{Done: false, Message: err.Error()}
}

// Attempt records everything known about one execution of the transfer workflow.
// It's what metrics and event publishing consume; callers that only need
// the user-facing result read Outcome.
type Attempt struct {
	From      string // empty when no wallet was connected
	To        string
	Amount    string
	Lamports  uint64
	Signature string // set once the transaction was submitted, even if confirmation failed
	Outcome   TransferOutcome
	StartedAt time.Time
	Duration  time.Duration
}
