package nats

import (
	"time"

	"github.com/brojonat/solxfer/service/solana"
)

// TransferEvent represents a transfer attempt published to NATS.
// This is published to the subject "transfers.{from_address}" in JetStream.
type TransferEvent struct {
	// Transaction identifier, empty when the attempt failed before submission.
	// A failed attempt may still carry one when confirmation did not complete.
	Signature string `json:"signature,omitempty"`

	// Parties
	FromAddress string `json:"from_address,omitempty"` // empty when no wallet was connected
	ToAddress   string `json:"to_address"`

	// Amounts
	Amount   string `json:"amount"`   // as entered, in SOL
	Lamports uint64 `json:"lamports"` // 0 when the amount could not be converted

	// Outcome
	Done    bool   `json:"done"`
	Message string `json:"message"`
	Cluster string `json:"cluster"`

	// Timing information
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the JetStream subject this event is published to.
func (e *TransferEvent) Subject() string {
	if e.FromAddress == "" {
		return "transfers.disconnected"
	}
	return "transfers." + e.FromAddress
}

// FromAttempt converts a transfer attempt to a TransferEvent for publishing.
func FromAttempt(attempt solana.Attempt, cluster string) *TransferEvent {
	event := &TransferEvent{
		Signature:   attempt.Signature,
		FromAddress: attempt.From,
		ToAddress:   attempt.To,
		Amount:      attempt.Amount,
		Lamports:    attempt.Lamports,
		Done:        attempt.Outcome.Done,
		Message:     attempt.Outcome.Message,
		Cluster:     cluster,
		StartedAt:   attempt.StartedAt.UTC(),
		DurationMS:  attempt.Duration.Milliseconds(),
		PublishedAt: time.Now().UTC(),
	}

	return event
}
