package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solxfer/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAttempt_Success(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	attempt := solana.Attempt{
		From:      "FromWallet1111111111111111111111111111111111",
		To:        "ToWallet11111111111111111111111111111111111",
		Amount:    "1.5",
		Lamports:  1_500_000_000,
		Signature: "sig123",
		Outcome:   solana.Succeeded("sig123"),
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}

	event := FromAttempt(attempt, "devnet")

	assert.Equal(t, "sig123", event.Signature)
	assert.True(t, event.Done)
	assert.Equal(t, "sig123", event.Message)
	assert.Equal(t, uint64(1_500_000_000), event.Lamports)
	assert.Equal(t, "devnet", event.Cluster)
	assert.Equal(t, started, event.StartedAt)
	assert.Equal(t, int64(1500), event.DurationMS)
	assert.False(t, event.PublishedAt.IsZero())
	assert.Equal(t, "transfers.FromWallet1111111111111111111111111111111111", event.Subject())
}

func TestFromAttempt_Failure(t *testing.T) {
	attempt := solana.Attempt{
		To:      "ABC123",
		Amount:  "2",
		Outcome: solana.Failed(solana.ErrWalletNotConnected),
	}

	event := FromAttempt(attempt, "devnet")

	assert.Empty(t, event.Signature, "failed attempts carry no signature")
	assert.False(t, event.Done)
	assert.Equal(t, "wallet not connected", event.Message)
	assert.Equal(t, "transfers.disconnected", event.Subject())
}

func TestFromAttempt_ConfirmationFailureKeepsSignature(t *testing.T) {
	attempt := solana.Attempt{
		From:      "FromWallet1111111111111111111111111111111111",
		To:        "ToWallet11111111111111111111111111111111111",
		Amount:    "1",
		Lamports:  1_000_000_000,
		Signature: "sig456",
		Outcome:   solana.Failed(context.DeadlineExceeded),
	}

	event := FromAttempt(attempt, "devnet")

	assert.False(t, event.Done)
	assert.Equal(t, "sig456", event.Signature, "the transaction may still land")
	assert.Equal(t, context.DeadlineExceeded.Error(), event.Message)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishTransfer(ctx, &TransferEvent{FromAddress: "a"}))
	require.NoError(t, m.PublishTransfer(ctx, &TransferEvent{}))

	assert.Len(t, m.GetPublishedEvents(), 2)
	assert.Len(t, m.GetPublishedEventsForSubject("transfers.a"), 1)
	assert.Len(t, m.GetPublishedEventsForSubject("transfers.disconnected"), 1)

	m.SetPublishError(errors.New("nats down"))
	assert.EqualError(t, m.PublishTransfer(ctx, &TransferEvent{}), "nats down")
	assert.Len(t, m.GetPublishedEvents(), 2)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
