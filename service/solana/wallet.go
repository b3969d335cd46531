package solana

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Wallet is a connected signing identity.
type Wallet interface {
	PublicKey() solana.PublicKey

	// SendTransaction signs tx on behalf of the wallet and submits it through conn.
	SendTransaction(ctx context.Context, tx *solana.Transaction, conn Connection) (solana.Signature, error)
}

// KeypairWallet signs with a locally held private key.
type KeypairWallet struct {
	key solana.PrivateKey
}

// NewKeypairWallet wraps a private key as a Wallet.
func NewKeypairWallet(key solana.PrivateKey) *KeypairWallet {
	return &KeypairWallet{key: key}
}

// LoadKeypairWallet reads a solana-keygen JSON keypair file.
func LoadKeypairWallet(path string) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return NewKeypairWallet(key), nil
}

func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *KeypairWallet) SendTransaction(ctx context.Context, tx *solana.Transaction, conn Connection) (solana.Signature, error) {
	pub := w.key.PublicKey()
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return conn.SendTransaction(ctx, tx)
}

// WalletAdapter owns the connection state of the process wallet, the same
// role the browser wallet adapter plays: connect, disconnect, and hand the
// current Wallet (or nil) to whoever is about to transfer.
type WalletAdapter struct {
	mu          sync.RWMutex
	keypairPath string
	load        func(path string) (Wallet, error)
	wallet      Wallet
	logger      *slog.Logger
}

// NewWalletAdapter creates a disconnected adapter for the keypair at keypairPath.
func NewWalletAdapter(keypairPath string, logger *slog.Logger) *WalletAdapter {
	a := &WalletAdapter{
		keypairPath: keypairPath,
		logger:      logger,
	}
	if keypairPath != "" {
		a.load = func(path string) (Wallet, error) {
			return LoadKeypairWallet(path)
		}
	}
	return a
}

// NewStaticWalletAdapter creates an adapter that connects to an already
// constructed wallet. Used by tests and by the CLI.
func NewStaticWalletAdapter(w Wallet, logger *slog.Logger) *WalletAdapter {
	return &WalletAdapter{
		load:   func(string) (Wallet, error) { return w, nil },
		logger: logger,
	}
}

// Connect loads the wallet. Connecting an already connected adapter is a no-op.
func (a *WalletAdapter) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.wallet != nil {
		return nil
	}
	if a.load == nil {
		return fmt.Errorf("no wallet keypair configured")
	}

	w, err := a.load(a.keypairPath)
	if err != nil {
		a.logger.Error("wallet connect failed", "error", err)
		return err
	}
	if w == nil {
		return fmt.Errorf("no wallet keypair configured")
	}

	a.wallet = w
	a.logger.Info("wallet connected", "public_key", w.PublicKey().String())
	return nil
}

// Disconnect drops the wallet.
func (a *WalletAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.wallet != nil {
		a.logger.Info("wallet disconnected", "public_key", a.wallet.PublicKey().String())
	}
	a.wallet = nil
}

// Wallet returns the connected wallet, or nil.
func (a *WalletAdapter) Wallet() Wallet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet
}

// Connected reports whether a wallet is connected.
func (a *WalletAdapter) Connected() bool {
	return a.Wallet() != nil
}
