package solana

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	lamportsPerSOL = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))
	maxLamports    = decimal.RequireFromString("18446744073709551615")
)

// maxAmountExponent bounds the decimal exponent of an amount. Rescaling a
// value with a huge exponent allocates 10^|exp|, so such input is rejected
// before any arithmetic. Lamport precision is 1e-9 and the largest amount is
// about 1.8e10 SOL, well inside the window.
const maxAmountExponent = 30

// parseAmount parses a SOL amount and rejects exponents outside the window.
func parseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: must be a number", amount)
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: exponent out of range", amount)
	}
	return d, nil
}

// ToLamports converts a SOL amount string into lamports.
// Fractions of a lamport are truncated toward zero.
func ToLamports(amount string) (uint64, error) {
	d, err := parseAmount(amount)
	if err != nil {
		return 0, err
	}

	lamports := d.Mul(lamportsPerSOL).Truncate(0)
	if !lamports.IsPositive() {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("amount %s is too large", amount)
	}

	return lamports.BigInt().Uint64(), nil
}

// FormatSOL renders a lamport amount as a SOL decimal string.
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOL).String()
}

// IsNumeric reports whether an amount field value should be accepted while
// typing. Empty (or all-space) input is allowed so the field can be cleared.
func IsNumeric(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return true
	}
	_, err := parseAmount(trimmed)
	return err == nil
}
