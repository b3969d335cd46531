package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/solxfer/service/solana"
	"github.com/go-playground/validator/v10"
)

const (
	maxRequestBodySize = 1 << 16 // 64KB - a transfer request is two short strings
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// handleTransfer returns a handler that runs one transfer with the connected wallet.
// POST /api/v1/transfers
//
// The response is always the outcome JSON once the body is valid, including
// for failed transfers; HTTP errors are reserved for malformed requests.
func handleTransfer(transfers *TransferService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req solana.TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode transfer request", "error", err)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validate.Struct(req); err != nil {
			logger.Debug("invalid transfer request", "error", err)
			writeError(w, validationMessage(err), http.StatusBadRequest)
			return
		}

		outcome := transfers.Transfer(r.Context(), req)
		writeJSON(w, outcome, http.StatusOK)
	})
}

// handleGetWallet reports the wallet adapter's connection state.
// GET /api/v1/wallet
func handleGetWallet(wallets *solana.WalletAdapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, walletToResponse(wallets), http.StatusOK)
	})
}

// walletResponse is the JSON response format for the wallet state.
type walletResponse struct {
	Connected bool   `json:"connected"`
	PublicKey string `json:"public_key,omitempty"`
}

func walletToResponse(wallets *solana.WalletAdapter) walletResponse {
	wallet := wallets.Wallet()
	if wallet == nil {
		return walletResponse{}
	}
	return walletResponse{Connected: true, PublicKey: wallet.PublicKey().String()}
}

// validationMessage flattens validator errors into "address is required" style text.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
