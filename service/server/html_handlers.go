package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/brojonat/solxfer/service/dialog"
	"github.com/brojonat/solxfer/service/solana"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

// RenderString renders a template into a string (used for SSE fragments).
func (tr *TemplateRenderer) RenderString(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tr.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// pageData is what index.html and the dialog fragment render from.
type pageData struct {
	Dialog      dialog.View
	Wallet      walletResponse
	Cluster     string
	WalletError string
	ExplorerQR  string // base64 PNG, set only for successful outcomes
}

func (s *Server) pageData(d *dialog.Dialog, r *http.Request) pageData {
	data := pageData{
		Dialog:      d.View(),
		Wallet:      walletToResponse(s.wallets),
		Cluster:     s.cfg.Cluster,
		WalletError: r.URL.Query().Get("wallet_error"),
	}
	if data.Dialog.ExplorerURL != "" {
		qr, err := explorerQRCode(data.Dialog.ExplorerURL)
		if err != nil {
			s.logger.Warn("failed to render explorer QR code", "error", err)
		}
		data.ExplorerQR = qr
	}
	return data
}

// handleIndex serves the page with the wallet bar and the transfer dialog.
// GET /
func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.sessions.Dialog(w, r)
		if err := s.renderer.Render(w, "index.html", s.pageData(d, r)); err != nil {
			s.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// handleDialogOpen opens the session's dialog.
// POST /dialog/open
func (s *Server) handleDialogOpen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Dialog(w, r).Open()
		redirectHome(w, r)
	}
}

// handleDialogClose closes the session's dialog unless a transfer is in flight.
// POST /dialog/close
func (s *Server) handleDialogClose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.Dialog(w, r).Close() {
			s.logger.Debug("close ignored while submitting")
		}
		redirectHome(w, r)
	}
}

// handleDialogFields applies edits to the address and amount fields.
// Fields absent from the form are left alone; a non-numeric amount is dropped.
// POST /dialog/fields
func (s *Server) handleDialogFields() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.sessions.Dialog(w, r)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		applyFields(d, r.PostForm)

		if r.Header.Get("Accept") == "application/json" {
			v := d.View()
			writeJSON(w, map[string]string{"address": v.Address, "amount": v.Amount}, http.StatusOK)
			return
		}
		redirectHome(w, r)
	}
}

// handleDialogSubmit applies the submitted fields and starts the transfer.
// The transfer runs in the background so the page can show progress; the
// outcome reaches the browser through the SSE stream or the next page load.
// POST /dialog/submit
func (s *Server) handleDialogSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.sessions.Dialog(w, r)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		applyFields(d, r.PostForm)

		req, ok, err := d.Begin()
		switch {
		case errors.Is(err, dialog.ErrSubmitting), errors.Is(err, dialog.ErrClosed):
			s.logger.Debug("submit ignored", "reason", err)
		case err != nil:
			s.logger.Error("failed to start submission", "error", err)
		case !ok:
			if s.metrics != nil {
				s.metrics.RecordValidationFailure()
			}
		default:
			if s.metrics != nil {
				s.metrics.RecordTransferInFlight(1)
			}
			// Detached from the request so the transfer settles even if the browser goes away.
			go s.runSubmission(context.WithoutCancel(r.Context()), d, req)
		}

		redirectHome(w, r)
	}
}

func (s *Server) runSubmission(ctx context.Context, d *dialog.Dialog, req solana.TransferRequest) {
	var outcome solana.TransferOutcome
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("transfer submission panicked", "panic", r)
			outcome = solana.Failed(fmt.Errorf("%v", r))
		}
		if s.metrics != nil {
			s.metrics.RecordTransferInFlight(-1)
		}
		d.Finish(outcome)
	}()

	outcome = s.transfers.Transfer(ctx, req)
}

// handleWalletConnect connects the process wallet.
// POST /wallet/connect
func (s *Server) handleWalletConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.wallets.Connect(); err != nil {
			http.Redirect(w, r, "/?wallet_error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
			return
		}
		redirectHome(w, r)
	}
}

// handleWalletDisconnect disconnects the process wallet.
// POST /wallet/disconnect
func (s *Server) handleWalletDisconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.wallets.Disconnect()
		redirectHome(w, r)
	}
}

func applyFields(d *dialog.Dialog, form url.Values) {
	if form.Has("address") {
		d.SetAddress(form.Get("address"))
	}
	if form.Has("amount") {
		d.SetAmount(form.Get("amount"))
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleFavicon serves a tiny inline SVG so browsers stop asking.
func handleFavicon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16"><circle cx="8" cy="8" r="7" fill="#14f195"/></svg>`))
	}
}
