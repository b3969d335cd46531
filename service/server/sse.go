package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const sseKeepaliveInterval = 10 * time.Second

// handleDialogEvents streams the session's dialog fragment over SSE.
// Every state change (opening, submitting, the outcome arriving) is sent as
// a "dialog" event carrying freshly rendered HTML for #dialog.
// GET /dialog/events
func (s *Server) handleDialogEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.sessions.Dialog(w, r)

		// Streams outlive the server's write timeout.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			s.logger.DebugContext(r.Context(), "could not clear write deadline", "error", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}
		flush()

		if s.metrics != nil {
			s.metrics.RecordSSEConnectionChange(1)
			defer s.metrics.RecordSSEConnectionChange(-1)
		}

		updates, cancel := d.Subscribe()
		defer cancel()

		s.logger.DebugContext(r.Context(), "SSE client connected", "remote_addr", r.RemoteAddr)

		send := func() bool {
			html, err := s.renderer.RenderString("dialog", s.pageData(d, r))
			if err != nil {
				s.logger.ErrorContext(r.Context(), "failed to render dialog fragment", "error", err)
				return false
			}
			writeSSEEvent(w, "dialog", html)
			flush()
			if s.metrics != nil {
				s.metrics.RecordSSEEventSent("dialog")
			}
			return true
		}

		// Initial state, so a reconnecting client catches up immediately.
		if !send() {
			return
		}

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case _, ok := <-updates:
				if !ok {
					return
				}
				if !send() {
					return
				}

			case <-r.Context().Done():
				s.logger.DebugContext(r.Context(), "SSE client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	}
}

// writeSSEEvent writes one event. Multi-line payloads get one data: line each.
func writeSSEEvent(w http.ResponseWriter, event, data string) {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprint(w, b.String())
}
