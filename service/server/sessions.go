package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/solxfer/service/dialog"
	"github.com/google/uuid"
)

const (
	sessionCookieName = "solxfer_session"
	sessionIdleTTL    = time.Hour
)

type session struct {
	dialog   *dialog.Dialog
	lastSeen time.Time
}

// SessionStore maps browser sessions to their dialog. Dialogs never share
// state with each other.
type SessionStore struct {
	explorerHost string
	cluster      string

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewSessionStore creates an empty store whose dialogs link to explorerHost for cluster.
func NewSessionStore(explorerHost, cluster string) *SessionStore {
	return &SessionStore{
		explorerHost: explorerHost,
		cluster:      cluster,
		sessions:     make(map[string]*session),
		now:          time.Now,
	}
}

// Dialog returns the dialog for the request's session, creating the session
// (and setting its cookie) when the request has none.
func (s *SessionStore) Dialog(w http.ResponseWriter, r *http.Request) *dialog.Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, err := r.Cookie(sessionCookieName); err == nil {
		if sess, ok := s.sessions[c.Value]; ok {
			sess.lastSeen = s.now()
			return sess.dialog
		}
	}

	id := uuid.NewString()
	sess := &session{
		dialog:   dialog.New(s.explorerHost, s.cluster),
		lastSeen: s.now(),
	}
	s.sessions[id] = sess

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// Make the new cookie visible to anything else handling this request.
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: id})

	return sess.dialog
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a
// transfer in flight are kept so their outcome isn't lost.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-sessionIdleTTL)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) && !sess.dialog.View().Submitting {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
