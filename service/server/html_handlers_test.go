package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/solxfer/service/dialog"
	"github.com/brojonat/solxfer/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// browser is an HTTP client with its own cookie jar, standing in for one tab.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:      t,
		base:   srv.URL,
		client: &http.Client{Jar: jar, Timeout: 5 * time.Second},
	}
}

func (b *browser) get(path string) string {
	b.t.Helper()
	resp, err := b.client.Get(b.base + path)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return string(body)
}

// post submits a form and returns the page the redirect lands on.
func (b *browser) post(path string, form url.Values) string {
	b.t.Helper()
	resp, err := b.client.PostForm(b.base+path, form)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return string(body)
}

func startTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestIndex_ClosedDialog(t *testing.T) {
	env := newTestEnv(t)
	b := newBrowser(t, startTestServer(t, env.handler))

	page := b.get("/")

	assert.Contains(t, page, "Create a new transaction")
	assert.Contains(t, page, env.wallets.Wallet().PublicKey().String())
	assert.Contains(t, page, "Disconnect")
	assert.NotContains(t, page, `id="transfer-form"`)
}

func TestIndex_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestDialog_OpenAndClose(t *testing.T) {
	env := newTestEnv(t)
	b := newBrowser(t, startTestServer(t, env.handler))

	page := b.post("/dialog/open", nil)
	assert.Contains(t, page, `id="transfer-form"`)
	assert.Contains(t, page, `name="address"`)
	assert.Contains(t, page, `name="amount"`)

	page = b.post("/dialog/close", nil)
	assert.NotContains(t, page, `id="transfer-form"`)
}

func TestDialog_SubmitEmptyFieldsShowsValidationMessage(t *testing.T) {
	env := newTestEnv(t)
	b := newBrowser(t, startTestServer(t, env.handler))

	b.post("/dialog/open", nil)
	page := b.post("/dialog/submit", url.Values{"address": {""}, "amount": {"1"}})

	assert.Contains(t, page, `class="outcome failure"`)
	assert.Contains(t, page, "Please fill in the address and amount!")
	assert.Zero(t, env.executor.Calls(), "validation failures never reach the workflow")
	assert.Equal(t, 1.0, metricValue(t, env, "dialog_validation_failures_total"))
}

func TestDialog_RejectsNonNumericAmount(t *testing.T) {
	env := newTestEnv(t)
	b := newBrowser(t, startTestServer(t, env.handler))

	b.post("/dialog/open", nil)
	b.post("/dialog/fields", url.Values{"amount": {"1.5"}})
	page := b.post("/dialog/fields", url.Values{"amount": {"1.5abc"}})

	assert.Contains(t, page, `value="1.5"`)
	assert.NotContains(t, page, "1.5abc")
}

func TestDialog_FieldsJSON(t *testing.T) {
	env := newTestEnv(t)
	srv := startTestServer(t, env.handler)
	b := newBrowser(t, srv)
	b.post("/dialog/open", nil)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/dialog/fields",
		strings.NewReader(url.Values{"address": {testDestination}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"`+testDestination+`","amount":""}`, string(body))
}

func TestDialog_SubmitSuccessShowsExplorerLink(t *testing.T) {
	env := newTestEnv(t)
	env.executor.release = make(chan struct{})
	b := newBrowser(t, startTestServer(t, env.handler))

	b.post("/dialog/open", nil)
	page := b.post("/dialog/submit", url.Values{"address": {testDestination}, "amount": {"2"}})

	// In flight: controls disabled, progress shown.
	assert.Contains(t, page, `role="status"`)
	assert.Equal(t, 2, strings.Count(page, "disabled>"), "Cancel and Submit are disabled")
	assert.Equal(t, 1.0, metricValue(t, env, "transfers_in_flight"))

	// Closing and resubmitting are ignored while submitting.
	page = b.post("/dialog/close", nil)
	assert.Contains(t, page, `id="transfer-form"`)
	b.post("/dialog/submit", url.Values{"address": {testDestination}, "amount": {"2"}})

	close(env.executor.release)

	require.Eventually(t, func() bool {
		return strings.Contains(b.get("/"), `class="outcome success"`)
	}, 2*time.Second, 10*time.Millisecond)

	page = b.get("/")
	wantURL := solana.ExplorerTxURL(solana.DefaultExplorerHost, testSignature, "devnet")
	assert.Contains(t, page, `href="`+wantURL+`"`)
	assert.Contains(t, page, `target="_blank"`)
	assert.Contains(t, page, "cluster=devnet")
	assert.Contains(t, page, "data:image/png;base64,")
	assert.NotContains(t, page, `role="status"`)

	assert.Equal(t, 1, env.executor.Calls(), "the second submit never started a transfer")
	assert.Equal(t, 0.0, metricValue(t, env, "transfers_in_flight"))
	assert.Len(t, env.publisher.GetPublishedEvents(), 1)
}

func TestDialog_SubmitWithoutWalletShowsFailure(t *testing.T) {
	env := newTestEnv(t)
	b := newBrowser(t, startTestServer(t, env.handler))

	b.post("/wallet/disconnect", nil)
	b.post("/dialog/open", nil)
	b.post("/dialog/submit", url.Values{"address": {"ABC123"}, "amount": {"2"}})

	var page string
	require.Eventually(t, func() bool {
		page = b.get("/")
		return strings.Contains(page, `class="outcome failure"`)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, page, solana.ErrWalletNotConnected.Error())
	assert.NotContains(t, page, "solscan.io", "failures carry no link")
}

func TestDialog_SessionsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	srv := startTestServer(t, env.handler)
	alice := newBrowser(t, srv)
	bob := newBrowser(t, srv)

	alice.post("/dialog/open", nil)
	alice.post("/dialog/fields", url.Values{"address": {testDestination}})

	assert.NotContains(t, bob.get("/"), `id="transfer-form"`)
	assert.Contains(t, alice.get("/"), testDestination)
}

func TestWallet_ConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t)
	b := newBrowser(t, startTestServer(t, env.handler))

	page := b.post("/wallet/disconnect", nil)
	assert.False(t, env.wallets.Connected())
	assert.Contains(t, page, "Connect wallet")

	page = b.post("/wallet/connect", nil)
	assert.True(t, env.wallets.Connected())
	assert.Contains(t, page, "Disconnect")
}

func TestWallet_ConnectErrorIsShown(t *testing.T) {
	env := newTestEnv(t)
	env.server.wallets = solana.NewWalletAdapter("", testLogger())
	b := newBrowser(t, startTestServer(t, env.server.Handler()))

	page := b.post("/wallet/connect", nil)

	assert.Contains(t, page, `class="error"`)
	assert.Contains(t, page, "no wallet keypair configured")
}

func TestDialogEvents_StreamsStateChanges(t *testing.T) {
	env := newTestEnv(t)
	srv := startTestServer(t, env.handler)
	b := newBrowser(t, srv)
	b.get("/") // establish the session

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/dialog/events", nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Jar: b.client.Jar}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	event, data := readSSEEvent(t, reader)
	assert.Equal(t, "dialog", event)
	assert.Contains(t, data, `<div id="dialog">`)
	assert.NotContains(t, data, `id="transfer-form"`)

	b.post("/dialog/open", nil)

	event, data = readSSEEvent(t, reader)
	assert.Equal(t, "dialog", event)
	assert.Contains(t, data, `id="transfer-form"`)

	require.Eventually(t, func() bool {
		return metricValue(t, env, "sse_events_sent_total") >= 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, metricValue(t, env, "sse_active_connections"))
}

// readSSEEvent reads one event, joining multi-line data with newlines.
func readSSEEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()

	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "" && event != "":
			return event, strings.Join(lines, "\n")
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestWriteSSEEvent_MultiLine(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, "dialog", "<div>\n  <p>hi</p>\n</div>")

	assert.Equal(t, "event: dialog\ndata: <div>\ndata:   <p>hi</p>\ndata: </div>\n\n", rec.Body.String())
}

func TestApplyFields_OnlyTouchesPresentFields(t *testing.T) {
	d := dialog.New(solana.DefaultExplorerHost, "devnet")
	d.Open()
	d.SetAddress(testDestination)
	d.SetAmount("1")

	applyFields(d, url.Values{"amount": {"3"}})

	v := d.View()
	assert.Equal(t, testDestination, v.Address)
	assert.Equal(t, "3", v.Amount)
}
