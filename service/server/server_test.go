package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/metrics"
	natspkg "github.com/brojonat/solxfer/service/nats"
	"github.com/brojonat/solxfer/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

// fakeExecutor implements TransferExecutor without touching a cluster.
// When release is non-nil, Execute blocks until it is closed.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []solana.TransferRequest
	outcome solana.TransferOutcome
	release chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, wallet solana.Wallet, req solana.TransferRequest) solana.Attempt {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}

	attempt := solana.Attempt{
		To:        req.Address,
		Amount:    req.Amount,
		StartedAt: time.Now(),
	}
	if wallet == nil {
		attempt.Outcome = solana.Failed(solana.ErrWalletNotConnected)
		return attempt
	}
	attempt.From = wallet.PublicKey().String()
	attempt.Outcome = f.outcome
	if f.outcome.Done {
		attempt.Signature = f.outcome.Message
	}
	return attempt
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:        ":0",
		LogLevel:          "error",
		Cluster:           "devnet",
		RPCURL:            "https://api.devnet.solana.com",
		WSURL:             "wss://api.devnet.solana.com",
		ExplorerHost:      solana.DefaultExplorerHost,
		TransferRateLimit: 100,
		TransferRateBurst: 100,
	}
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	executor  *fakeExecutor
	wallets   *solana.WalletAdapter
	publisher *natspkg.MockPublisher
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
}

// newTestEnv builds a server with templates, a connected random wallet and a
// fake executor that succeeds with testSignature.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	wallets := solana.NewStaticWalletAdapter(solana.NewKeypairWallet(key), logger)
	require.NoError(t, wallets.Connect())

	executor := &fakeExecutor{outcome: solana.Succeeded(testSignature)}
	publisher := natspkg.NewMockPublisher()
	transfers := NewTransferService(executor, wallets, publisher, cfg.Cluster, logger)
	sessions := NewSessionStore(cfg.ExplorerHost, cfg.Cluster)

	srv := New(cfg, wallets, transfers, sessions, m, logger)
	require.NoError(t, srv.WithTemplates())

	return &testEnv{
		server:    srv,
		handler:   srv.Handler(),
		executor:  executor,
		wallets:   wallets,
		publisher: publisher,
		metrics:   m,
		registry:  registry,
	}
}

// metricValue sums every series of a counter or gauge family in the test registry.
func metricValue(t *testing.T, env *testEnv, name string) float64 {
	t.Helper()

	families, err := env.registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transfers", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTMLRoutesRequireTemplates(t *testing.T) {
	logger := testLogger()
	cfg := testConfig()
	wallets := solana.NewWalletAdapter("", logger)
	transfers := NewTransferService(&fakeExecutor{}, wallets, nil, cfg.Cluster, logger)
	srv := New(cfg, wallets, transfers, NewSessionStore(cfg.ExplorerHost, cfg.Cluster), nil, logger)

	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics route only exists with a collector")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, env.server.Shutdown(ctx))
	require.NoError(t, env.server.Shutdown(ctx), "second shutdown must not panic")
}
