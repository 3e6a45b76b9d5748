package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysendCounter(t *testing.T) {
	ensureMetrics()
	before := testutil.ToFloat64(keysendTotal.WithLabelValues("lnd", OutcomeFailure))

	ObserveKeysend("lnd", errors.New("no route"))
	ObserveKeysend("lnd", nil)

	assert.Equal(t, before+1, testutil.ToFloat64(keysendTotal.WithLabelValues("lnd", OutcomeFailure)))
}

func TestHandlerServesRelayMetrics(t *testing.T) {
	ObserveWeaveChunk(nil)
	ObserveRPC("greenlight", "Keysend", time.Now())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_weave_chunks_total")
	assert.Contains(t, rec.Body.String(), "relay_lightning_rpc_duration_seconds")
}

func TestListenServesInProcessCounters(t *testing.T) {
	s, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = s.Shutdown(context.Background()) }()

	ObserveSignature("lnd", "sign", nil)

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `relay_signer_operations_total{backend="lnd",op="sign",outcome="success"}`)

	require.NoError(t, s.Shutdown(context.Background()))
	_, err = http.Get("http://" + s.Addr() + "/metrics")
	assert.Error(t, err)
}

func TestListenBadAddr(t *testing.T) {
	_, err := Listen("256.0.0.1:bad")
	assert.Error(t, err)
}

func TestPushSendsGroupedMetrics(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	ObserveWeave(nil)
	require.NoError(t, Push(context.Background(), gw.URL, "relay", "keysend"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/relay/command/keysend", path)
	assert.NotEmpty(t, body)
}

func TestPushGatewayError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gw.Close()

	assert.Error(t, Push(context.Background(), gw.URL, "relay", "sign"))
}
