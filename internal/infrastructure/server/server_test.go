package server

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termie/internal/infrastructure/config"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termie/internal/pty"
	"github.com/GriffinCanCode/termie/internal/viewer"
)

type fakeSession struct {
	text    string
	done    chan struct{}
	status  pty.ExitStatus
	evicted uint64
}

func newFakeSession(text string) *fakeSession {
	return &fakeSession{text: text, done: make(chan struct{})}
}

func (f *fakeSession) Transcript() string         { return f.text }
func (f *fakeSession) Done() <-chan struct{}      { return f.done }
func (f *fakeSession) ExitStatus() pty.ExitStatus { return f.status }
func (f *fakeSession) OutputEvicted() uint64      { return f.evicted }

type fakeBreaker resilience.State

func (b fakeBreaker) BreakerState() resilience.State { return resilience.State(b) }

func newTestServer(t *testing.T, session Session) *Server {
	t.Helper()
	return newTestServerWith(t, Deps{Session: session})
}

func newTestServerWith(t *testing.T, d Deps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false

	d.Config = cfg
	d.Hub = viewer.NewHub(viewer.Options{Width: 64, Height: 64})
	d.Metrics = monitoring.NewMetrics()
	srv, err := New(d)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	session := newFakeSession("")
	srv := newTestServer(t, session)

	w := serve(srv, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.NotContains(t, body, "exit_status")
	assert.Contains(t, body, "metrics")
	assert.Equal(t, 0.0, body["viewers"])
	assert.NotContains(t, body, "classifier_breaker")

	session.status = pty.ExitStatus{Code: 2}
	close(session.done)

	w = serve(srv, "/health", nil)
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "exited", body["status"])
	assert.Equal(t, "exit status 2", body["exit_status"])
}

func TestHealthReportsBufferAndBreaker(t *testing.T) {
	session := newFakeSession("")
	session.evicted = 1234
	srv := newTestServerWith(t, Deps{
		Session:    session,
		Classifier: fakeBreaker(resilience.StateOpen),
	})

	w := serve(srv, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1234.0, body["output_evicted_bytes"])
	assert.Equal(t, resilience.StateOpen.String(), body["classifier_breaker"])
}

func TestTranscript(t *testing.T) {
	srv := newTestServer(t, newFakeSession("% echo hi\r\nhi\r\n"))

	w := serve(srv, "/transcript", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "% echo hi\r\nhi\r\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestTranscriptGzip(t *testing.T) {
	text := strings.Repeat("total 0\r\n", 1000)
	srv := newTestServer(t, newFakeSession(text))

	w := serve(srv, "/transcript", http.Header{"Accept-Encoding": {"gzip"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}

func TestViewerPage(t *testing.T) {
	srv := newTestServer(t, newFakeSession(""))

	w := serve(srv, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/stream")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeSession(""))

	serve(srv, "/health", nil)
	w := serve(srv, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `termie_http_requests_total{method="GET",path="/health",status="200"}`)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, newFakeSession(""))
	assert.Equal(t, http.StatusNotFound, serve(srv, "/missing", nil).Code)
}

func TestRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1

	srv, err := New(Deps{
		Config:  cfg,
		Session: newFakeSession(""),
		Hub:     viewer.NewHub(viewer.Options{}),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(srv, "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(srv, "/health", nil).Code)
}

func TestRunShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	srv := newTestServer(t, newFakeSession("ok"))
	srv.config.Server.Host = "127.0.0.1"
	srv.config.Server.Port = port

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/transcript")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
