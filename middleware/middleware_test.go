package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wyfcoding/rectstab/contextx"
	"github.com/wyfcoding/rectstab/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(engine *gin.Engine, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, contextx.GetRequestID(c.Request.Context()))
	})

	w := serve(engine, http.MethodGet, "/", nil, http.Header{HeaderXRequestID: {"abc"}})
	if w.Body.String() != "abc" || w.Header().Get(HeaderXRequestID) != "abc" {
		t.Errorf("incoming request id must be propagated, got %q / %q", w.Body.String(), w.Header().Get(HeaderXRequestID))
	}

	w = serve(engine, http.MethodGet, "/", nil, nil)
	if id := w.Header().Get(HeaderXRequestID); id == "" || id != w.Body.String() {
		t.Errorf("expected generated request id, got header %q body %q", id, w.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(quiet()))
	engine.GET("/", func(*gin.Context) { panic("boom") })

	if w := serve(engine, http.MethodGet, "/", nil, nil); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(NewLocalRateLimitMiddleware(0.001, 2, time.Minute))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if w := serve(engine, http.MethodGet, "/", nil, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: expected 200, got %d", i, w.Code)
		}
	}
	if w := serve(engine, http.MethodGet, "/", nil, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", w.Code)
	}

	open := gin.New()
	open.Use(NewLocalRateLimitMiddleware(0, 0, 0))
	open.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		if w := serve(open, http.MethodGet, "/", nil, nil); w.Code != http.StatusOK {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	engine := gin.New()
	engine.Use(MaxBodyBytes(8))
	engine.POST("/", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	if w := serve(engine, http.MethodPost, "/", strings.NewReader("small"), nil); w.Code != http.StatusOK {
		t.Errorf("small body: expected 200, got %d", w.Code)
	}
	if w := serve(engine, http.MethodPost, "/", strings.NewReader("definitely too large"), nil); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body: expected 413, got %d", w.Code)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(TimeoutMiddleware(10 * time.Millisecond))
	engine.GET("/", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	if w := serve(engine, http.MethodGet, "/", nil, nil); w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", w.Code)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := metrics.NewMetrics("middleware-test")
	engine := gin.New()
	engine.Use(HTTPMetricsMiddlewareWithOptions(m, MetricsOptions{SkipPaths: []string{"/skip"}}))
	engine.GET("/v1/count", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/skip", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(engine, http.MethodGet, "/v1/count", nil, nil)
	serve(engine, http.MethodGet, "/v1/count", nil, nil)
	serve(engine, http.MethodGet, "/skip", nil, nil)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/count", "200")); got != 2 {
		t.Errorf("expected 2 counted requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/skip", "200")); got != 0 {
		t.Errorf("skipped path must not be counted, got %v", got)
	}
}

func TestLogger(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	engine := gin.New()
	engine.Use(RequestID(), Logger(logger))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(engine, http.MethodGet, "/?x=1", nil, http.Header{HeaderXRequestID: {"rid-1"}})
	out := buf.String()
	for _, want := range []string{`"request_id":"rid-1"`, `"status":204`, `"query":"x=1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("access log missing %s: %s", want, out)
		}
	}
}
