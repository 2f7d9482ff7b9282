package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	verbose, err := NewLogger("verbose")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if !verbose.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected VERBOSE to enable debug")
	}

	errorsOnly, err := NewLogger("")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if errorsOnly.Core().Enabled(zapcore.WarnLevel) || !errorsOnly.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected default level to log errors only")
	}

	none, err := NewLogger("NONE")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if none.Core().Enabled(zapcore.FatalLevel) {
		t.Fatalf("expected NONE to discard everything")
	}

	if _, err := NewLogger("chatty"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestLoggingRecordsStatusAndRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := middleware.RequestID(Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got=%d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected status field: %v", fields["status"])
	}
	if fields["request_id"] == "" {
		t.Fatalf("expected request id to be logged")
	}
}

func TestAPIKeyRejectsMissingKey(t *testing.T) {
	handler := APIKey("secret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages/render", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/messages/render", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected bearer key to pass, got=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz bypass, got=%d", rec.Code)
	}
}
