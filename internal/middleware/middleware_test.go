package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// --- ロギングのテスト ---

// リクエストログにmethod・path・statusが含まれることを検証
func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts/missing", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログの解析に失敗: %v", err)
	}
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["method"] != "GET" || entry["path"] != "/api/posts/missing" {
		t.Errorf("entry = %v", entry)
	}
	if entry["status"] != float64(404) {
		t.Errorf("status = %v", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, 4xxはWARNで記録されるべき", entry["level"])
	}
}

// 5xxレスポンスがERRORレベルで記録されることを検証
func TestLoggingMiddleware_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログの解析に失敗: %v", err)
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v", entry["level"])
	}
}

// WriteHeader未呼び出しのハンドラーで200が記録されることを検証
func TestLoggingMiddleware_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログの解析に失敗: %v", err)
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v", entry["status"])
	}
}

// --- CORSのテスト ---

// 許可オリジン設定時にCORSヘッダーが付与されることを検証
func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	h := NewCORSMiddleware("https://example.com")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "GET") {
		t.Errorf("Allow-Methods = %q", got)
	}
}

// OPTIONSプリフライトに204で応答することを検証
func TestCORSMiddleware_Preflight(t *testing.T) {
	handlerCalled := false
	h := NewCORSMiddleware("https://example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/posts", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if handlerCalled {
		t.Error("プリフライトで後続ハンドラーを呼んではならない")
	}
}

// オリジン未設定時にCORSヘッダーを付与しないことを検証
func TestCORSMiddleware_DisabledWithoutOrigin(t *testing.T) {
	h := NewCORSMiddleware("")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

// --- リカバリーのテスト ---

// ハンドラーのpanicが500に変換されることを検証
func TestRecoveryMiddleware_RecoversPanic(t *testing.T) {
	h := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// panicしないハンドラーが通常通り動作することを検証
func TestRecoveryMiddleware_PassThrough(t *testing.T) {
	h := NewRecoveryMiddleware()(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// --- レート制限のテスト ---

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

// バースト超過で429とRetry-Afterが返ることを検証
func TestRateLimiter_RejectsBurstExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           2,
		CleanupInterval: time.Minute,
	})
	h := rl.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.RemoteAddr = "203.0.113.1:54321"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべき")
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if body["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", body["code"])
	}
}

// クライアントIPごとに独立したリミッターが使われることを検証
func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           1,
		CleanupInterval: time.Minute,
	})
	h := rl.Middleware()(okHandler())

	req1 := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req1.RemoteAddr = "203.0.113.1:1111"
	req2 := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req2.RemoteAddr = "203.0.113.2:2222"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req1)
	if rec.Code != http.StatusOK {
		t.Fatalf("client1: status = %d", rec.Code)
	}

	// client1のバーストを使い切ってもclient2は通る
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req1)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("client1 2回目: status = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req2)
	if rec.Code != http.StatusOK {
		t.Errorf("client2: status = %d, want 200", rec.Code)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

// RemoteAddrからのIP抽出を検証
func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.1:54321", "203.0.113.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"no-port", "no-port"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := clientIPFromRequest(req); got != tt.want {
			t.Errorf("clientIPFromRequest(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
