package cover

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- モック定義 ---

// mockSSRFGuard はSSRFGuardServiceのテスト用モック。
// httptestサーバーはループバックで動作するため、素のhttp.Clientを返す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	return m.validateErr
}

// mockObjectStore はObjectStoreのテスト用モック。
type mockObjectStore struct {
	mu       sync.Mutex
	putFunc  func(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	putCalls []string
}

func (m *mockObjectStore) Put(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	m.putCalls = append(m.putCalls, filename)
	m.mu.Unlock()
	if m.putFunc != nil {
		return m.putFunc(ctx, filename, data, contentType)
	}
	return "https://cdn.example.com/covers/" + filename, nil
}

// mockMetrics はMetricsRecorderのテスト用モック。
type mockMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *mockMetrics) RecordCoverResult(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *mockMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return ""
	}
	return m.results[len(m.results)-1]
}

func testPipeline(t *testing.T, store ObjectStore, metrics MetricsRecorder) *Pipeline {
	t.Helper()
	return NewPipeline(
		&mockSSRFGuard{},
		store,
		NewLocalStore(t.TempDir()),
		Config{
			Timeout:      5 * time.Second,
			MaxBytes:     1 << 20,
			SoftMaxBytes: 1 << 19,
			MaxDimension: 1600,
			JPEGQuality:  80,
		},
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		metrics,
	)
}

func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	data := encodePNG(t, 100, 50)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
}

// --- Acquireのテスト ---

// ソースURLが空の場合は何もしないことを検証
func TestAcquire_EmptySourceURL(t *testing.T) {
	metrics := &mockMetrics{}
	p := testPipeline(t, &mockObjectStore{}, metrics)

	if got := p.Acquire(context.Background(), "page-1", ""); got != "" {
		t.Errorf("Acquire = %q, want empty", got)
	}
	if len(metrics.results) != 0 {
		t.Errorf("メトリクスが記録されてはならない: %v", metrics.results)
	}
}

// 正常系: ダウンロードしてオブジェクトストレージに保存されることを検証
func TestAcquire_StoresToObjectStorage(t *testing.T) {
	ts := pngServer(t)
	defer ts.Close()

	store := &mockObjectStore{}
	metrics := &mockMetrics{}
	p := testPipeline(t, store, metrics)

	got := p.Acquire(context.Background(), "page-1", ts.URL)

	if got != "https://cdn.example.com/covers/page-1.png" {
		t.Errorf("Acquire = %q", got)
	}
	if len(store.putCalls) != 1 || store.putCalls[0] != "page-1.png" {
		t.Errorf("putCalls = %v", store.putCalls)
	}
	if metrics.last() != ResultStored {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultStored)
	}
}

// SSRF検証でブロックされたURLが拒否されることを検証
func TestAcquire_RejectsBlockedURL(t *testing.T) {
	metrics := &mockMetrics{}
	p := NewPipeline(
		&mockSSRFGuard{validateErr: errors.New("blocked")},
		&mockObjectStore{},
		NewLocalStore(t.TempDir()),
		Config{Timeout: time.Second, MaxBytes: 1 << 20, SoftMaxBytes: 1 << 19, MaxDimension: 1600, JPEGQuality: 80},
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		metrics,
	)

	if got := p.Acquire(context.Background(), "page-1", "http://169.254.169.254/latest"); got != "" {
		t.Errorf("Acquire = %q, want empty", got)
	}
	if metrics.last() != ResultRejected {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultRejected)
	}
}

// 宣言サイズがハード上限を超える場合に本文を読まず拒否することを検証
func TestAcquire_RejectsOversizedContentLength(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(2<<20))
		w.Write(bytes.Repeat([]byte("x"), 2<<20))
	}))
	defer ts.Close()

	metrics := &mockMetrics{}
	p := testPipeline(t, &mockObjectStore{}, metrics)

	if got := p.Acquire(context.Background(), "page-1", ts.URL); got != "" {
		t.Errorf("Acquire = %q, want empty", got)
	}
	if metrics.last() != ResultRejected {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultRejected)
	}
}

// 実サイズがハード上限を超える場合に拒否されることを検証（Content-Length申告なし）
func TestAcquire_RejectsOversizedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		// チャンク転送でContent-Lengthを申告させない
		flusher := w.(http.Flusher)
		chunk := bytes.Repeat([]byte("x"), 64<<10)
		for i := 0; i < 20; i++ {
			w.Write(chunk)
			flusher.Flush()
		}
	}))
	defer ts.Close()

	metrics := &mockMetrics{}
	p := testPipeline(t, &mockObjectStore{}, metrics)

	if got := p.Acquire(context.Background(), "page-1", ts.URL); got != "" {
		t.Errorf("Acquire = %q, want empty", got)
	}
	if metrics.last() != ResultRejected {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultRejected)
	}
}

// HTTPエラーステータスが拒否されることを検証
func TestAcquire_RejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	p := testPipeline(t, &mockObjectStore{}, nil)

	if got := p.Acquire(context.Background(), "page-1", ts.URL); got != "" {
		t.Errorf("Acquire = %q, want empty", got)
	}
}

// 非画像データがカバーなしに収束することを検証
func TestAcquire_NonImageData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer ts.Close()

	metrics := &mockMetrics{}
	p := testPipeline(t, &mockObjectStore{}, metrics)

	if got := p.Acquire(context.Background(), "page-1", ts.URL); got != "" {
		t.Errorf("Acquire = %q, want empty", got)
	}
	if metrics.last() != ResultNotImage {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultNotImage)
	}
}

// オブジェクトストレージ失敗時にローカルへフォールバックすることを検証
func TestAcquire_FallsBackToLocal(t *testing.T) {
	ts := pngServer(t)
	defer ts.Close()

	store := &mockObjectStore{
		putFunc: func(context.Context, string, []byte, string) (string, error) {
			return "", errors.New("bucket unavailable")
		},
	}
	metrics := &mockMetrics{}
	p := testPipeline(t, store, metrics)

	got := p.Acquire(context.Background(), "page-1", ts.URL)

	if !strings.HasPrefix(got, "/static/covers/") {
		t.Errorf("Acquire = %q, ローカルフォールバックのURLが返るべき", got)
	}
	if metrics.last() != ResultFallback {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultFallback)
	}
}

// オブジェクトストレージ未設定時にローカル保存されることを検証
func TestAcquire_LocalOnlyWhenNoStore(t *testing.T) {
	ts := pngServer(t)
	defer ts.Close()

	metrics := &mockMetrics{}
	p := testPipeline(t, nil, metrics)

	got := p.Acquire(context.Background(), "page-1", ts.URL)

	if got != "/static/covers/page-1.png" {
		t.Errorf("Acquire = %q", got)
	}
	if metrics.last() != ResultStored {
		t.Errorf("metrics = %q, want %q", metrics.last(), ResultStored)
	}
}
