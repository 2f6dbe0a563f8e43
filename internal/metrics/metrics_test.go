package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// カウンターがラベル別に加算されることを検証
func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncPass("posts", "success")
	c.RecordSyncPass("posts", "success")
	c.RecordSyncPass("posts", "fetch_failed")
	c.RecordPagesCreated("posts", 3)
	c.RecordPagesSoftDeleted("posts", 2)
	c.RecordCoverResult("stored")

	if got := testutil.ToFloat64(c.syncPass.WithLabelValues("posts", "success")); got != 2 {
		t.Errorf("sync_pass{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.syncPass.WithLabelValues("posts", "fetch_failed")); got != 1 {
		t.Errorf("sync_pass{fetch_failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.pagesCreated.WithLabelValues("posts")); got != 3 {
		t.Errorf("pages_created = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.pagesSoftDeleted.WithLabelValues("posts")); got != 2 {
		t.Errorf("pages_soft_deleted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.coverResult.WithLabelValues("stored")); got != 1 {
		t.Errorf("cover_result = %v, want 1", got)
	}
}

// スクレイプエンドポイントに登録済みメトリクスが出力されることを検証
func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSyncPass("posts", "success")
	c.RecordSyncDuration("posts", 250*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "notionmirror_sync_pass_total") {
		t.Error("sync_pass_totalが出力されるべき")
	}
	if !strings.Contains(body, "notionmirror_sync_duration_seconds") {
		t.Error("sync_duration_secondsが出力されるべき")
	}
}
