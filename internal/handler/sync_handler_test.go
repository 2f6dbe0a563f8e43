package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/worker/mirror"
)

// mockSyncRunner はmirror.SyncRunnerのテスト用モック。
type mockSyncRunner struct {
	syncFunc func(ctx context.Context, col mirror.Collection) (model.SyncResult, error)
	calls    []string
}

func (m *mockSyncRunner) Sync(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
	m.calls = append(m.calls, col.Name)
	if m.syncFunc != nil {
		return m.syncFunc(ctx, col)
	}
	return model.SyncResult{}, nil
}

var syncCollections = []mirror.Collection{
	{Name: "posts", DatabaseID: "db-1", RevalidateTag: "posts"},
	{Name: "projects", DatabaseID: "db-2", RevalidateTag: "projects"},
}

func doSync(t *testing.T, runner mirror.SyncRunner, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewSyncHandler(runner, syncCollections)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TriggerSync(rec, req)
	return rec
}

// ボディなしで全コレクションが同期されることを検証
func TestTriggerSync_AllCollections(t *testing.T) {
	runner := &mockSyncRunner{
		syncFunc: func(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
			return model.SyncResult{Created: 1, Total: 5}, nil
		},
	}

	rec := doSync(t, runner, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(runner.calls) != 2 {
		t.Errorf("calls = %v", runner.calls)
	}

	var resp struct {
		Results map[string]model.SyncResult `json:"results"`
		Errors  map[string]string           `json:"errors"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Results) != 2 || resp.Results["posts"].Total != 5 {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Errors != nil {
		t.Errorf("errors = %v, want omitted", resp.Errors)
	}
}

// 全コレクション実行で一部失敗してもレスポンスが200で失敗が記録されることを検証
func TestTriggerSync_PartialFailure(t *testing.T) {
	runner := &mockSyncRunner{
		syncFunc: func(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
			if col.Name == "projects" {
				return model.SyncResult{}, errors.New("connection reset")
			}
			return model.SyncResult{Total: 3}, nil
		},
	}

	rec := doSync(t, runner, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Results map[string]model.SyncResult `json:"results"`
		Errors  map[string]string           `json:"errors"`
	}
	decodeJSON(t, rec, &resp)
	if _, ok := resp.Results["posts"]; !ok {
		t.Error("成功したコレクションの結果が含まれるべき")
	}
	if _, ok := resp.Errors["projects"]; !ok {
		t.Error("失敗したコレクションのエラーが含まれるべき")
	}
}

// 単一コレクション指定の同期を検証
func TestTriggerSync_SingleCollection(t *testing.T) {
	runner := &mockSyncRunner{
		syncFunc: func(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
			return model.SyncResult{Created: 2, Updated: 1, Total: 10}, nil
		},
	}

	rec := doSync(t, runner, `{"collection":"posts"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "posts" {
		t.Errorf("calls = %v", runner.calls)
	}
	var resp struct {
		Results map[string]model.SyncResult `json:"results"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Results["posts"].Created != 2 {
		t.Errorf("results = %+v", resp.Results)
	}
}

// 未設定コレクション指定で404が返ることを検証
func TestTriggerSync_UnknownCollection(t *testing.T) {
	rec := doSync(t, &mockSyncRunner{}, `{"collection":"unknown"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// 実行中パスとの競合で409が返ることを検証
func TestTriggerSync_InFlight(t *testing.T) {
	runner := &mockSyncRunner{
		syncFunc: func(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
			return model.SyncResult{}, model.ErrSyncInFlight
		},
	}

	rec := doSync(t, runner, `{"collection":"posts"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var apiErr model.APIError
	decodeJSON(t, rec, &apiErr)
	if apiErr.Code != model.ErrCodeSyncInFlight {
		t.Errorf("code = %q", apiErr.Code)
	}
}

// リモート障害で502が返ることを検証
func TestTriggerSync_RemoteUnavailable(t *testing.T) {
	runner := &mockSyncRunner{
		syncFunc: func(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
			return model.SyncResult{}, &model.RemoteUnavailableError{
				DatabaseID: col.DatabaseID,
				StatusCode: 503,
				Attempts:   3,
			}
		},
	}

	rec := doSync(t, runner, `{"collection":"posts"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var apiErr model.APIError
	decodeJSON(t, rec, &apiErr)
	if apiErr.Code != model.ErrCodeSyncFailed {
		t.Errorf("code = %q", apiErr.Code)
	}
}

// 書き込み失敗で500が返ることを検証
func TestTriggerSync_PersistenceFailure(t *testing.T) {
	runner := &mockSyncRunner{
		syncFunc: func(ctx context.Context, col mirror.Collection) (model.SyncResult, error) {
			return model.SyncResult{}, &model.PersistenceError{Op: "sync posts", Err: errors.New("deadlock")}
		},
	}

	rec := doSync(t, runner, `{"collection":"posts"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

// 不正なJSONボディで400が返ることを検証
func TestTriggerSync_InvalidBody(t *testing.T) {
	runner := &mockSyncRunner{}
	rec := doSync(t, runner, `{invalid`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(runner.calls) != 0 {
		t.Errorf("calls = %v, 不正なボディで同期を実行してはならない", runner.calls)
	}
}
