package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/notionmirror/internal/model"
)

// mockRunner はSyncRunnerのテスト用モック。
type mockRunner struct {
	syncFunc func(ctx context.Context, col Collection) (model.SyncResult, error)
	calls    []string
}

func (m *mockRunner) Sync(ctx context.Context, col Collection) (model.SyncResult, error) {
	m.calls = append(m.calls, col.Name)
	if m.syncFunc != nil {
		return m.syncFunc(ctx, col)
	}
	return model.SyncResult{}, nil
}

var schedulerCollections = []Collection{
	{Name: "posts", DatabaseID: "db-1"},
	{Name: "projects", DatabaseID: "db-2"},
}

// 全コレクションが順次実行され、結果がコレクション名で返ることを検証
func TestRunOnce_AllCollections(t *testing.T) {
	runner := &mockRunner{
		syncFunc: func(ctx context.Context, col Collection) (model.SyncResult, error) {
			return model.SyncResult{Total: 3}, nil
		},
	}
	s := NewScheduler(runner, schedulerCollections, testLogger())

	results := s.RunOnce(context.Background())

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results["posts"].Total != 3 || results["projects"].Total != 3 {
		t.Errorf("results = %+v", results)
	}
	if len(runner.calls) != 2 || runner.calls[0] != "posts" || runner.calls[1] != "projects" {
		t.Errorf("calls = %v, 設定順に実行されるべき", runner.calls)
	}
}

// 実行中コレクションのスキップが他コレクションを妨げないことを検証
func TestRunOnce_SkipsInFlight(t *testing.T) {
	runner := &mockRunner{
		syncFunc: func(ctx context.Context, col Collection) (model.SyncResult, error) {
			if col.Name == "posts" {
				return model.SyncResult{}, model.ErrSyncInFlight
			}
			return model.SyncResult{Total: 1}, nil
		},
	}
	s := NewScheduler(runner, schedulerCollections, testLogger())

	results := s.RunOnce(context.Background())

	if _, ok := results["posts"]; ok {
		t.Error("実行中コレクションの結果を含めてはならない")
	}
	if _, ok := results["projects"]; !ok {
		t.Error("他コレクションは実行されるべき")
	}
}

// 1コレクションの失敗が他コレクションを妨げないことを検証
func TestRunOnce_FailureDoesNotStopOthers(t *testing.T) {
	runner := &mockRunner{
		syncFunc: func(ctx context.Context, col Collection) (model.SyncResult, error) {
			if col.Name == "posts" {
				return model.SyncResult{}, errors.New("connection reset")
			}
			return model.SyncResult{Total: 1}, nil
		},
	}
	s := NewScheduler(runner, schedulerCollections, testLogger())

	results := s.RunOnce(context.Background())

	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if _, ok := results["projects"]; !ok {
		t.Error("失敗していないコレクションの結果が返るべき")
	}
}

// コンテキストキャンセル後にコレクションを処理しないことを検証
func TestRunOnce_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &mockRunner{
		syncFunc: func(ctx context.Context, col Collection) (model.SyncResult, error) {
			cancel()
			return model.SyncResult{Total: 1}, nil
		},
	}
	s := NewScheduler(runner, schedulerCollections, testLogger())

	s.RunOnce(ctx)

	if len(runner.calls) != 1 {
		t.Errorf("calls = %v, キャンセル後は次のコレクションを処理してはならない", runner.calls)
	}
}
