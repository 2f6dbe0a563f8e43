package mirror

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/notionmirror/internal/model"
)

// SyncRunner は1コレクション分の同期パスの実行インターフェース。
type SyncRunner interface {
	Sync(ctx context.Context, col Collection) (model.SyncResult, error)
}

// Scheduler は設定済みコレクションの定期同期を行う。
// コレクションは順次処理する（同一DBへの書き込みが競合しないようにするため）。
type Scheduler struct {
	runner      SyncRunner
	collections []Collection
	logger      *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner SyncRunner, collections []Collection, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:      runner,
		collections: collections,
		logger:      logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後に1回実行し、以降はコンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("collection_count", len(s.collections)),
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は全コレクションの同期パスを順次1回ずつ実行する。
// 1コレクションの失敗は他コレクションの同期を妨げない。
func (s *Scheduler) RunOnce(ctx context.Context) map[string]model.SyncResult {
	results := make(map[string]model.SyncResult, len(s.collections))

	for _, col := range s.collections {
		if ctx.Err() != nil {
			return results
		}

		result, err := s.runner.Sync(ctx, col)
		if err != nil {
			if errors.Is(err, model.ErrSyncInFlight) {
				s.logger.Info("同期パスは既に実行中のためスキップしました",
					slog.String("collection", col.Name),
				)
				continue
			}
			s.logger.Error("同期パスに失敗しました",
				slog.String("collection", col.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		results[col.Name] = result
	}

	return results
}
