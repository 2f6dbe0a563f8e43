// Package mirror はNotionコレクションの同期パスを提供する。
// スナップショット取得、差分適用、ソフト削除、再検証通知を含む。
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/notionmirror/internal/metrics"
	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/notion"
	"github.com/hitoshi/notionmirror/internal/repository"
)

// 同期パスの結果ラベル。メトリクス記録に使用する。
const (
	passResultSuccess     = "success"
	passResultFetchFailed = "fetch_failed"
	passResultTxFailed    = "tx_failed"
	passResultInFlight    = "in_flight"
)

// SnapshotFetcher はコレクション全件スナップショットの取得インターフェース。
type SnapshotFetcher interface {
	QueryDatabase(ctx context.Context, databaseID string) ([]notion.PageRecord, error)
}

// CoverAcquirer はカバー画像の取得・保存インターフェース。
// 失敗は空文字列（カバーなし）に収束し、エラーを返さない。
type CoverAcquirer interface {
	Acquire(ctx context.Context, pageID, sourceURL string) string
}

// PageUpserter は正規化レコードの書き込みインターフェース。
type PageUpserter interface {
	Upsert(ctx context.Context, tx repository.Tx, existing *model.Page, canon model.CanonicalPage, coverURL string) (bool, error)
}

// RevalidateNotifier はフロントエンドキャッシュの再検証通知インターフェース。
// 通知の失敗は同期結果に影響しない。
type RevalidateNotifier interface {
	Notify(ctx context.Context, tag string)
}

// Collection は同期対象のNotionデータベース1つを表す。
type Collection struct {
	Name          string // ログ・メトリクスで使用する識別名
	DatabaseID    string
	RevalidateTag string
}

// Reconciler は1コレクション分の同期パスを実行する。
//
// パスは全件スナップショットを取得し、単一トランザクション内で
// ソフト削除→ページごとの差分適用を行う。同一コレクションのパスは
// 同時に1つしか走らない（多重起動はErrSyncInFlightで拒否される）。
type Reconciler struct {
	fetcher   SnapshotFetcher
	extractor *notion.Extractor
	covers    CoverAcquirer
	upserter  PageUpserter
	txManager repository.TxManager
	notifier  RevalidateNotifier       // nil可
	metrics   metrics.MetricsCollector // nil可
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // database_idごとの単一実行ロック
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(
	fetcher SnapshotFetcher,
	extractor *notion.Extractor,
	covers CoverAcquirer,
	upserter PageUpserter,
	txManager repository.TxManager,
	notifier RevalidateNotifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		fetcher:   fetcher,
		extractor: extractor,
		covers:    covers,
		upserter:  upserter,
		txManager: txManager,
		notifier:  notifier,
		metrics:   collector,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Sync は指定コレクションの同期パスを1回実行する。
// 同一コレクションのパスが既に実行中の場合はErrSyncInFlightを返す。
// リモート取得失敗はRemoteUnavailableError、書き込み失敗は
// PersistenceErrorとして返し、後者の場合は全変更がロールバック済みである。
func (r *Reconciler) Sync(ctx context.Context, col Collection) (model.SyncResult, error) {
	lock := r.lockFor(col.DatabaseID)
	if !lock.TryLock() {
		r.recordPass(col.Name, passResultInFlight)
		return model.SyncResult{}, model.ErrSyncInFlight
	}
	defer lock.Unlock()

	passID := uuid.NewString()
	start := time.Now()

	r.logger.Info("同期パスを開始します",
		slog.String("pass_id", passID),
		slog.String("collection", col.Name),
		slog.String("database_id", col.DatabaseID),
	)

	records, err := r.fetcher.QueryDatabase(ctx, col.DatabaseID)
	if err != nil {
		r.logger.Error("スナップショットの取得に失敗しました",
			slog.String("pass_id", passID),
			slog.String("collection", col.Name),
			slog.String("error", err.Error()),
		)
		r.recordPass(col.Name, passResultFetchFailed)
		return model.SyncResult{}, err
	}

	keepIDs := make([]string, 0, len(records))
	for _, rec := range records {
		keepIDs = append(keepIDs, rec.ID)
	}

	var result model.SyncResult
	var skipped int
	var softDeleted int64

	err = r.txManager.WithinTx(ctx, func(tx repository.Tx) error {
		n, err := tx.Pages().SoftDeleteMissing(ctx, col.DatabaseID, keepIDs)
		if err != nil {
			return err
		}
		softDeleted = n

		for _, rec := range records {
			existing, err := tx.Pages().FindByID(ctx, rec.ID)
			if err != nil {
				return err
			}

			// 未変更のページは書き込みもカバー取得もスキップする
			if existing != nil && !existing.IsDeleted &&
				existing.LastEditedTime.Equal(rec.LastEditedTime) {
				skipped++
				continue
			}

			canon := r.extractor.Extract(rec)
			coverURL := r.covers.Acquire(ctx, canon.ID, canon.CoverSourceURL)

			created, err := r.upserter.Upsert(ctx, tx, existing, canon, coverURL)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}

		return nil
	})
	if err != nil {
		r.logger.Error("同期トランザクションに失敗しました（ロールバック済み）",
			slog.String("pass_id", passID),
			slog.String("collection", col.Name),
			slog.String("error", err.Error()),
		)
		r.recordPass(col.Name, passResultTxFailed)
		return model.SyncResult{}, &model.PersistenceError{Op: "sync " + col.Name, Err: err}
	}

	result.Total = len(records)

	duration := time.Since(start)
	r.recordPass(col.Name, passResultSuccess)
	if r.metrics != nil {
		r.metrics.RecordSyncDuration(col.Name, duration)
		r.metrics.RecordPagesCreated(col.Name, result.Created)
		r.metrics.RecordPagesUpdated(col.Name, result.Updated)
		r.metrics.RecordPagesSkipped(col.Name, skipped)
		r.metrics.RecordPagesSoftDeleted(col.Name, int(softDeleted))
	}

	r.logger.Info("同期パスが完了しました",
		slog.String("pass_id", passID),
		slog.String("collection", col.Name),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", skipped),
		slog.Int64("soft_deleted", softDeleted),
		slog.Int("total", result.Total),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	// 変更があった場合のみフロントエンドキャッシュの再検証を依頼する
	if r.notifier != nil && (result.Created+result.Updated > 0 || softDeleted > 0) {
		r.notifier.Notify(ctx, col.RevalidateTag)
	}

	return result, nil
}

// lockFor はコレクションの単一実行ロックを返す（なければ生成する）。
func (r *Reconciler) lockFor(databaseID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[databaseID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[databaseID] = lock
	}
	return lock
}

// recordPass はメトリクスコレクタが設定されている場合のみ結果を記録する。
func (r *Reconciler) recordPass(collection, result string) {
	if r.metrics != nil {
		r.metrics.RecordSyncPass(collection, result)
	}
}
