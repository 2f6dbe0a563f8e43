package cover

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/notionmirror/internal/security"
)

// カバーパイプラインの結果ラベル。メトリクス記録に使用する。
const (
	ResultStored   = "stored"
	ResultFallback = "fallback"
	ResultRejected = "rejected"
	ResultNotImage = "not_image"
	ResultFailed   = "failed"
)

// MetricsRecorder はカバーパイプラインの結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordCoverResult(result string)
}

// Config はPipelineの動作パラメータを保持する。
type Config struct {
	Timeout      time.Duration
	MaxBytes     int64 // ダウンロード打ち切りのハード上限
	SoftMaxBytes int64 // これ以下なら再エンコードしないソフト上限
	MaxDimension int
	JPEGQuality  int
}

// Pipeline はカバー画像の取得から保存までの一連の処理を行う。
//
// ダウンロード→検証→変換→保存のどの段階で失敗しても「カバーなし」に収束し、
// 同期パス全体を失敗させることはない。保存先はオブジェクトストレージを優先し、
// 失敗時はローカル静的ファイル領域へフォールバックする。
type Pipeline struct {
	ssrfGuard security.SSRFGuardService
	store     ObjectStore // nilの場合は常にローカル保存
	local     *LocalStore
	cfg       Config
	logger    *slog.Logger
	metrics   MetricsRecorder // nil可
}

// NewPipeline はPipelineの新しいインスタンスを生成する。
// storeがnilの場合、アセットは常にローカル静的ファイル領域に保存される。
func NewPipeline(
	ssrfGuard security.SSRFGuardService,
	store ObjectStore,
	local *LocalStore,
	cfg Config,
	logger *slog.Logger,
	metrics MetricsRecorder,
) *Pipeline {
	return &Pipeline{
		ssrfGuard: ssrfGuard,
		store:     store,
		local:     local,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Acquire はカバー画像を取得・変換・保存し、安定した再取得可能URLを返す。
// sourceURLが空、ダウンロード拒否、非画像データ、変換・保存エラーのいずれも
// 空文字列（カバーなし）を返す。エラーはログに記録され、呼び出し元には伝播しない。
func (p *Pipeline) Acquire(ctx context.Context, pageID, sourceURL string) string {
	if sourceURL == "" {
		return ""
	}

	data, contentType, ok := p.download(ctx, pageID, sourceURL)
	if !ok {
		p.record(ResultRejected)
		return ""
	}

	res, err := processImage(data, contentType, p.cfg.SoftMaxBytes, p.cfg.MaxDimension, p.cfg.JPEGQuality)
	if err != nil {
		p.logger.Warn("カバーを画像として処理できません（カバーなしとして継続）",
			slog.String("page_id", pageID),
			slog.String("content_type", contentType),
			slog.String("error", err.Error()),
		)
		p.record(ResultNotImage)
		return ""
	}

	return p.persist(ctx, pageID, res)
}

// download はカバー画像をサイズ上限・時間上限付きでダウンロードする。
// 拒否・失敗時はok=falseを返す（エラーにはしない）。
func (p *Pipeline) download(ctx context.Context, pageID, sourceURL string) (data []byte, contentType string, ok bool) {
	if err := p.ssrfGuard.ValidateURL(sourceURL); err != nil {
		p.logger.Warn("カバーURLがSSRF検証でブロックされました",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()),
		)
		return nil, "", false
	}

	client := p.ssrfGuard.NewSafeClient(p.cfg.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		p.logger.Warn("カバーダウンロードのリクエスト作成に失敗",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()),
		)
		return nil, "", false
	}
	req.Header.Set("User-Agent", "NotionMirror/1.0")

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Warn("カバーダウンロードに失敗",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()),
		)
		return nil, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("カバーダウンロードのHTTPステータス異常",
			slog.String("page_id", pageID),
			slog.Int("status", resp.StatusCode),
		)
		return nil, "", false
	}

	// 宣言サイズがハード上限を超える場合は本文を読まずに打ち切る
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if declared, err := strconv.ParseInt(cl, 10, 64); err == nil && declared > p.cfg.MaxBytes {
			p.logger.Warn("カバーの宣言サイズが上限を超過",
				slog.String("page_id", pageID),
				slog.Int64("declared", declared),
				slog.Int64("limit", p.cfg.MaxBytes),
			)
			return nil, "", false
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		p.logger.Warn("カバーの読み取りに失敗",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()),
		)
		return nil, "", false
	}

	if int64(len(body)) > p.cfg.MaxBytes {
		p.logger.Warn("カバーの実サイズが上限を超過",
			slog.String("page_id", pageID),
			slog.Int64("limit", p.cfg.MaxBytes),
		)
		return nil, "", false
	}

	return body, resp.Header.Get("Content-Type"), true
}

// persist は変換済みカバーを保存し、公開URLを返す。
// オブジェクトストレージが設定されていればそちらを優先し、
// エラー時はローカル静的ファイル領域へフォールバックする。
func (p *Pipeline) persist(ctx context.Context, pageID string, res *processed) string {
	filename := pageID + "." + res.Ext

	if p.store != nil {
		url, err := p.store.Put(ctx, filename, res.Data, res.ContentType)
		if err == nil {
			p.record(ResultStored)
			return url
		}
		p.logger.Warn("オブジェクトストレージへの保存に失敗（ローカルへフォールバック）",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()),
		)

		url, err = p.local.Put(ctx, filename, res.Data, res.ContentType)
		if err != nil {
			p.logger.Warn("ローカルフォールバック保存にも失敗（カバーなしとして継続）",
				slog.String("page_id", pageID),
				slog.String("error", err.Error()),
			)
			p.record(ResultFailed)
			return ""
		}
		p.record(ResultFallback)
		return url
	}

	url, err := p.local.Put(ctx, filename, res.Data, res.ContentType)
	if err != nil {
		p.logger.Warn("ローカル保存に失敗（カバーなしとして継続）",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()),
		)
		p.record(ResultFailed)
		return ""
	}
	p.record(ResultStored)
	return url
}

// record はメトリクスレコーダが設定されている場合のみ結果を記録する。
func (p *Pipeline) record(result string) {
	if p.metrics != nil {
		p.metrics.RecordCoverResult(result)
	}
}
