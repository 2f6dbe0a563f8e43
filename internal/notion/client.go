package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/notionmirror/internal/model"
)

// defaultBaseURL はNotion APIのエンドポイント。
const defaultBaseURL = "https://api.notion.com"

// defaultPageSize はデータベースクエリの1回あたりの取得件数。
const defaultPageSize = 100

// ClientConfig はNotion APIクライアントの設定を保持する。
type ClientConfig struct {
	APIKey  string
	Version string // Notion-Versionヘッダー（例: "2022-06-28"）
	BaseURL string // 空の場合は本番エンドポイント
	Timeout time.Duration

	// MaxAttempts は1リクエストあたりの最大試行回数（リトライ込み）。
	// 0以下の場合は3を使用する。
	MaxAttempts int

	// InitialBackoff は指数バックオフの初回遅延。0以下の場合は500msを使用する。
	InitialBackoff time.Duration
}

// Client はNotionデータベースのスナップショット取得を行うHTTPクライアント。
// 429および5xxに限りバックオフ付きでリトライし、
// リトライ予算を使い切るとRemoteUnavailableErrorを返す。
type Client struct {
	httpClient     *http.Client
	apiKey         string
	version        string
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		apiKey:         cfg.APIKey,
		version:        cfg.Version,
		baseURL:        baseURL,
		maxAttempts:    maxAttempts,
		initialBackoff: backoff,
		logger:         logger,
	}
}

// queryRequest はデータベースクエリのリクエストボディ。
type queryRequest struct {
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size"`
}

// queryResponse はデータベースクエリのレスポンスボディ。
type queryResponse struct {
	Results    []PageRecord `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor"`
}

// QueryDatabase は指定データベースの全ページをカーソル追跡で取得する。
// ページングを跨いで1つの順序付きスナップショットとして返す。
func (c *Client) QueryDatabase(ctx context.Context, databaseID string) ([]PageRecord, error) {
	var records []PageRecord
	cursor := ""

	for {
		resp, err := c.queryOnce(ctx, databaseID, cursor)
		if err != nil {
			return nil, err
		}

		records = append(records, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	c.logger.Info("Notionスナップショットを取得しました",
		slog.String("database_id", databaseID),
		slog.Int("page_count", len(records)),
	)

	return records, nil
}

// queryOnce は1ページ分のクエリをリトライ付きで実行する。
// 429と5xxのみリトライ対象とし、その他の非2xxは即座に失敗させる。
func (c *Client) queryOnce(ctx context.Context, databaseID, cursor string) (*queryResponse, error) {
	url := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, databaseID)

	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.initialBackoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, status, err := c.doQuery(ctx, url, cursor)
		if err == nil && status >= 200 && status < 300 {
			return resp, nil
		}

		lastStatus = status
		lastErr = err

		// リトライ対象: ネットワークエラー、429、5xx
		retryable := err != nil || status == http.StatusTooManyRequests || status >= 500
		if !retryable {
			return nil, &model.RemoteUnavailableError{
				DatabaseID: databaseID,
				StatusCode: status,
				Attempts:   attempt,
			}
		}

		c.logger.Warn("Notionクエリをリトライします",
			slog.String("database_id", databaseID),
			slog.Int("attempt", attempt),
			slog.Int("status", status),
		)
	}

	return nil, &model.RemoteUnavailableError{
		DatabaseID: databaseID,
		StatusCode: lastStatus,
		Attempts:   c.maxAttempts,
		Err:        lastErr,
	}
}

// doQuery は1回のHTTPリクエストを実行し、レスポンスとステータスコードを返す。
func (c *Client) doQuery(ctx context.Context, url, cursor string) (*queryResponse, int, error) {
	body, err := json.Marshal(queryRequest{
		StartCursor: cursor,
		PageSize:    defaultPageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("リクエストボディの生成に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// ボディは読み捨ててコネクションを再利用可能にする
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("レスポンスのデコードに失敗: %w", err)
	}

	return &parsed, resp.StatusCode, nil
}
