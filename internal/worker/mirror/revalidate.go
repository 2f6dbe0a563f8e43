package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// notifyTimeout は再検証通知リクエストの時間上限。
const notifyTimeout = 5 * time.Second

// WebhookNotifier はフロントエンドのキャッシュ再検証Webhookを呼び出す。
// 通知はベストエフォートで、失敗はログに記録するだけで呼び出し元には伝播しない。
// endpointが空の場合、通知は何もしない。
type WebhookNotifier struct {
	httpClient *http.Client
	endpoint   string
	secret     string
	logger     *slog.Logger
}

// NewWebhookNotifier はWebhookNotifierの新しいインスタンスを生成する。
func NewWebhookNotifier(endpoint, secret string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: notifyTimeout},
		endpoint:   endpoint,
		secret:     secret,
		logger:     logger,
	}
}

// revalidateRequest は再検証Webhookのリクエストボディ。
type revalidateRequest struct {
	Tag string `json:"tag"`
}

// Notify は指定タグの再検証を依頼する。
// 未設定時は何もしない。エラーはログに記録して握りつぶす。
func (n *WebhookNotifier) Notify(ctx context.Context, tag string) {
	if n.endpoint == "" || tag == "" {
		return
	}

	body, err := json.Marshal(revalidateRequest{Tag: tag})
	if err != nil {
		n.logger.Warn("再検証リクエストの生成に失敗しました",
			slog.String("tag", tag),
			slog.String("error", err.Error()),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("再検証リクエストの作成に失敗しました",
			slog.String("tag", tag),
			slog.String("error", err.Error()),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("x-webhook-secret", n.secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("再検証通知の送信に失敗しました",
			slog.String("tag", tag),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("再検証通知が拒否されました",
			slog.String("tag", tag),
			slog.Int("status", resp.StatusCode),
		)
		return
	}

	n.logger.Info("再検証通知を送信しました", slog.String("tag", tag))
}

// compile-time interface check
var _ RevalidateNotifier = (*WebhookNotifier)(nil)
