package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/worker/mirror"
)

// SyncHandler は手動同期トリガーのHTTPハンドラー。
// スケジューラと同じReconcilerを共有するため、実行中パスとの多重起動は
// シングルフライト保証により409で拒否される。
type SyncHandler struct {
	runner      mirror.SyncRunner
	collections []mirror.Collection
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(runner mirror.SyncRunner, collections []mirror.Collection) *SyncHandler {
	return &SyncHandler{
		runner:      runner,
		collections: collections,
	}
}

// syncRequest は手動同期リクエストのボディ。ボディなしは全コレクション対象。
type syncRequest struct {
	Collection string `json:"collection"`
}

// syncResponse は手動同期のレスポンス。
type syncResponse struct {
	Results map[string]model.SyncResult `json:"results"`
	Errors  map[string]string           `json:"errors,omitempty"`
}

// TriggerSync は同期パスを即時実行する。
// POST /api/sync
//
// ボディで対象コレクションを指定できる。単一コレクション指定時は
// 実行中なら409、リモート障害なら502、書き込み失敗なら500を返す。
// 全コレクション実行時は常に200で、コレクションごとの結果とエラーを返す。
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:    "INVALID_REQUEST",
			Message: "リクエストボディの解析に失敗しました。",
		})
		return
	}

	if req.Collection != "" {
		h.syncOne(w, r, req.Collection)
		return
	}

	resp := syncResponse{
		Results: make(map[string]model.SyncResult, len(h.collections)),
		Errors:  make(map[string]string),
	}
	for _, col := range h.collections {
		result, err := h.runner.Sync(r.Context(), col)
		if err != nil {
			resp.Errors[col.Name] = err.Error()
			continue
		}
		resp.Results[col.Name] = result
	}
	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// syncOne は指定コレクションの同期パスを実行する。
func (h *SyncHandler) syncOne(w http.ResponseWriter, r *http.Request, name string) {
	col, ok := h.findCollection(name)
	if !ok {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotConfiguredError(name))
		return
	}

	result, err := h.runner.Sync(r.Context(), col)
	if err != nil {
		handleSyncError(w, name, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, syncResponse{
		Results: map[string]model.SyncResult{name: result},
	})
}

// findCollection は名前で設定済みコレクションを探す。
func (h *SyncHandler) findCollection(name string) (mirror.Collection, bool) {
	for _, col := range h.collections {
		if col.Name == name {
			return col, true
		}
	}
	return mirror.Collection{}, false
}

// handleSyncError は同期エラーを適切なHTTPステータスコードに変換する。
func handleSyncError(w http.ResponseWriter, collection string, err error) {
	if errors.Is(err, model.ErrSyncInFlight) {
		writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:    model.ErrCodeSyncInFlight,
			Message: "同期パスがすでに実行中です: " + collection,
		})
		return
	}

	var remoteErr *model.RemoteUnavailableError
	if errors.As(err, &remoteErr) {
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:    model.ErrCodeSyncFailed,
			Message: "リモートAPIからの取得に失敗しました: " + collection,
		})
		return
	}

	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrCodeSyncFailed,
		Message: "同期パスに失敗しました: " + collection,
	})
}
