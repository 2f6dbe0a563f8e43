// Package handler は読み取りAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/page"
)

// PageServiceInterface はページハンドラーが必要とするサービスインターフェース。
type PageServiceInterface interface {
	// ListCards は指定コレクションの未削除ページをタグ付きで返す。
	ListCards(ctx context.Context, databaseID string) ([]*model.Page, error)
	// GetDetail は指定IDのページを返す。見つからない場合はnilを返す。
	GetDetail(ctx context.Context, id string) (*page.Detail, error)
}

// PageHandler はミラーページ参照のHTTPハンドラー。
type PageHandler struct {
	service           PageServiceInterface
	postDatabaseID    string
	projectDatabaseID string // 未設定（空）の場合プロジェクトAPIは提供されない
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(service PageServiceInterface, postDatabaseID, projectDatabaseID string) *PageHandler {
	return &PageHandler{
		service:           service,
		postDatabaseID:    postDatabaseID,
		projectDatabaseID: projectDatabaseID,
	}
}

// tagResponse はタグのAPIレスポンス。
type tagResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// periodResponse はプロジェクトの期間のAPIレスポンス。
type periodResponse struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// cardResponse は一覧カードのAPIレスポンス。
type cardResponse struct {
	ID          string          `json:"id"`
	CoverURL    string          `json:"coverUrl"`
	Title       string          `json:"title"`
	Tags        []tagResponse   `json:"tags"`
	CreatedDate string          `json:"createdDate"`
	IsPinned    bool            `json:"isPinned"`
	Period      *periodResponse `json:"period,omitempty"`
}

// statusResponse はステータスのAPIレスポンス。
type statusResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// detailResponse はページ詳細のAPIレスポンス。
type detailResponse struct {
	ID             string          `json:"id"`
	CoverURL       string          `json:"coverUrl"`
	Title          string          `json:"title"`
	Slug           string          `json:"slug,omitempty"`
	Tags           []tagResponse   `json:"tags"`
	Status         *statusResponse `json:"status,omitempty"`
	CreatedDate    string          `json:"createdDate"`
	IsPinned       bool            `json:"isPinned"`
	Period         *periodResponse `json:"period,omitempty"`
	URL            string          `json:"url,omitempty"`
	LastEditedTime time.Time       `json:"lastEditedTime"`
	Properties     json.RawMessage `json:"properties,omitempty"`
}

// ListPosts はブログ記事カードの一覧を返す。
// GET /api/posts
func (h *PageHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	h.listCards(w, r, h.postDatabaseID, "posts", false)
}

// GetPost はブログ記事の詳細を返す。
// GET /api/posts/{id}
func (h *PageHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	h.getDetail(w, r, false)
}

// ListProjects はポートフォリオプロジェクトカードの一覧を返す。
// GET /api/projects
func (h *PageHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	h.listCards(w, r, h.projectDatabaseID, "projects", true)
}

// GetProject はポートフォリオプロジェクトの詳細を返す。
// GET /api/projects/{id}
func (h *PageHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	h.getDetail(w, r, true)
}

// listCards はコレクションのカード一覧を返す共通処理。
func (h *PageHandler) listCards(w http.ResponseWriter, r *http.Request, databaseID, collection string, withPeriod bool) {
	if databaseID == "" {
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewNotConfiguredError(collection))
		return
	}

	pages, err := h.service.ListCards(r.Context(), databaseID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	cards := make([]cardResponse, 0, len(pages))
	for _, p := range pages {
		cards = append(cards, toCardResponse(p, withPeriod))
	}

	writeJSONResponse(w, http.StatusOK, cards)
}

// getDetail はページ詳細を返す共通処理。
func (h *PageHandler) getDetail(w http.ResponseWriter, r *http.Request, withPeriod bool) {
	pageID := chi.URLParam(r, "id")

	detail, err := h.service.GetDetail(r.Context(), pageID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if detail == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPageNotFoundError(pageID))
		return
	}

	writeJSONResponse(w, http.StatusOK, toDetailResponse(detail, withPeriod))
}

// toCardResponse はページをカードレスポンスに変換する。
func toCardResponse(p *model.Page, withPeriod bool) cardResponse {
	card := cardResponse{
		ID:          p.ID,
		CoverURL:    p.CoverURL,
		Title:       p.Title,
		Tags:        toTagResponses(p.Tags),
		CreatedDate: createdDate(p),
		IsPinned:    p.Pin,
	}
	if withPeriod {
		card.Period = toPeriodResponse(p)
	}
	return card
}

// toDetailResponse はページ詳細をレスポンスに変換する。
func toDetailResponse(d *page.Detail, withPeriod bool) detailResponse {
	p := d.Page
	resp := detailResponse{
		ID:             p.ID,
		CoverURL:       p.CoverURL,
		Title:          p.Title,
		Slug:           p.Slug,
		Tags:           toTagResponses(p.Tags),
		CreatedDate:    createdDate(p),
		IsPinned:       p.Pin,
		URL:            p.PublicURL,
		LastEditedTime: p.LastEditedTime,
		Properties:     p.RawProperties,
	}
	if d.Status != nil {
		resp.Status = &statusResponse{ID: d.Status.ID, Name: d.Status.Name, Color: d.Status.Color}
	}
	if withPeriod {
		resp.Period = toPeriodResponse(p)
	}
	return resp
}

// toTagResponses はタグの一覧をレスポンス形式に変換する。タグなしは空配列にする。
func toTagResponses(tags []model.Tag) []tagResponse {
	out := make([]tagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagResponse{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	return out
}

// toPeriodResponse は期間フィールドをレスポンス形式に変換する。開始日がなければnil。
func toPeriodResponse(p *model.Page) *periodResponse {
	if p.WrittenDate == nil {
		return nil
	}
	period := &periodResponse{Start: p.WrittenDate.Format("2006-01-02")}
	if p.EndDate != nil {
		period.End = p.EndDate.Format("2006-01-02")
	}
	return period
}

// createdDate はカードの表示日付を返す。
// 日付フィールドがあればそれを、なければページの作成日時を使用する。
func createdDate(p *model.Page) string {
	if p.WrittenDate != nil {
		return p.WrittenDate.Format("2006-01-02")
	}
	return p.CreatedTime.Format("2006-01-02")
}
