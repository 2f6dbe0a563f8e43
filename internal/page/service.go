package page

import (
	"context"
	"fmt"

	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/repository"
)

// Detail はページ詳細の読み取り結果。ページ本体と解決済みステータスを持つ。
type Detail struct {
	Page   *model.Page
	Status *model.Status // ステータス未設定の場合はnil
}

// QueryService は参照API向けのページ読み取りサービス。
type QueryService struct {
	pages    repository.PageRepository
	tags     repository.TagRepository
	statuses repository.StatusRepository
}

// NewQueryService はQueryServiceの新しいインスタンスを生成する。
func NewQueryService(
	pages repository.PageRepository,
	tags repository.TagRepository,
	statuses repository.StatusRepository,
) *QueryService {
	return &QueryService{pages: pages, tags: tags, statuses: statuses}
}

// ListCards は指定コレクションの未削除ページをタグ付きで返す。
// 並び順は作成日時の降順。
func (s *QueryService) ListCards(ctx context.Context, databaseID string) ([]*model.Page, error) {
	pages, err := s.pages.ListByDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return pages, nil
	}

	ids := make([]string, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.ID)
	}

	tagsByPage, err := s.tags.ListByPageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("タグの読み込みに失敗しました: %w", err)
	}
	for _, p := range pages {
		p.Tags = tagsByPage[p.ID]
	}

	return pages, nil
}

// GetDetail は指定IDのページをタグ・ステータス付きで返す。
// 見つからない、またはソフト削除済みの場合はnilを返す。
func (s *QueryService) GetDetail(ctx context.Context, id string) (*Detail, error) {
	page, err := s.pages.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if page == nil || page.IsDeleted {
		return nil, nil
	}

	tags, err := s.tags.ListByPageID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("タグの読み込みに失敗しました: %w", err)
	}
	page.Tags = tags

	detail := &Detail{Page: page}
	if page.StatusID != "" {
		status, err := s.statuses.FindByID(ctx, page.StatusID)
		if err != nil {
			return nil, fmt.Errorf("ステータスの読み込みに失敗しました: %w", err)
		}
		detail.Status = status
	}

	return detail, nil
}
