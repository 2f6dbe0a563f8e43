// Package page はミラーページのアップサートと参照サービスを提供する。
package page

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/repository"
)

// UpsertService は正規化レコードをミラー行として書き込む。
type UpsertService struct {
	now func() time.Time
}

// NewUpsertService はUpsertServiceの新しいインスタンスを生成する。
func NewUpsertService() *UpsertService {
	return &UpsertService{now: time.Now}
}

// Upsert は正規化レコードを全置換方式で書き込む。
// 既存行がある場合は全マップ済みカラムを上書きし、タグ関連は作り直す。
// coverURLはカバー取得パイプラインの結果（空文字列は「カバーなし」）。
// 戻り値は新規作成されたかどうか。
func (s *UpsertService) Upsert(
	ctx context.Context,
	tx repository.Tx,
	existing *model.Page,
	canon model.CanonicalPage,
	coverURL string,
) (bool, error) {
	row := &model.Page{
		ID:                 canon.ID,
		DatabaseID:         canon.DatabaseID,
		URL:                canon.URL,
		PublicURL:          canon.PublicURL,
		CreatedTime:        canon.CreatedTime,
		LastEditedTime:     canon.LastEditedTime,
		CreatedByUserID:    canon.CreatedByID,
		LastEditedByUserID: canon.LastEditedByID,
		Archived:           canon.Archived,
		InTrash:            canon.InTrash,
		CoverURL:           resolveCoverURL(existing, canon, coverURL),
		CoverExpiryTime:    canon.CoverExpiry,
		Pin:                canon.Pin,
		Slug:               canon.Slug,
		Title:              canon.Title,
		WrittenDate:        canon.WrittenDate,
		EndDate:            canon.EndDate,
		RawProperties:      canon.RawProperties,
		// 再出現したページはここで無条件に復活する
		IsDeleted: false,
		SyncedAt:  s.now(),
	}

	if canon.Status != nil {
		if err := tx.Statuses().Upsert(ctx, *canon.Status); err != nil {
			return false, fmt.Errorf("ステータスの書き込みに失敗しました: %w", err)
		}
		row.StatusID = canon.Status.ID
	}

	created := existing == nil
	if created {
		if err := tx.Pages().Create(ctx, row); err != nil {
			return false, fmt.Errorf("ページの書き込みに失敗しました: %w", err)
		}
	} else {
		if err := tx.Pages().Update(ctx, row); err != nil {
			return false, fmt.Errorf("ページの書き込みに失敗しました: %w", err)
		}
	}

	tagIDs := make([]string, 0, len(canon.Tags))
	for _, tag := range canon.Tags {
		if err := tx.Tags().Upsert(ctx, tag); err != nil {
			return false, fmt.Errorf("タグの書き込みに失敗しました: %w", err)
		}
		tagIDs = append(tagIDs, tag.ID)
	}
	if err := tx.Tags().ReplaceForPage(ctx, canon.ID, tagIDs); err != nil {
		return false, fmt.Errorf("タグ関連の書き込みに失敗しました: %w", err)
	}

	return created, nil
}

// resolveCoverURL は保存するカバーURLを決定する。
// ソースにカバーがなければ空、取得成功なら新しい保存先URL、
// 取得失敗なら既存の保存済みURLを維持する（期限切れ前の資産を残す）。
func resolveCoverURL(existing *model.Page, canon model.CanonicalPage, coverURL string) string {
	if canon.CoverSourceURL == "" {
		return ""
	}
	if coverURL != "" {
		return coverURL
	}
	if existing != nil {
		return existing.CoverURL
	}
	return ""
}
