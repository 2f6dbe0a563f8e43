// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/notionmirror/internal/model"
)

// PageRepository はミラーページの永続化インターフェース。
type PageRepository interface {
	// FindByID は指定IDのページを取得する。見つからない場合はnilを返す。
	// タグ関連はロードしない。
	FindByID(ctx context.Context, id string) (*model.Page, error)

	// Create はページを作成する。
	Create(ctx context.Context, page *model.Page) error

	// Update はページの全マップ済みカラムを無条件に上書きする（ID以外）。
	Update(ctx context.Context, page *model.Page) error

	// SoftDeleteMissing は指定コレクションに属するページのうち、
	// keepIDsに含まれないものをソフト削除する。削除対象は所属コレクションで
	// 厳密にスコープされ、他コレクションの行には影響しない。
	// ソフト削除した行数を返す。
	SoftDeleteMissing(ctx context.Context, databaseID string, keepIDs []string) (int64, error)

	// ListByDatabase は指定コレクションの未削除ページを作成日時の降順で返す。
	ListByDatabase(ctx context.Context, databaseID string) ([]*model.Page, error)
}

// TagRepository はタグおよびページとの関連の永続化インターフェース。
type TagRepository interface {
	// Upsert はタグを作成または更新する（name/colorは毎回上書き）。
	Upsert(ctx context.Context, tag model.Tag) error

	// ReplaceForPage はページのタグ関連集合を削除して作り直す。
	// 適用後の関連集合はtagIDsと完全に一致する。
	ReplaceForPage(ctx context.Context, pageID string, tagIDs []string) error

	// ListByPageID は指定ページに関連付いたタグを返す。
	ListByPageID(ctx context.Context, pageID string) ([]model.Tag, error)

	// ListByPageIDs は複数ページのタグをページIDごとにまとめて返す。
	ListByPageIDs(ctx context.Context, pageIDs []string) (map[string][]model.Tag, error)
}

// StatusRepository はステータスの永続化インターフェース。
type StatusRepository interface {
	// Upsert はステータスを作成または更新する。
	// 外部システム側でのリネームに追従するため、name/colorは毎回上書きする。
	Upsert(ctx context.Context, status model.Status) error

	// FindByID は指定IDのステータスを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Status, error)
}

// Tx は1トランザクションに束縛されたリポジトリ群を提供する。
type Tx interface {
	Pages() PageRepository
	Tags() TagRepository
	Statuses() StatusRepository
}

// TxManager は同期パスのトランザクション境界を提供する。
// fnがエラーを返した場合は全変更をロールバックし、そのエラーを返す。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
