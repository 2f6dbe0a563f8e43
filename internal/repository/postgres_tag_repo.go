package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/notionmirror/internal/model"
)

// PostgresTagRepo はPostgreSQLを使用したタグリポジトリ。
type PostgresTagRepo struct {
	db DBTX
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
// dbには*sql.DBまたは*sql.Txを渡せる。
func NewPostgresTagRepo(db DBTX) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// Upsert はタグを作成または更新する。
// 外部システム側でのリネームに追従するため、name/colorは毎回上書きする。
func (r *PostgresTagRepo) Upsert(ctx context.Context, tag model.Tag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, color) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color`,
		tag.ID, tag.Name, nullString(tag.Color),
	)
	if err != nil {
		return fmt.Errorf("タグのアップサートに失敗しました: %w", err)
	}
	return nil
}

// ReplaceForPage はページのタグ関連集合を削除して作り直す。
// 適用後の関連集合はtagIDsと完全に一致する（古い関連は残らない）。
func (r *PostgresTagRepo) ReplaceForPage(ctx context.Context, pageID string, tagIDs []string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM page_tags WHERE page_id = $1`,
		pageID,
	); err != nil {
		return fmt.Errorf("タグ関連の削除に失敗しました: %w", err)
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO page_tags (page_id, tag_id) VALUES ")
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, pageID)

	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		args = append(args, tagID)
	}
	// 入力にID重複があっても冪等に収束させる
	sb.WriteString(" ON CONFLICT DO NOTHING")

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("タグ関連の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByPageID は指定ページに関連付いたタグを返す。
func (r *PostgresTagRepo) ListByPageID(ctx context.Context, pageID string) ([]model.Tag, error) {
	byPage, err := r.ListByPageIDs(ctx, []string{pageID})
	if err != nil {
		return nil, err
	}
	return byPage[pageID], nil
}

// ListByPageIDs は複数ページのタグをページIDごとにまとめて返す。
// タグを持たないページはマップに含まれない。
func (r *PostgresTagRepo) ListByPageIDs(ctx context.Context, pageIDs []string) (map[string][]model.Tag, error) {
	if len(pageIDs) == 0 {
		return map[string][]model.Tag{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT pt.page_id, t.id, t.name, COALESCE(t.color, '')
		 FROM page_tags pt
		 INNER JOIN tags t ON t.id = pt.tag_id
		 WHERE pt.page_id = ANY($1)
		 ORDER BY pt.page_id, t.name`,
		pq.Array(pageIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("タグ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	byPage := make(map[string][]model.Tag)
	for rows.Next() {
		var pageID string
		var tag model.Tag
		if err := rows.Scan(&pageID, &tag.ID, &tag.Name, &tag.Color); err != nil {
			return nil, fmt.Errorf("タグ行のスキャンに失敗しました: %w", err)
		}
		byPage[pageID] = append(byPage[pageID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タグ一覧の走査に失敗しました: %w", err)
	}

	return byPage, nil
}

// compile-time interface check
var _ TagRepository = (*PostgresTagRepo)(nil)
