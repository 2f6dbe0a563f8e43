package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/notionmirror/internal/model"
)

// pageColumns はnotion_pagesテーブルのSELECT句。scanPageと並び順を揃えること。
const pageColumns = `id, database_id, url, public_url, created_time, last_edited_time,
	created_by_user_id, last_edited_by_user_id, archived, in_trash,
	cover_url, cover_expiry_time, icon, pin, status_id, slug, title,
	written_date, end_date, raw_properties, is_deleted, synced_at`

// PostgresPageRepo はPostgreSQLを使用したページリポジトリ。
type PostgresPageRepo struct {
	db DBTX
}

// NewPostgresPageRepo はPostgresPageRepoを生成する。
// dbには*sql.DBまたは*sql.Txを渡せる。
func NewPostgresPageRepo(db DBTX) *PostgresPageRepo {
	return &PostgresPageRepo{db: db}
}

// FindByID は指定IDのページを取得する。見つからない場合はnilを返す。
func (r *PostgresPageRepo) FindByID(ctx context.Context, id string) (*model.Page, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM notion_pages WHERE id = $1`,
		id,
	)

	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ページの取得に失敗しました: %w", err)
	}
	return page, nil
}

// Create はページを作成する。
func (r *PostgresPageRepo) Create(ctx context.Context, page *model.Page) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notion_pages (`+pageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		page.ID, page.DatabaseID, nullString(page.URL), nullString(page.PublicURL),
		page.CreatedTime, page.LastEditedTime,
		nullString(page.CreatedByUserID), nullString(page.LastEditedByUserID),
		page.Archived, page.InTrash,
		nullString(page.CoverURL), nullTime(page.CoverExpiryTime),
		nullString(page.Icon), page.Pin, nullString(page.StatusID),
		nullString(page.Slug), nullString(page.Title),
		nullTime(page.WrittenDate), nullTime(page.EndDate),
		[]byte(page.RawProperties), page.IsDeleted, page.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("ページの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はページの全マップ済みカラムを無条件に上書きする（ID以外）。
func (r *PostgresPageRepo) Update(ctx context.Context, page *model.Page) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notion_pages SET
		    database_id = $2, url = $3, public_url = $4,
		    created_time = $5, last_edited_time = $6,
		    created_by_user_id = $7, last_edited_by_user_id = $8,
		    archived = $9, in_trash = $10,
		    cover_url = $11, cover_expiry_time = $12, icon = $13, pin = $14,
		    status_id = $15, slug = $16, title = $17,
		    written_date = $18, end_date = $19,
		    raw_properties = $20, is_deleted = $21, synced_at = $22
		 WHERE id = $1`,
		page.ID, page.DatabaseID, nullString(page.URL), nullString(page.PublicURL),
		page.CreatedTime, page.LastEditedTime,
		nullString(page.CreatedByUserID), nullString(page.LastEditedByUserID),
		page.Archived, page.InTrash,
		nullString(page.CoverURL), nullTime(page.CoverExpiryTime),
		nullString(page.Icon), page.Pin, nullString(page.StatusID),
		nullString(page.Slug), nullString(page.Title),
		nullTime(page.WrittenDate), nullTime(page.EndDate),
		[]byte(page.RawProperties), page.IsDeleted, page.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("ページの更新に失敗しました: %w", err)
	}
	return nil
}

// SoftDeleteMissing は指定コレクションのうちkeepIDsに含まれないページをソフト削除する。
// 所属コレクション（database_id）でスコープするため、他コレクションの行には影響しない。
func (r *PostgresPageRepo) SoftDeleteMissing(ctx context.Context, databaseID string, keepIDs []string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notion_pages
		 SET is_deleted = TRUE, synced_at = now()
		 WHERE database_id = $1
		   AND NOT (id = ANY($2))
		   AND is_deleted = FALSE`,
		databaseID, pq.Array(keepIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("ソフト削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ソフト削除件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}

// ListByDatabase は指定コレクションの未削除ページを作成日時の降順で返す。
func (r *PostgresPageRepo) ListByDatabase(ctx context.Context, databaseID string) ([]*model.Page, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pageColumns+`
		 FROM notion_pages
		 WHERE database_id = $1 AND is_deleted = FALSE
		 ORDER BY created_time DESC`,
		databaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("ページ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var pages []*model.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("ページ行のスキャンに失敗しました: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ページ一覧の走査に失敗しました: %w", err)
	}

	return pages, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPage は1行分のページをスキャンする。
func scanPage(row rowScanner) (*model.Page, error) {
	page := &model.Page{}
	var (
		url, publicURL, createdBy, editedBy   sql.NullString
		coverURL, icon, statusID, slug, title sql.NullString
		coverExpiry, writtenDate, endDate     sql.NullTime
		rawProperties                         []byte
	)

	err := row.Scan(
		&page.ID, &page.DatabaseID, &url, &publicURL,
		&page.CreatedTime, &page.LastEditedTime,
		&createdBy, &editedBy, &page.Archived, &page.InTrash,
		&coverURL, &coverExpiry, &icon, &page.Pin, &statusID,
		&slug, &title, &writtenDate, &endDate,
		&rawProperties, &page.IsDeleted, &page.SyncedAt,
	)
	if err != nil {
		return nil, err
	}

	page.URL = url.String
	page.PublicURL = publicURL.String
	page.CreatedByUserID = createdBy.String
	page.LastEditedByUserID = editedBy.String
	page.CoverURL = coverURL.String
	page.Icon = icon.String
	page.StatusID = statusID.String
	page.Slug = slug.String
	page.Title = title.String
	page.CoverExpiryTime = timePtr(coverExpiry)
	page.WrittenDate = timePtr(writtenDate)
	page.EndDate = timePtr(endDate)
	page.RawProperties = rawProperties

	return page, nil
}

// nullString は空文字列をNULLとして書き込むためのヘルパー。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime はnilをNULLとして書き込むためのヘルパー。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr はNULL許容のタイムスタンプをポインタに変換する。
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// compile-time interface check
var _ PageRepository = (*PostgresPageRepo)(nil)
