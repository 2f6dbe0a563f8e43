package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/notionmirror/internal/model"
)

// PostgresStatusRepo はPostgreSQLを使用したステータスリポジトリ。
type PostgresStatusRepo struct {
	db DBTX
}

// NewPostgresStatusRepo はPostgresStatusRepoを生成する。
// dbには*sql.DBまたは*sql.Txを渡せる。
func NewPostgresStatusRepo(db DBTX) *PostgresStatusRepo {
	return &PostgresStatusRepo{db: db}
}

// Upsert はステータスを作成または更新する。
// ステータス名はIDとは独立した結合キーとして使われるため、
// 外部システム側でのリネームに追従してname/colorを毎回上書きする。
func (r *PostgresStatusRepo) Upsert(ctx context.Context, status model.Status) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO statuses (id, name, color) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color`,
		status.ID, status.Name, nullString(status.Color),
	)
	if err != nil {
		return fmt.Errorf("ステータスのアップサートに失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのステータスを取得する。見つからない場合はnilを返す。
func (r *PostgresStatusRepo) FindByID(ctx context.Context, id string) (*model.Status, error) {
	status := &model.Status{}
	var color sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, color FROM statuses WHERE id = $1`,
		id,
	).Scan(&status.ID, &status.Name, &color)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ステータスの取得に失敗しました: %w", err)
	}

	status.Color = color.String
	return status, nil
}

// compile-time interface check
var _ StatusRepository = (*PostgresStatusRepo)(nil)
