package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX は*sql.DBと*sql.Txの共通部分。
// リポジトリはこのインターフェースに対して動作するため、
// 同一実装をトランザクション内外の両方で使用できる。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresTxManager はdatabase/sqlのトランザクションでTxManagerを実装する。
type PostgresTxManager struct {
	db *sql.DB
}

// NewPostgresTxManager はPostgresTxManagerを生成する。
func NewPostgresTxManager(db *sql.DB) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

// WithinTx はトランザクションを開始し、束縛済みリポジトリ群をfnに渡す。
// fnが成功すればコミット、エラーまたはpanicの場合はロールバックする。
func (m *PostgresTxManager) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	bound := &txRepos{
		pages:    NewPostgresPageRepo(sqlTx),
		tags:     NewPostgresTagRepo(sqlTx),
		statuses: NewPostgresStatusRepo(sqlTx),
	}

	if err := fn(bound); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	committed = true
	return nil
}

// txRepos はTxの実装。1つの*sql.Txに束縛されたリポジトリ群を保持する。
type txRepos struct {
	pages    PageRepository
	tags     TagRepository
	statuses StatusRepository
}

func (t *txRepos) Pages() PageRepository      { return t.pages }
func (t *txRepos) Tags() TagRepository        { return t.tags }
func (t *txRepos) Statuses() StatusRepository { return t.statuses }

// compile-time interface checks
var (
	_ TxManager = (*PostgresTxManager)(nil)
	_ Tx        = (*txRepos)(nil)
)
