package cover

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// ObjectStore は処理済みカバー画像の保存先インターフェース。
// Putは保存したアセットへの安定した再取得可能URLを返す。
type ObjectStore interface {
	Put(ctx context.Context, filename string, data []byte, contentType string) (string, error)
}

// localURLPrefix はローカル保存されたカバーが配信されるURLパス。
const localURLPrefix = "/static/covers"

// LocalStore は静的ファイル領域へのローカル保存を行う。
// オブジェクトストレージ未設定時の保存先、および保存失敗時のフォールバック先。
type LocalStore struct {
	dir string
}

// NewLocalStore はLocalStoreの新しいインスタンスを生成する。
// staticDirは静的ファイル領域のルートディレクトリを指定する。
func NewLocalStore(staticDir string) *LocalStore {
	return &LocalStore{dir: filepath.Join(staticDir, "covers")}
}

// Put はカバー画像をローカルの静的ファイル領域に書き込む。
// ファイル名はページID由来のため、同一キーへの並行書き込みは冪等に収束する。
func (s *LocalStore) Put(_ context.Context, filename string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("カバー保存ディレクトリの作成に失敗: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("カバーファイルの書き込みに失敗: %w", err)
	}
	return path.Join(localURLPrefix, filename), nil
}

// compile-time interface check
var _ ObjectStore = (*LocalStore)(nil)
