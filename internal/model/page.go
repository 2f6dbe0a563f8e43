// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Page はNotionコレクションからミラーされた1ページを表す。
// IDはNotion側のページIDをそのまま主キーとして使用する。
type Page struct {
	ID                 string
	DatabaseID         string
	URL                string
	PublicURL          string
	CreatedTime        time.Time
	LastEditedTime     time.Time
	CreatedByUserID    string
	LastEditedByUserID string
	Archived           bool
	InTrash            bool

	// CoverURL は再取得可能な安定URL（S3公開URLまたは/static/配下のパス）。
	// Notionの署名付きURLは期限切れになるため、ここには保存しない。
	CoverURL        string
	CoverExpiryTime *time.Time
	Icon            string
	Pin             bool

	StatusID    string
	Slug        string
	Title       string
	WrittenDate *time.Time
	EndDate     *time.Time

	// RawProperties はNotionのプロパティマップをそのまま保持する（JSONB）。
	// カラムに昇格していないフィールドはプレゼンテーション層がここから読む。
	RawProperties json.RawMessage

	// IsDeleted は直近の全件フェッチにIDが含まれなかったことを示す。
	// 物理削除は行わず、再出現時にクリアされる。
	IsDeleted bool
	SyncedAt  time.Time

	Tags []Tag
}

// Status はNotion側のワークフローステータスを表す。
type Status struct {
	ID    string
	Name  string
	Color string
}

// Tag はNotion側のラベルを表す。
type Tag struct {
	ID    string
	Name  string
	Color string
}

// CanonicalPage は抽出・正規化後のページ表現。
// 外部レコードから抽出器が生成し、アップサート層が消費する。
type CanonicalPage struct {
	ID             string
	DatabaseID     string
	Title          string
	Slug           string
	WrittenDate    *time.Time
	EndDate        *time.Time
	Status         *Status
	Tags           []Tag
	CoverSourceURL string
	CoverExpiry    *time.Time
	Pin            bool

	URL            string
	PublicURL      string
	CreatedTime    time.Time
	LastEditedTime time.Time
	CreatedByID    string
	LastEditedByID string
	Archived       bool
	InTrash        bool

	RawProperties json.RawMessage
}

// SyncResult は1コレクション分の同期パスの結果を表す。
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}
