// Package notion はNotion APIからのコレクション取得とフィールド抽出を提供する。
package notion

import (
	"encoding/json"
	"time"
)

// PageRecord はNotionデータベースクエリ結果の1ページ分を表す。
type PageRecord struct {
	ID             string      `json:"id"`
	Parent         Parent      `json:"parent"`
	Properties     PropertyMap `json:"properties"`
	Cover          *Cover      `json:"cover"`
	URL            string      `json:"url"`
	PublicURL      string      `json:"public_url"`
	CreatedTime    time.Time   `json:"created_time"`
	LastEditedTime time.Time   `json:"last_edited_time"`
	CreatedBy      Actor       `json:"created_by"`
	LastEditedBy   Actor       `json:"last_edited_by"`
	Archived       bool        `json:"archived"`
	InTrash        bool        `json:"in_trash"`
}

// Parent はページの所属先を表す。
type Parent struct {
	DatabaseID string `json:"database_id"`
}

// Actor はページを操作したユーザーへの参照を表す。
type Actor struct {
	ID string `json:"id"`
}

// Cover はページのカバー画像参照を表す。
// type="file" のURLは時限付き署名URLで、expiry_time経過後は取得できなくなる。
type Cover struct {
	Type     string       `json:"type"`
	File     *FileRef     `json:"file"`
	External *ExternalRef `json:"external"`
}

// FileRef はNotionがホストするファイルへの参照を表す。
type FileRef struct {
	URL        string     `json:"url"`
	ExpiryTime *time.Time `json:"expiry_time"`
}

// ExternalRef は外部URLで指定されたファイルへの参照を表す。
type ExternalRef struct {
	URL string `json:"url"`
}

// PropertyMap はプロパティ名からプロパティ値へのマップ。
// フィールド名は任意（多言語混在）のため、抽出器がエイリアス順に探索する。
type PropertyMap map[string]Property

// Property はNotionの型付きプロパティ値を表す。
// 既知の型のみフィールドに展開し、元のJSONはRawで保持する。
// カラムに昇格しないプロパティもRawを通じてそのまま永続化される。
type Property struct {
	Type        string         `json:"type"`
	Title       []RichText     `json:"title"`
	RichText    []RichText     `json:"rich_text"`
	Date        *DateValue     `json:"date"`
	Status      *SelectOption  `json:"status"`
	Select      *SelectOption  `json:"select"`
	MultiSelect []SelectOption `json:"multi_select"`
	Checkbox    *bool          `json:"checkbox"`

	raw json.RawMessage
}

// UnmarshalJSON は既知フィールドの展開と同時に元のJSONを保持する。
func (p *Property) UnmarshalJSON(data []byte) error {
	type alias Property
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Property(a)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON は元のJSONをそのまま書き戻す。
func (p Property) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	type alias Property
	return json.Marshal(alias(p))
}

// Raw はプロパティの元のJSON表現を返す。
func (p Property) Raw() json.RawMessage {
	return p.raw
}

// RichText はリッチテキストの1フラグメントを表す。
type RichText struct {
	PlainText string        `json:"plain_text"`
	Text      *RichTextText `json:"text"`
}

// RichTextText はリッチテキストフラグメントの本文部分を表す。
type RichTextText struct {
	Content string `json:"content"`
}

// DateValue は日付または期間のプロパティ値を表す。
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SelectOption はステータス・セレクト・マルチセレクトの選択肢を表す。
type SelectOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
