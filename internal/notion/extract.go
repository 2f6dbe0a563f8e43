package notion

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/notionmirror/internal/model"
	"github.com/hitoshi/notionmirror/internal/security"
)

// フィールド名エイリアス。外部システム側の命名は多言語混在のため、
// 先頭から順に探索し最初に見つかったプロパティを採用する。
var (
	titleAliases  = []string{"이름", "Name"}
	slugAliases   = []string{"slug", "Slug"}
	dateAliases   = []string{"작성일", "Date"}
	periodAliases = []string{"기간", "Period"}
	statusAliases = []string{"상태", "Status"}
	tagAliases    = []string{"태그", "Tags"}
	typeAliases   = []string{"타입", "Type"}
)

// pinFieldName はピン留めフラグのチェックボックスフィールド名。
const pinFieldName = "PIN"

// Extractor は外部レコードを正規化レコードに変換する。
// 変換は純粋で、1フィールドのパース失敗でレコード全体を失敗させることはない
// （不正な日付文字列はログに記録して欠損として扱う）。
type Extractor struct {
	sanitizer security.TextSanitizerService
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor(sanitizer security.TextSanitizerService) *Extractor {
	return &Extractor{sanitizer: sanitizer}
}

// Extract はPageRecordを正規化レコードに変換する。
// 既知フィールドはエイリアス探索でカラムに昇格し、
// プロパティマップ全体はRawPropertiesにそのまま保持される。
func (e *Extractor) Extract(rec PageRecord) model.CanonicalPage {
	props := rec.Properties

	canon := model.CanonicalPage{
		ID:             rec.ID,
		DatabaseID:     rec.Parent.DatabaseID,
		URL:            rec.URL,
		PublicURL:      rec.PublicURL,
		CreatedTime:    rec.CreatedTime,
		LastEditedTime: rec.LastEditedTime,
		CreatedByID:    rec.CreatedBy.ID,
		LastEditedByID: rec.LastEditedBy.ID,
		Archived:       rec.Archived,
		InTrash:        rec.InTrash,
		RawProperties:  marshalRawProperties(props),
	}

	canon.Title = e.sanitizer.Sanitize(concatRichText(titleFragments(props)))
	canon.Slug = e.sanitizer.Sanitize(concatRichText(richTextFragments(props, slugAliases)))

	canon.WrittenDate, canon.EndDate = extractDates(rec.ID, props)

	if st := lookupProperty(props, statusAliases); st != nil {
		if opt := selectValue(st); opt != nil && opt.ID != "" {
			canon.Status = &model.Status{ID: opt.ID, Name: opt.Name, Color: opt.Color}
		}
	}

	canon.Tags = extractTags(props)

	if cover := rec.Cover; cover != nil {
		switch {
		case cover.Type == "file" && cover.File != nil && cover.File.URL != "":
			canon.CoverSourceURL = cover.File.URL
			canon.CoverExpiry = cover.File.ExpiryTime
		case cover.Type == "external" && cover.External != nil && cover.External.URL != "":
			canon.CoverSourceURL = cover.External.URL
		}
	}

	if pin, ok := props[pinFieldName]; ok && pin.Checkbox != nil {
		canon.Pin = *pin.Checkbox
	}

	return canon
}

// lookupProperty はエイリアスを順に試し、最初に存在したプロパティを返す。
func lookupProperty(props PropertyMap, aliases []string) *Property {
	for _, name := range aliases {
		if p, ok := props[name]; ok {
			return &p
		}
	}
	return nil
}

// titleFragments はタイトル型フィールドのフラグメント列を返す。
func titleFragments(props PropertyMap) []RichText {
	p := lookupProperty(props, titleAliases)
	if p == nil {
		return nil
	}
	return p.Title
}

// richTextFragments はリッチテキスト型フィールドのフラグメント列を返す。
func richTextFragments(props PropertyMap, aliases []string) []RichText {
	p := lookupProperty(props, aliases)
	if p == nil {
		return nil
	}
	return p.RichText
}

// concatRichText はリッチテキストのフラグメントを順に連結する。
// plain_textを優先し、なければtext.contentを使用する。
func concatRichText(fragments []RichText) string {
	var out string
	for _, f := range fragments {
		if f.PlainText != "" {
			out += f.PlainText
			continue
		}
		if f.Text != nil {
			out += f.Text.Content
		}
	}
	return out
}

// extractDates は日付フィールド（単一日付）または期間フィールド（開始/終了）を抽出する。
// 日付フィールドを優先し、なければ期間フィールドを探索する。
// パースに失敗した値はログに記録して欠損として扱う。
func extractDates(pageID string, props PropertyMap) (start, end *time.Time) {
	p := lookupProperty(props, dateAliases)
	if p == nil || p.Date == nil {
		p = lookupProperty(props, periodAliases)
	}
	if p == nil || p.Date == nil {
		return nil, nil
	}

	start = parseFlexibleDate(pageID, p.Date.Start)
	if p.Date.End != "" {
		end = parseFlexibleDate(pageID, p.Date.End)
	}
	return start, end
}

// parseFlexibleDate は日付のみ（2006-01-02）またはRFC 3339の文字列をパースする。
// 失敗時はnilを返す（抽出は継続する）。
func parseFlexibleDate(pageID, value string) *time.Time {
	if value == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	slog.Warn("日付のパースに失敗しました（欠損として扱います）",
		slog.String("page_id", pageID),
		slog.String("value", value),
	)
	return nil
}

// extractTags はタグフィールドの全選択肢と、タイプフィールドを
// 1要素のタグとして再表現したものの和集合を返す。
// ID重複はそのまま許容する（下流のアップサートがIDごとに冪等なため）。
func extractTags(props PropertyMap) []model.Tag {
	var tags []model.Tag

	if p := lookupProperty(props, tagAliases); p != nil {
		for _, opt := range p.MultiSelect {
			if opt.ID == "" {
				continue
			}
			tags = append(tags, model.Tag{ID: opt.ID, Name: opt.Name, Color: opt.Color})
		}
	}

	if p := lookupProperty(props, typeAliases); p != nil {
		if opt := selectValue(p); opt != nil && opt.ID != "" {
			tags = append(tags, model.Tag{ID: opt.ID, Name: opt.Name, Color: opt.Color})
		}
	}

	return tags
}

// selectValue はステータス型またはセレクト型の選択値を返す。
func selectValue(p *Property) *SelectOption {
	if p.Status != nil {
		return p.Status
	}
	return p.Select
}

// marshalRawProperties はプロパティマップの元JSONをそのまま書き戻す。
// 各Propertyが保持する生JSONを使用するため、未知のフィールドも失われない。
func marshalRawProperties(props PropertyMap) json.RawMessage {
	if len(props) == 0 {
		return json.RawMessage("{}")
	}
	raw := make(map[string]json.RawMessage, len(props))
	for name, p := range props {
		if r := p.Raw(); r != nil {
			raw[name] = r
			continue
		}
		b, err := json.Marshal(p)
		if err != nil {
			continue
		}
		raw[name] = b
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}
