// Package cover はカバー画像の取得・検証・変換・保存パイプラインを提供する。
package cover

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// 検証・変換対象のデコーダを登録する
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// processed は変換済み（または素通し）のカバー画像を表す。
type processed struct {
	Data        []byte
	Ext         string
	ContentType string
	Reencoded   bool
}

// passthroughExts はデコードせず素通しを許可するContent-Typeと拡張子の対応。
// 自オリジンから配信されるため、ラスター画像形式のみを許可する。
// SVGのようにスクリプトを含みうる形式は許可しない。
var passthroughExts = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/avif": "avif",
}

// processImage は画像データを保存可能な形に整える。
// ソフトバイト上限と最大辺長の両方を満たす画像はバイト列を変更せず素通しし、
// どちらかを超える画像は長辺がmaxDim以下になるよう等比縮小してJPEGに再エンコードする。
// デコードできない形式は、Content-Typeが許可リストにありソフト上限以下の場合のみ素通しする。
// 画像として扱えないデータにはエラーを返す。
func processImage(data []byte, contentType string, softMaxBytes int64, maxDim, quality int) (*processed, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// stdlibでデコードできない形式（webp等）。許可リストの形式で
		// サイズが許容範囲なら縮小せずそのまま保存する。
		if ext, ok := passthroughExt(contentType); ok && int64(len(data)) <= softMaxBytes {
			return &processed{
				Data:        data,
				Ext:         ext,
				ContentType: contentType,
			}, nil
		}
		return nil, fmt.Errorf("画像としてデコードできません: %w", err)
	}

	longest := cfg.Width
	if cfg.Height > longest {
		longest = cfg.Height
	}

	if int64(len(data)) <= softMaxBytes && longest <= maxDim {
		return &processed{
			Data:        data,
			Ext:         extFromFormat(format),
			ContentType: "image/" + format,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗: %w", err)
	}

	dst := downscale(src, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}

	return &processed{
		Data:        buf.Bytes(),
		Ext:         "jpg",
		ContentType: "image/jpeg",
		Reencoded:   true,
	}, nil
}

// downscale は長辺がmaxDim以下になるよう等比縮小する。
// すでに収まっている場合は元画像をそのまま返す（再エンコードのみ行われる）。
func downscale(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// passthroughExt はContent-Typeが素通し許可リストにある場合、その拡張子を返す。
func passthroughExt(contentType string) (string, bool) {
	mime := contentType
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	ext, ok := passthroughExts[strings.TrimSpace(strings.ToLower(mime))]
	return ext, ok
}

// extFromFormat はimage.DecodeConfigが返すフォーマット名から拡張子を導出する。
func extFromFormat(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
