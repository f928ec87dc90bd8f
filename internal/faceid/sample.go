package faceid

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// minSampleDimension は顔照合に必要な画像の最小辺長（ピクセル）。
	minSampleDimension = 64
	// maxSampleDimension はこれを超えると縮小される最大辺長（ピクセル）。
	maxSampleDimension = 1280
	// sampleJPEGQuality は正規化後のJPEG品質。
	sampleJPEGQuality = 85
)

var (
	// ErrSampleEmpty は顔画像サンプルが空の場合のエラー。
	ErrSampleEmpty = errors.New("顔画像が指定されていません")
	// ErrSampleTooLarge は顔画像サンプルがサイズ上限を超えた場合のエラー。
	ErrSampleTooLarge = errors.New("顔画像のサイズが上限を超えています")
	// ErrSampleMalformed は顔画像サンプルをデコードできない場合のエラー。
	ErrSampleMalformed = errors.New("顔画像をデコードできません")
	// ErrSampleTooSmall は顔画像サンプルの解像度が不足している場合のエラー。
	ErrSampleTooSmall = errors.New("顔画像の解像度が不足しています")
)

// NormalizeSample は端末から送られた顔画像サンプルを照合用のJPEGバイト列に正規化する。
// 入力はbase64文字列またはdata URI（data:image/...;base64,...）を受け付ける。
// デコード後のサイズがmaxBytesを超える場合、解像度が64x64未満の場合はエラーを返す。
// 長辺が1280pxを超える画像は縦横比を維持したまま縮小される。
func NormalizeSample(raw string, maxBytes int64) ([]byte, error) {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return nil, ErrSampleEmpty
	}

	if strings.HasPrefix(payload, "data:") {
		var err error
		payload, err = dataURIPayload(payload)
		if err != nil {
			return nil, err
		}
	}

	// base64は約4/3に膨らむため、デコード前にエンコード長で粗く足切りする
	if int64(len(payload)) > (maxBytes*4)/3+4 {
		return nil, ErrSampleTooLarge
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64デコードに失敗しました", ErrSampleMalformed)
	}
	if len(decoded) == 0 {
		return nil, ErrSampleEmpty
	}
	if int64(len(decoded)) > maxBytes {
		return nil, ErrSampleTooLarge
	}

	img, err := decodeImage(decoded)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < minSampleDimension || height < minSampleDimension {
		return nil, ErrSampleTooSmall
	}

	if width > maxSampleDimension || height > maxSampleDimension {
		img = downscale(img, width, height)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: sampleJPEGQuality}); err != nil {
		return nil, fmt.Errorf("顔画像の再エンコードに失敗しました: %w", err)
	}

	return out.Bytes(), nil
}

// dataURIPayload はdata URIからbase64ペイロード部分を取り出す。
func dataURIPayload(raw string) (string, error) {
	comma := strings.Index(raw, ",")
	if comma <= 5 {
		return "", fmt.Errorf("%w: data URIの形式が不正です", ErrSampleMalformed)
	}
	meta := raw[5:comma]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return "", fmt.Errorf("%w: data URIはbase64である必要があります", ErrSampleMalformed)
	}
	return raw[comma+1:], nil
}

// decodeImage は画像バイト列をデコードする。
// 標準のデコーダ（JPEG/PNG）で失敗した場合はWebPとしてのデコードを試みる。
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(data)); webpErr == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrSampleMalformed, err)
}

// downscale は長辺がmaxSampleDimensionに収まるよう縦横比を維持して縮小する。
func downscale(img image.Image, width, height int) image.Image {
	scale := float64(maxSampleDimension) / float64(max(width, height))
	newWidth := int(math.Round(float64(width) * scale))
	newHeight := int(math.Round(float64(height) * scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}
