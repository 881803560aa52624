// Package converter re-encodes sticker images between webp, gif and png.
//
// Source encodings are recognized by their magic bytes. Animated inputs are
// reduced to their first frame when the target cannot carry the animation.
package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/webp"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	gifColors = 256
)

var (
	magicPNG   = []byte("\x89PNG\r\n\x1a\n")
	magicGIF87 = []byte("GIF87a")
	magicGIF89 = []byte("GIF89a")
	magicRIFF  = []byte("RIFF")
	magicWEBP  = []byte("WEBP")
	magicJPEG  = []byte{0xff, 0xd8, 0xff}
)

type converter struct{}

func New() *converter {
	return &converter{}
}

// Detect returns the encoding of data.
func (c *converter) Detect(data []byte) (entity.Format, error) {
	return Detect(data)
}

// Convert encodes data as target. Data already in the target encoding is returned unchanged.
func (c *converter) Convert(data []byte, target entity.Format) ([]byte, error) {
	if !isOutputFormat(target) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, target)
	}

	source, err := Detect(data)
	if err != nil {
		return nil, err
	}

	if source == target {
		return data, nil
	}

	img, err := decode(source, data)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode %s: %w", common.ErrConversion, source, err)
	}

	var buf bytes.Buffer
	switch target {
	case entity.FormatPNG:
		err = png.Encode(&buf, img)
	case entity.FormatGIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: gifColors})
	case entity.FormatWebP:
		err = nativewebp.Encode(&buf, img, &nativewebp.Options{})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode %s: %w", common.ErrConversion, target, err)
	}

	return buf.Bytes(), nil
}

func Detect(data []byte) (entity.Format, error) {
	switch {
	case bytes.HasPrefix(data, magicPNG):
		return entity.FormatPNG, nil
	case bytes.HasPrefix(data, magicGIF87), bytes.HasPrefix(data, magicGIF89):
		return entity.FormatGIF, nil
	case len(data) >= 12 && bytes.Equal(data[:4], magicRIFF) && bytes.Equal(data[8:12], magicWEBP):
		return entity.FormatWebP, nil
	case bytes.HasPrefix(data, magicJPEG):
		return entity.FormatJPEG, nil
	}

	return "", fmt.Errorf("%w: unknown source encoding", common.ErrConversion)
}

func decode(source entity.Format, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)

	switch source {
	case entity.FormatPNG:
		return png.Decode(r)
	case entity.FormatGIF:
		return gif.Decode(r)
	case entity.FormatWebP:
		return webp.Decode(r)
	case entity.FormatJPEG:
		return jpeg.Decode(r)
	}

	return nil, fmt.Errorf("no decoder for %s", source)
}

func isOutputFormat(f entity.Format) bool {
	for _, o := range entity.OutputFormats {
		if o == f {
			return true
		}
	}

	return false
}
