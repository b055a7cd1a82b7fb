package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// CodeReader decodes QR codes using gozxing
type CodeReader struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewCodeReader creates a CodeReader that tries hard on rotated and low-contrast codes
func NewCodeReader() *CodeReader {
	return &CodeReader{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns Decoded on success, NoCode when the image holds no readable code,
// and CodeFailed for technical failures.
func (c *CodeReader) Decode(ctx context.Context, img image.Image) (out CodeOutcome) {
	if err := ctx.Err(); err != nil {
		return CodeFailed(err.Error())
	}
	if img == nil || img.Bounds().Empty() {
		return CodeFailed("empty image")
	}

	defer func() {
		if r := recover(); r != nil {
			out = CodeFailed(fmt.Sprintf("decoder panic: %v", r))
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return CodeFailed(fmt.Sprintf("building bitmap: %v", err))
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, c.hints)
	if err != nil {
		if isNoCode(err) {
			return NoCode()
		}
		return CodeFailed(fmt.Sprintf("decoding: %v", err))
	}
	return Decoded(result.GetText())
}

// isNoCode reports whether err means "no usable code in the picture". Checksum and format
// failures count as absent: the user should try another input method, not the same photo.
func isNoCode(err error) bool {
	var notFound gozxing.NotFoundException
	var format gozxing.FormatException
	var checksum gozxing.ChecksumException
	return errors.As(err, &notFound) || errors.As(err, &format) || errors.As(err, &checksum)
}
