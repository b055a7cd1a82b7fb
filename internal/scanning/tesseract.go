package scanning

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// tesseractWhitelist limits recognition to characters found on registration labels
const tesseractWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-:. "

// Tesseract implements TextEngine with a local Tesseract installation
type Tesseract struct {
	language string
}

// NewTesseract creates a Tesseract engine for language (default "eng")
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}, nil
}

// Recognize runs a single-block OCR pass. Confidence is the mean word confidence.
// ctx is only checked before the pass starts; Tesseract cannot be interrupted once running.
// A fresh client is used per call because gosseract clients are not safe for concurrent use.
func (t *Tesseract) Recognize(ctx context.Context, png []byte) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", 0, fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetWhitelist(tesseractWhitelist); err != nil {
		return "", 0, fmt.Errorf("setting whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", 0, fmt.Errorf("setting page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", 0, fmt.Errorf("loading image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("ocr error: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", 0, fmt.Errorf("reading word confidences: %w", err)
	}
	return text, meanConfidence(boxes), nil
}

// Close is a no-op; clients are per call
func (t *Tesseract) Close() error {
	return nil
}

func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
