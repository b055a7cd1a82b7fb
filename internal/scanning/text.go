package scanning

import (
	"context"
	"log/slog"
	"strings"
)

// TextEngine is a text recognition backend
type TextEngine interface {
	// Recognize returns the text in a PNG image and a confidence between 0 and 100
	Recognize(ctx context.Context, png []byte) (string, float64, error)
	// Close releases engine resources
	Close() error
}

// TextReader adapts a TextEngine to the TextScanner contract
type TextReader struct {
	engine TextEngine
}

// NewTextReader wraps engine
func NewTextReader(engine TextEngine) *TextReader {
	return &TextReader{engine: engine}
}

// Read never returns an error: failures become TextFailed outcomes
func (r *TextReader) Read(ctx context.Context, png []byte) TextOutcome {
	if len(png) == 0 {
		return TextFailed("empty image")
	}

	text, confidence, err := r.engine.Recognize(ctx, png)
	if err != nil {
		slog.Error("Text recognition failed", "bytes", len(png), "error", err)
		return TextFailed(err.Error())
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoText(confidence)
	}
	return Extracted(text, confidence)
}

// Close closes the underlying engine
func (r *TextReader) Close() error {
	return r.engine.Close()
}
