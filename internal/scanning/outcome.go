package scanning

import (
	"context"
	"image"
)

// CodeKind tags the result of a structured-code decode
type CodeKind int

const (
	CodeDecoded CodeKind = iota + 1
	CodeNotFound
	CodeError
)

func (k CodeKind) String() string {
	switch k {
	case CodeDecoded:
		return "decoded"
	case CodeNotFound:
		return "not_found"
	case CodeError:
		return "error"
	}
	return "unknown"
}

// CodeOutcome is the result of decoding a structured code.
// Text is set for CodeDecoded, Reason for CodeError.
type CodeOutcome struct {
	Kind   CodeKind
	Text   string
	Reason string
}

// Decoded builds a successful CodeOutcome
func Decoded(text string) CodeOutcome {
	return CodeOutcome{Kind: CodeDecoded, Text: text}
}

// NoCode builds a CodeOutcome for a well-formed image without a code
func NoCode() CodeOutcome {
	return CodeOutcome{Kind: CodeNotFound}
}

// CodeFailed builds a CodeOutcome for a technical failure
func CodeFailed(reason string) CodeOutcome {
	return CodeOutcome{Kind: CodeError, Reason: reason}
}

// TextKind tags the result of text recognition
type TextKind int

const (
	TextExtracted TextKind = iota + 1
	TextNone
	TextError
)

func (k TextKind) String() string {
	switch k {
	case TextExtracted:
		return "extracted"
	case TextNone:
		return "no_text"
	case TextError:
		return "error"
	}
	return "unknown"
}

// TextOutcome is the result of text recognition. Confidence is on a 0-100 scale.
type TextOutcome struct {
	Kind       TextKind
	Text       string
	Confidence float64
	Reason     string
}

// Extracted builds a TextOutcome carrying recognized text
func Extracted(text string, confidence float64) TextOutcome {
	return TextOutcome{Kind: TextExtracted, Text: text, Confidence: clampConfidence(confidence)}
}

// NoText builds a TextOutcome for an image without readable text
func NoText(confidence float64) TextOutcome {
	return TextOutcome{Kind: TextNone, Confidence: clampConfidence(confidence)}
}

// TextFailed builds a TextOutcome for a technical failure
func TextFailed(reason string) TextOutcome {
	return TextOutcome{Kind: TextError, Reason: reason}
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// CodeScanner decodes structured codes from images
type CodeScanner interface {
	Decode(ctx context.Context, img image.Image) CodeOutcome
}

// TextScanner extracts text from preprocessed PNG bytes
type TextScanner interface {
	Read(ctx context.Context, png []byte) TextOutcome
}
