// Package preprocess prepares photos for text recognition.
//
// The pipeline is fixed: downscale to at most MaxWidth x MaxHeight, boost contrast and
// brightness, then convert to luma grayscale (0.299R + 0.587G + 0.114B). Every stage is a
// pure function of its input, so identical bytes always produce identical output.
// Structured-code images never go through here.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	MaxWidth  = 800
	MaxHeight = 600

	Contrast   = 1.2
	Brightness = 10
)

// Apply runs the full pipeline
func Apply(img image.Image) *image.NRGBA {
	return Grayscale(Boost(imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)))
}

// Boost stretches each channel around mid-gray by Contrast and lifts it by Brightness
func Boost(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: boostChannel(c.R), G: boostChannel(c.G), B: boostChannel(c.B), A: c.A}
	})
}

func boostChannel(v uint8) uint8 {
	f := (float64(v)-128)*Contrast + 128 + Brightness
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

// Grayscale converts img using the standard luma weights. Applying it to an already
// gray image leaves the pixels unchanged.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// Encode renders img as PNG, the lossless input format the text engines expect
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
