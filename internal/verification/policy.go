package verification

import (
	"fmt"
	"strings"
)

// Tier is a text recognition trust level
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	}
	return "low"
}

// Policy holds the confidence thresholds, on a 0-100 scale.
// Confidence above HighAbove is trusted; above MediumAbove it needs confirmation.
type Policy struct {
	HighAbove   float64
	MediumAbove float64
}

// DefaultPolicy is the hand-tuned default
var DefaultPolicy = Policy{HighAbove: 60, MediumAbove: 30}

// Validate checks the thresholds are ordered and in range
func (p Policy) Validate() error {
	if p.MediumAbove < 0 || p.HighAbove > 100 || p.MediumAbove >= p.HighAbove {
		return fmt.Errorf("invalid confidence thresholds: medium %.1f, high %.1f", p.MediumAbove, p.HighAbove)
	}
	return nil
}

// Tier classifies a recognition result. Blank text is always low.
func (p Policy) Tier(confidence float64, text string) Tier {
	switch {
	case strings.TrimSpace(text) == "":
		return TierLow
	case confidence > p.HighAbove:
		return TierHigh
	case confidence > p.MediumAbove:
		return TierMedium
	}
	return TierLow
}
