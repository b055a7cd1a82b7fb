package scanning

import (
	"regexp"
	"strings"
)

var (
	// labelledPattern matches a code introduced by a registry label, e.g. "NAFDAC REG. NO: A4-1234"
	labelledPattern = regexp.MustCompile(`(?i)(?:NAFDAC|REG(?:ISTRATION)?)\.?\s*(?:REG\.?\s*)?(?:NO|NUMBER)?\.?\s*:?\s*([A-Z]{1,2}[0-9OQILSBZG|!]{1,2}\s*[-–]\s*[0-9OQILSBZG|!]{3,})`)

	// loosePattern matches an unlabelled code
	loosePattern = regexp.MustCompile(`(?i)\b([A-Z]{1,2}[0-9OQILSBZG|!]{1,2}\s*[-–]\s*[0-9OQILSBZG|!]{3,})\b`)

	standardPattern = regexp.MustCompile(`^[A-Z]{1,2}\d{1,2}-\d{4,}$`)
	validPattern    = regexp.MustCompile(`^[A-Z]{1,2}\d{1,2}-\d{3,}$`)
	prefixPattern   = regexp.MustCompile(`^[A-Z]{1,2}`)

	digitRunPattern   = regexp.MustCompile(`\b\d{4,}\b`)
	letterDigitsRegex = regexp.MustCompile(`\b[A-Z]\d{3,}\b`)

	payloadPattern = regexp.MustCompile(`(?i)^NAFDAC-([A-Z]{1,2}\d{1,2}-\d{3,})(?:-|$)`)
)

// ocrDigitFixes maps characters OCR commonly confuses with digits
var ocrDigitFixes = strings.NewReplacer(
	"O", "0", "Q", "0",
	"I", "1", "L", "1", "|", "1", "!", "1",
	"S", "5", "B", "8", "Z", "2", "G", "6",
	"–", "-",
)

// normalizeCandidate upper-cases a raw match, drops whitespace, and repairs look-alike
// characters after the letter prefix. It returns "" when the result is not a valid code.
func normalizeCandidate(raw string) string {
	// lower-case g reads as 9, upper-case G as 6
	raw = strings.ReplaceAll(raw, "g", "9")
	raw = strings.ToUpper(strings.Join(strings.Fields(raw), ""))

	prefix := prefixPattern.FindString(raw)
	// keep at most one letter when the second one is a digit look-alike, e.g. "A4" misread as "AS"
	rest := ocrDigitFixes.Replace(raw[len(prefix):])
	if len(prefix) == 2 && strings.HasPrefix(rest, "-") {
		rest = ocrDigitFixes.Replace(prefix[1:]) + rest
		prefix = prefix[:1]
	}

	out := prefix + rest
	if !validPattern.MatchString(out) {
		return ""
	}
	return out
}

func candidates(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, re := range []*regexp.Regexp{labelledPattern, loosePattern} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			c := normalizeCandidate(m[1])
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// ExtractRegistrationNumber finds the most plausible registration number in OCR text,
// preferring labelled codes and the standard four-digit form. It returns "" when none is found.
func ExtractRegistrationNumber(text string) string {
	cands := candidates(text)
	for _, c := range cands {
		if standardPattern.MatchString(c) {
			return c
		}
	}
	if len(cands) > 0 {
		return cands[0]
	}
	return ""
}

// Suggestions lists up to five fragments of text that may be the registration number,
// for the user to confirm or correct by hand.
func Suggestions(text string) []string {
	out := make([]string, 0, 5)
	seen := map[string]struct{}{}
	add := func(s string) {
		if _, ok := seen[s]; ok || len(out) == cap(out) {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, c := range candidates(text) {
		add(c)
	}
	upper := strings.ToUpper(text)
	for _, m := range letterDigitsRegex.FindAllString(upper, -1) {
		add(m)
	}
	for _, m := range digitRunPattern.FindAllString(upper, -1) {
		add(m)
	}
	return out
}

// RegistrationFromPayload unwraps QR payloads of the form "NAFDAC-<reg>-<name>".
// Any other payload is returned trimmed.
func RegistrationFromPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if m := payloadPattern.FindStringSubmatch(payload); m != nil {
		return strings.ToUpper(m[1])
	}
	return payload
}
