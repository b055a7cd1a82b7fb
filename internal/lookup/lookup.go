// Package lookup resolves recognized or typed strings against a catalog snapshot.
package lookup

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/zombor/medverify/internal/catalog"
)

// DefaultLimit caps fuzzy search results
const DefaultLimit = 15

// MinTermLength is the shortest term FuzzySearch will match
const MinTermLength = 2

// KeyKind selects the field used by ExactLookup
type KeyKind int

const (
	KeyRegistration KeyKind = iota
	KeyBatch
)

func (k KeyKind) String() string {
	switch k {
	case KeyRegistration:
		return "registration_number"
	case KeyBatch:
		return "batch_number"
	}
	return "unknown"
}

// entry caches the upper/lower-cased fields of one record
type entry struct {
	record      catalog.ProductRecord
	upperReg    string
	lowerName   string
	lowerFields [4]string
}

// Engine answers exact, substring, and fuzzy queries. It is read-only after construction
// and safe for concurrent use.
type Engine struct {
	entries        []entry
	byRegistration map[string]int
	byBatch        map[string]int
}

// New indexes a catalog snapshot
func New(snapshot *catalog.Snapshot) *Engine {
	records := snapshot.Records()
	e := &Engine{
		entries:        make([]entry, len(records)),
		byRegistration: make(map[string]int, len(records)),
		byBatch:        make(map[string]int),
	}
	for i, r := range records {
		e.entries[i] = entry{
			record:    r,
			upperReg:  strings.ToUpper(strings.TrimSpace(r.RegistrationNumber)),
			lowerName: strings.ToLower(r.ProductName),
			lowerFields: [4]string{
				strings.ToLower(r.ProductName),
				strings.ToLower(r.Manufacturer),
				strings.ToLower(r.RegistrationNumber),
				strings.ToLower(r.ActiveIngredients),
			},
		}
		e.byRegistration[e.entries[i].upperReg] = i
		if batch := strings.ToUpper(strings.TrimSpace(r.BatchNumber)); batch != "" {
			// first record wins when a batch number repeats
			if _, ok := e.byBatch[batch]; !ok {
				e.byBatch[batch] = i
			}
		}
	}
	return e
}

// ExactLookup matches key case-insensitively against the chosen field
func (e *Engine) ExactLookup(key string, kind KeyKind) (catalog.ProductRecord, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return catalog.ProductRecord{}, false
	}

	var idx map[string]int
	switch kind {
	case KeyRegistration:
		idx = e.byRegistration
	case KeyBatch:
		idx = e.byBatch
	default:
		return catalog.ProductRecord{}, false
	}

	i, ok := idx[key]
	if !ok {
		return catalog.ProductRecord{}, false
	}
	return e.entries[i].record, true
}

// SubstringLookup returns the first record whose registration number occurs inside text.
// OCR output often wraps the code in labels and noise, e.g. "NAFDAC NO: NC1-0023 EXP".
func (e *Engine) SubstringLookup(text string) (catalog.ProductRecord, bool) {
	upper := strings.ToUpper(text)
	if strings.TrimSpace(upper) == "" {
		return catalog.ProductRecord{}, false
	}
	for _, en := range e.entries {
		if strings.Contains(upper, en.upperReg) {
			return en.record, true
		}
	}
	return catalog.ProductRecord{}, false
}

// FuzzySearch returns up to limit records matching term in name, manufacturer,
// registration number, or active ingredients. Names starting with the term rank first;
// ties are ordered alphabetically by product name. Terms shorter than MinTermLength
// yield an empty result.
func (e *Engine) FuzzySearch(term string, limit int) []catalog.ProductRecord {
	needle := strings.ToLower(strings.TrimSpace(term))
	if len([]rune(needle)) < MinTermLength {
		return []catalog.ProductRecord{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	type hit struct {
		record catalog.ProductRecord
		prefix bool
	}
	var hits []hit
	for _, en := range e.entries {
		matched := false
		for _, f := range en.lowerFields {
			if f != "" && strings.Contains(f, needle) {
				matched = true
				break
			}
		}
		if matched {
			hits = append(hits, hit{record: en.record, prefix: strings.HasPrefix(en.lowerName, needle)})
		}
	}

	// Collators keep scratch buffers, so each call gets its own.
	coll := collate.New(language.English)
	slices.SortStableFunc(hits, func(a, b hit) int {
		if a.prefix != b.prefix {
			if a.prefix {
				return -1
			}
			return 1
		}
		return coll.CompareString(a.record.ProductName, b.record.ProductName)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]catalog.ProductRecord, len(hits))
	for i, h := range hits {
		out[i] = h.record
	}
	return out
}
