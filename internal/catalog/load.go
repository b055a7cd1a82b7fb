package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// feedEntry is one row of the registry export. Key names follow the upstream spreadsheet headers.
type feedEntry struct {
	RegistrationNumber string `json:"Nafdac Reg. Number"`
	ProductName        string `json:"Product Name"`
	Manufacturer       string `json:"Manufacturer"`
	ActiveIngredients  string `json:"Active Ingredients"`
	ApprovalDate       string `json:"Approval Date"`
	Status             string `json:"Status"`
	BatchNumber        string `json:"Batch Number"`
	ExpiryDate         string `json:"Expiry Date"`
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// parseDate accepts the date formats seen in registry exports. Empty input yields the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// LoadJSON reads a registry feed (a JSON array) and returns its records.
// Rows without a registration number are skipped; unparseable dates are left zero.
func LoadJSON(r io.Reader) ([]ProductRecord, error) {
	var entries []feedEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding catalog feed: %w", err)
	}

	records := make([]ProductRecord, 0, len(entries))
	for i, e := range entries {
		reg := strings.TrimSpace(e.RegistrationNumber)
		if reg == "" {
			slog.Warn("Skipping catalog row without registration number", "row", i, "product", e.ProductName)
			continue
		}

		status, err := ParseStatus(e.Status)
		if err != nil {
			slog.Warn("Treating unknown status as inactive", "registration_number", reg, "status", e.Status)
			status = StatusInactive
		}

		approval, err := parseDate(e.ApprovalDate)
		if err != nil {
			slog.Warn("Ignoring approval date", "registration_number", reg, "error", err)
		}
		expiry, err := parseDate(e.ExpiryDate)
		if err != nil {
			slog.Warn("Ignoring expiry date", "registration_number", reg, "error", err)
		}

		records = append(records, ProductRecord{
			RegistrationNumber: reg,
			BatchNumber:        strings.TrimSpace(e.BatchNumber),
			ProductName:        strings.TrimSpace(e.ProductName),
			Manufacturer:       strings.TrimSpace(e.Manufacturer),
			ActiveIngredients:  strings.TrimSpace(e.ActiveIngredients),
			ApprovalDate:       approval,
			ExpiryDate:         expiry,
			Status:             status,
		})
	}
	return records, nil
}
