package verification

import (
	"time"

	"github.com/zombor/medverify/internal/catalog"
)

// Status is the closed set of verification outcomes
type Status string

const (
	StatusVerified          Status = "verified"
	StatusNotFound          Status = "not_found"
	StatusQRNotFound        Status = "qr_not_found"
	StatusScanError         Status = "scan_error"
	StatusInvalidFileType   Status = "invalid_file_type"
	StatusFileTooLarge      Status = "file_too_large"
	StatusOCRNoText         Status = "ocr_no_text"
	StatusOCRFailed         Status = "ocr_failed"
	StatusOCRLowConfidence  Status = "ocr_low_confidence"
	StatusOCRError          Status = "ocr_error"
	StatusCameraUnavailable Status = "camera_unavailable"
	StatusSystemError       Status = "system_error"
)

var statusMessages = map[Status]string{
	StatusVerified:          "This product is registered.",
	StatusNotFound:          "No registered product matches this number. The product may be counterfeit or unregistered.",
	StatusQRNotFound:        "No QR code was found in the image. Try scanning the label text or enter the number manually.",
	StatusScanError:         "Scanning failed. Please try again.",
	StatusInvalidFileType:   "Please upload an image file.",
	StatusFileTooLarge:      "The image is too large. Please upload an image under 5MB.",
	StatusOCRNoText:         "No text was found in the image. Please photograph the label with the registration number visible.",
	StatusOCRFailed:         "We couldn't clearly read the text on your image. Please take a new photo with better lighting and a straighter angle, or enter the number manually.",
	StatusOCRLowConfidence:  "We detected some text but couldn't confidently identify the registration number. Please confirm it against your package or enter it manually.",
	StatusOCRError:          "Text recognition failed. Please try again or use manual input.",
	StatusCameraUnavailable: "The camera is not available.",
	StatusSystemError:       "Something went wrong. Please try again.",
}

// Message returns the user-facing message for s
func (s Status) Message() string {
	return statusMessages[s]
}

// NotAvailable fills product fields the catalog does not track
const NotAvailable = "N/A"

// ExpiringSoonDays is the window for ExpiryExpiringSoon
const ExpiringSoonDays = 90

// Expiry statuses
const (
	ExpiryValid        = "valid"
	ExpiryExpiringSoon = "expiring_soon"
	ExpiryExpired      = "expired"
	ExpiryUnknown      = "unknown"
)

// Product is an owned copy of a matched catalog record
type Product struct {
	RegistrationNumber string `json:"registration_number"`
	BatchNumber        string `json:"batch_number"`
	ProductName        string `json:"product_name"`
	Manufacturer       string `json:"manufacturer"`
	ActiveIngredients  string `json:"active_ingredients"`
	ApprovalDate       string `json:"approval_date"`
	ExpiryDate         string `json:"expiry_date"`
	ProductStatus      string `json:"product_status"`
	ExpiryStatus       string `json:"expiry_status"`
	DaysUntilExpiry    *int   `json:"days_until_expiry,omitempty"`
}

// Verdict is the terminal result of one verification cycle.
// Product is set only for StatusVerified. Reason is a machine-readable cause, e.g. the
// camera failure; Detail its user-facing explanation.
type Verdict struct {
	CycleID       string   `json:"cycle_id,omitempty"`
	Status        Status   `json:"status"`
	Message       string   `json:"message"`
	Reason        string   `json:"reason,omitempty"`
	Detail        string   `json:"detail,omitempty"`
	ExtractedText string   `json:"extracted_text,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Candidate     string   `json:"candidate,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	Product       *Product `json:"product,omitempty"`
}

func newVerdict(s Status) Verdict {
	return Verdict{Status: s, Message: s.Message()}
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Format(time.DateOnly)
}

// snapshot copies rec into a Product, classifying expiry relative to now
func snapshot(rec catalog.ProductRecord, now time.Time) *Product {
	p := &Product{
		RegistrationNumber: orNA(rec.RegistrationNumber),
		BatchNumber:        orNA(rec.BatchNumber),
		ProductName:        orNA(rec.ProductName),
		Manufacturer:       orNA(rec.Manufacturer),
		ActiveIngredients:  orNA(rec.ActiveIngredients),
		ApprovalDate:       formatDate(rec.ApprovalDate),
		ExpiryDate:         formatDate(rec.ExpiryDate),
		ProductStatus:      orNA(string(rec.Status)),
		ExpiryStatus:       ExpiryUnknown,
	}

	if !rec.ExpiryDate.IsZero() {
		days := daysBetween(now, rec.ExpiryDate)
		p.DaysUntilExpiry = &days
		switch {
		case days < 0:
			p.ExpiryStatus = ExpiryExpired
		case days <= ExpiringSoonDays:
			p.ExpiryStatus = ExpiryExpiringSoon
		default:
			p.ExpiryStatus = ExpiryValid
		}
	}
	return p
}

// daysBetween counts calendar days from a to b
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
