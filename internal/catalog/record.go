package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Status is the registration status of a product
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusWithdrawn Status = "withdrawn"
)

// ParseStatus normalizes a registry status string
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	case StatusWithdrawn:
		return StatusWithdrawn, nil
	}
	return "", fmt.Errorf("unknown product status %q", s)
}

// ProductRecord represents one registered product
type ProductRecord struct {
	RegistrationNumber string    `json:"registration_number"`
	BatchNumber        string    `json:"batch_number,omitempty"`
	ProductName        string    `json:"product_name"`
	Manufacturer       string    `json:"manufacturer"`
	ActiveIngredients  string    `json:"active_ingredients,omitempty"`
	ApprovalDate       time.Time `json:"approval_date"`
	ExpiryDate         time.Time `json:"expiry_date"` // zero when the feed does not track expiry
	Status             Status    `json:"status"`
}
