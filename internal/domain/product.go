package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Country is the market a lending product is offered in
type Country string

const (
	CountryCA Country = "CA"
	CountryUS Country = "US"
)

// Valid reports whether c is one of the supported markets
func (c Country) Valid() bool {
	return c == CountryCA || c == CountryUS
}

// ParseCountry maps a free-text country label onto a single market.
// Dual-market labels ("US/CA") are not accepted here; see ParseMarkets.
func ParseCountry(s string) (Country, bool) {
	markets := ParseMarkets(s)
	if len(markets) != 1 {
		return "", false
	}
	return markets[0], true
}

// ParseMarkets maps a free-text country label onto the markets it covers.
// Returns nil when the label is not recognised.
func ParseMarkets(s string) []Country {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer(".", "", "_", " ").Replace(key)

	switch key {
	case "CA", "CAN", "CANADA":
		return []Country{CountryCA}
	case "US", "USA", "UNITED STATES", "UNITED STATES OF AMERICA", "AMERICA":
		return []Country{CountryUS}
	case "US/CA", "CA/US", "US,CA", "CA,US", "US-CA", "CA-US", "BOTH", "NORTH AMERICA", "USA/CANADA", "CANADA/USA":
		return []Country{CountryUS, CountryCA}
	}
	return nil
}

// Category is the closed set of financing types
type Category string

const (
	CategoryTermLoan               Category = "term_loan"
	CategoryWorkingCapital         Category = "working_capital"
	CategoryLineOfCredit           Category = "line_of_credit"
	CategoryEquipmentFinancing     Category = "equipment_financing"
	CategoryInvoiceFactoring       Category = "invoice_factoring"
	CategoryPurchaseOrderFinancing Category = "purchase_order_financing"
	CategoryAssetBasedLending      Category = "asset_based_lending"
	CategorySBALoan                Category = "sba_loan"
)

// Categories lists every supported category in a fixed order
var Categories = []Category{
	CategoryTermLoan,
	CategoryWorkingCapital,
	CategoryLineOfCredit,
	CategoryEquipmentFinancing,
	CategoryInvoiceFactoring,
	CategoryPurchaseOrderFinancing,
	CategoryAssetBasedLending,
	CategorySBALoan,
}

// Valid reports whether c is a member of the closed category enum
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts only exact enum values, ignoring case and
// space/dash/underscore differences ("Term Loan" -> term_loan).
func ParseCategory(s string) (Category, bool) {
	c := Category(CanonicalLabel(s))
	return c, c.Valid()
}

// CanonicalLabel lowercases a label and joins its words with underscores
func CanonicalLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", "/", " ", "&", " and ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// Range is an inclusive numeric range parsed from upstream data
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Product is a canonical lending product: validated, normalized and safe to
// store or rank.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LenderName   string    `json:"lender_name"`
	Country      Country   `json:"country"`
	Category     Category  `json:"category"`
	MinAmount    float64   `json:"min_amount"`
	MaxAmount    float64   `json:"max_amount"`
	MinRevenue   *float64  `json:"min_revenue,omitempty"`
	InterestRate *Range    `json:"interest_rate,omitempty"` // percent
	TermMonths   *Range    `json:"term_months,omitempty"`
	Description  string    `json:"description,omitempty"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToRaw converts p back into a loosely typed record, used when merging a
// partial update onto an existing product.
func (p Product) ToRaw() RawRecord {
	data, err := json.Marshal(p)
	if err != nil {
		return RawRecord{}
	}
	var raw RawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawRecord{}
	}
	return raw
}
