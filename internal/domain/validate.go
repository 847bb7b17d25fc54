package domain

import (
	"fmt"
	"math"
	"strings"
)

// ValidateProduct checks p against the canonical schema and returns one
// message per violated field. An empty result means p may be stored.
func ValidateProduct(p Product) []string {
	var issues []string

	if strings.TrimSpace(p.ID) == "" {
		issues = append(issues, "id: required")
	}
	if strings.TrimSpace(p.Name) == "" {
		issues = append(issues, "name: required")
	}
	if strings.TrimSpace(p.LenderName) == "" {
		issues = append(issues, "lender_name: required")
	}
	if !p.Country.Valid() {
		issues = append(issues, fmt.Sprintf("country: %q is not CA or US", p.Country))
	}
	if !p.Category.Valid() {
		issues = append(issues, fmt.Sprintf("category: %q is not a known category", p.Category))
	}

	switch {
	case !finite(p.MinAmount) || p.MinAmount < 0:
		issues = append(issues, "min_amount: must be a non-negative number")
	case !finite(p.MaxAmount) || p.MaxAmount <= 0:
		issues = append(issues, "max_amount: must be a positive number")
	case p.MinAmount > p.MaxAmount:
		issues = append(issues, fmt.Sprintf("min_amount: %v exceeds max_amount %v", p.MinAmount, p.MaxAmount))
	}

	if p.MinRevenue != nil && (!finite(*p.MinRevenue) || *p.MinRevenue < 0) {
		issues = append(issues, "min_revenue: must be a non-negative number")
	}
	if msg := validateRange(p.InterestRate); msg != "" {
		issues = append(issues, "interest_rate: "+msg)
	}
	if msg := validateRange(p.TermMonths); msg != "" {
		issues = append(issues, "term_months: "+msg)
	}

	return issues
}

func validateRange(r *Range) string {
	if r == nil {
		return ""
	}
	if !finite(r.Min) || !finite(r.Max) || r.Min < 0 || r.Max < 0 {
		return "bounds must be non-negative numbers"
	}
	if r.Min > r.Max {
		return "min exceeds max"
	}
	return ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
