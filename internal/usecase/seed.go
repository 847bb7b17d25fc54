package usecase

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/staff"
)

// DefaultSeedProducts is the built-in fallback catalog used when the server
// starts without reaching upstream and no seed file is configured.
func DefaultSeedProducts(now time.Time) []domain.Product {
	return []domain.Product{
		{
			ID:           "lender_equipment_001",
			Name:         "Equipment Financing Plus",
			LenderName:   "Boreal Capital",
			Country:      domain.CountryCA,
			Category:     domain.CategoryEquipmentFinancing,
			MinAmount:    50000,
			MaxAmount:    2000000,
			InterestRate: &domain.Range{Min: 6.5, Max: 12},
			TermMonths:   &domain.Range{Min: 12, Max: 84},
			Description:  "Equipment financing for Canadian businesses",
			Active:       true,
			UpdatedAt:    now,
		},
		{
			ID:           "lender_working_capital_001",
			Name:         "Working Capital Line of Credit",
			LenderName:   "Boreal Capital",
			Country:      domain.CountryCA,
			Category:     domain.CategoryWorkingCapital,
			MinAmount:    25000,
			MaxAmount:    500000,
			InterestRate: &domain.Range{Min: 8, Max: 18},
			TermMonths:   &domain.Range{Min: 6, Max: 24},
			Description:  "Revolving working capital for operating expenses",
			Active:       true,
			UpdatedAt:    now,
		},
	}
}

// LoadSeedFile reads a JSON seed catalog, either a bare array of records or
// an object with a products array. Records that cannot be mapped are
// skipped.
func LoadSeedFile(path string, now time.Time) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		records, err := extractRecords(v)
		if err != nil {
			return nil, err
		}
		items = records
	default:
		return nil, &domain.StructuralError{Detail: "seed file must hold an array or an object with a products array"}
	}

	var products []domain.Product
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		mapped, issues := staff.MapRecord(domain.RawRecord(obj), now)
		if len(issues) > 0 {
			continue
		}
		products = append(products, mapped...)
	}

	if len(products) == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	return products, nil
}
