package staff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendmatch/backend/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestMapRecord(t *testing.T) {
	t.Run("maps snake case record", func(t *testing.T) {
		raw := domain.RawRecord{
			"id":          "lender_equipment_001",
			"name":        "Equipment Financing Plus",
			"lender_name": "Boreal Capital",
			"country":     "Canada",
			"category":    "equipment_financing",
			"min_amount":  50000.0,
			"max_amount":  2000000.0,
			"min_revenue": 250000.0,
			"interest_rate": map[string]any{
				"min": 6.5,
				"max": 12.0,
			},
			"updated_at": "2026-02-10T12:00:00Z",
		}

		products, issues := MapRecord(raw, fixedNow)

		require.Empty(t, issues)
		require.Len(t, products, 1)
		p := products[0]
		assert.Equal(t, "lender_equipment_001", p.ID)
		assert.Equal(t, domain.CountryCA, p.Country)
		assert.Equal(t, domain.CategoryEquipmentFinancing, p.Category)
		assert.Equal(t, 50000.0, p.MinAmount)
		assert.Equal(t, 2000000.0, p.MaxAmount)
		require.NotNil(t, p.MinRevenue)
		assert.Equal(t, 250000.0, *p.MinRevenue)
		assert.Equal(t, &domain.Range{Min: 6.5, Max: 12}, p.InterestRate)
		assert.True(t, p.Active)
		assert.Equal(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC), p.UpdatedAt)
	})

	t.Run("maps camel case aliases", func(t *testing.T) {
		raw := domain.RawRecord{
			"productName":     "Working Capital Line",
			"lenderName":      "Prairie Lending",
			"geography":       "USA",
			"productCategory": "Working Capital",
			"minAmount":       "$25,000",
			"maxAmount":       "500,000",
			"isActive":        false,
		}

		products, issues := MapRecord(raw, fixedNow)

		require.Empty(t, issues)
		require.Len(t, products, 1)
		p := products[0]
		assert.Equal(t, "prairie-lending-working-capital-line", p.ID)
		assert.Equal(t, domain.CountryUS, p.Country)
		assert.Equal(t, domain.CategoryWorkingCapital, p.Category)
		assert.Equal(t, 25000.0, p.MinAmount)
		assert.Equal(t, 500000.0, p.MaxAmount)
		assert.False(t, p.Active)
		assert.Equal(t, fixedNow, p.UpdatedAt)
	})

	t.Run("expands dual market record", func(t *testing.T) {
		raw := domain.RawRecord{
			"id":          "abl-7",
			"name":        "Asset Line",
			"lender_name": "North Co",
			"country":     "US/CA",
			"category":    "asset_based_lending",
			"min_amount":  100000.0,
			"max_amount":  900000.0,
		}

		products, issues := MapRecord(raw, fixedNow)

		require.Empty(t, issues)
		require.Len(t, products, 2)
		assert.Equal(t, "abl-7-us", products[0].ID)
		assert.Equal(t, domain.CountryUS, products[0].Country)
		assert.Equal(t, "abl-7-ca", products[1].ID)
		assert.Equal(t, domain.CountryCA, products[1].Country)
	})

	t.Run("country list is treated as markets", func(t *testing.T) {
		raw := domain.RawRecord{
			"id": "x", "name": "X", "lender_name": "L",
			"countries": []any{"CA", "US"}, "category": "term_loan",
			"max_amount": 10.0,
		}

		products, issues := MapRecord(raw, fixedNow)

		require.Empty(t, issues)
		require.Len(t, products, 2)
		assert.Equal(t, "x-ca", products[0].ID)
		assert.Equal(t, "x-us", products[1].ID)
	})

	t.Run("drops incomplete records", func(t *testing.T) {
		tests := []struct {
			name      string
			raw       domain.RawRecord
			wantIssue string
		}{
			{
				name:      "missing name",
				raw:       domain.RawRecord{"lender_name": "L", "country": "US", "category": "term_loan", "max_amount": 1.0},
				wantIssue: "name: required",
			},
			{
				name:      "missing lender",
				raw:       domain.RawRecord{"name": "N", "country": "US", "category": "term_loan", "max_amount": 1.0},
				wantIssue: "lender_name: required",
			},
			{
				name:      "unknown country",
				raw:       domain.RawRecord{"name": "N", "lender_name": "L", "country": "Mexico", "category": "term_loan", "max_amount": 1.0},
				wantIssue: "country: unrecognised [Mexico]",
			},
			{
				name:      "heuristic category is not accepted",
				raw:       domain.RawRecord{"name": "N", "lender_name": "L", "country": "US", "category": "Business Term Loan", "max_amount": 1.0},
				wantIssue: `category: unrecognised "Business Term Loan"`,
			},
			{
				name:      "inverted amounts",
				raw:       domain.RawRecord{"name": "N", "lender_name": "L", "country": "US", "category": "term_loan", "min_amount": 10.0, "max_amount": 1.0},
				wantIssue: "min_amount: 10 exceeds max_amount 1",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				products, issues := MapRecord(tt.raw, fixedNow)

				assert.Nil(t, products)
				assert.Contains(t, issues, tt.wantIssue)
			})
		}
	})
}

func TestExtractCandidate_Ranges(t *testing.T) {
	tests := []struct {
		name     string
		raw      domain.RawRecord
		wantRate *domain.Range
		wantTerm *domain.Range
	}{
		{
			name:     "flat keys",
			raw:      domain.RawRecord{"interest_rate_min": 8.0, "interest_rate_max": 14.0, "term_min": 12.0, "term_max": 60.0},
			wantRate: &domain.Range{Min: 8, Max: 14},
			wantTerm: &domain.Range{Min: 12, Max: 60},
		},
		{
			name:     "single bound becomes a point",
			raw:      domain.RawRecord{"rate_max": "9.5%"},
			wantRate: &domain.Range{Min: 9.5, Max: 9.5},
		},
		{
			name: "absent",
			raw:  domain.RawRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ExtractCandidate(tt.raw, fixedNow)
			assert.Equal(t, tt.wantRate, c.InterestRate)
			assert.Equal(t, tt.wantTerm, c.TermMonths)
		})
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "boreal-capital-equipment-plus", Slug("Boreal Capital  Equipment+Plus"))
	assert.Equal(t, "abc", Slug("--ABC--"))
}

func TestProductRoundTripThroughMapper(t *testing.T) {
	rate := 12000.0
	original := domain.Product{
		ID:           "p-1",
		Name:         "Term Plus",
		LenderName:   "Boreal",
		Country:      domain.CountryCA,
		Category:     domain.CategoryTermLoan,
		MinAmount:    10000,
		MaxAmount:    250000,
		MinRevenue:   &rate,
		InterestRate: &domain.Range{Min: 7, Max: 11},
		TermMonths:   &domain.Range{Min: 6, Max: 36},
		Description:  "desc",
		Active:       true,
		UpdatedAt:    fixedNow,
	}

	products, issues := MapRecord(original.ToRaw(), time.Time{})

	require.Empty(t, issues)
	require.Len(t, products, 1)
	assert.Equal(t, original, products[0])
}

func TestMergePatch(t *testing.T) {
	stored := domain.Product{
		ID:           "p-1",
		Name:         "Term Plus",
		LenderName:   "Boreal",
		Country:      domain.CountryCA,
		Category:     domain.CategoryTermLoan,
		MinAmount:    10000,
		MaxAmount:    250000,
		InterestRate: &domain.Range{Min: 7, Max: 11},
		TermMonths:   &domain.Range{Min: 6, Max: 36},
		Active:       true,
		UpdatedAt:    fixedNow,
	}

	tests := []struct {
		name  string
		patch domain.RawRecord
		check func(t *testing.T, p domain.Product)
	}{
		{
			name:  "camelCase keys replace stored values",
			patch: domain.RawRecord{"maxAmount": 999999.0, "lenderName": "Renamed", "isActive": false},
			check: func(t *testing.T, p domain.Product) {
				assert.Equal(t, 999999.0, p.MaxAmount)
				assert.Equal(t, "Renamed", p.LenderName)
				assert.False(t, p.Active)
				assert.Equal(t, 10000.0, p.MinAmount)
			},
		},
		{
			name:  "status string",
			patch: domain.RawRecord{"status": "inactive"},
			check: func(t *testing.T, p domain.Product) { assert.False(t, p.Active) },
		},
		{
			name:  "country alias",
			patch: domain.RawRecord{"market": "USA"},
			check: func(t *testing.T, p domain.Product) { assert.Equal(t, domain.CountryUS, p.Country) },
		},
		{
			name:  "canonical keys",
			patch: domain.RawRecord{"min_amount": 20000.0, "category": "line_of_credit"},
			check: func(t *testing.T, p domain.Product) {
				assert.Equal(t, 20000.0, p.MinAmount)
				assert.Equal(t, domain.CategoryLineOfCredit, p.Category)
			},
		},
		{
			name:  "single flat bound keeps the other",
			patch: domain.RawRecord{"interestRateMax": 14.5, "termMin": 12.0},
			check: func(t *testing.T, p domain.Product) {
				assert.Equal(t, &domain.Range{Min: 7, Max: 14.5}, p.InterestRate)
				assert.Equal(t, &domain.Range{Min: 12, Max: 36}, p.TermMonths)
			},
		},
		{
			name:  "two spellings of one field",
			patch: domain.RawRecord{"maxAmount": 1.0, "max_amount": 300000.0},
			check: func(t *testing.T, p domain.Product) { assert.Equal(t, 300000.0, p.MaxAmount) },
		},
		{
			name:  "description alias",
			patch: domain.RawRecord{"notes": "updated"},
			check: func(t *testing.T, p domain.Product) { assert.Equal(t, "updated", p.Description) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergePatch(stored.ToRaw(), tt.patch)

			products, issues := MapRecord(merged, fixedNow)

			require.Empty(t, issues)
			require.Len(t, products, 1)
			assert.Equal(t, "p-1", products[0].ID)
			tt.check(t, products[0])
		})
	}
}

func TestMergePatch_LeavesBaseUntouched(t *testing.T) {
	base := domain.RawRecord{"max_amount": 1.0, "interest_rate": map[string]any{"min": 1.0, "max": 2.0}}

	_ = MergePatch(base, domain.RawRecord{"maxAmount": 5.0, "rate_max": 3.0})

	assert.Equal(t, 1.0, base["max_amount"])
	assert.Equal(t, map[string]any{"min": 1.0, "max": 2.0}, base["interest_rate"])
}
