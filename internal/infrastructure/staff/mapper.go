package staff

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/lendmatch/backend/internal/domain"
)

// Alias keys seen across staff backend versions
var (
	idKeys          = []string{"id", "product_id", "productId", "_id"}
	nameKeys        = []string{"name", "product_name", "productName", "product", "title"}
	lenderKeys      = []string{"lender_name", "lenderName", "lender"}
	countryKeys     = []string{"country", "geography", "countries", "market", "country_code"}
	categoryKeys    = []string{"category", "product_category", "productCategory", "product_type", "productType", "type"}
	minAmountKeys   = []string{"min_amount", "minAmount", "amount_min", "minAmountUsd"}
	maxAmountKeys   = []string{"max_amount", "maxAmount", "amount_max", "maxAmountUsd"}
	minRevenueKeys  = []string{"min_revenue", "minRevenue", "min_annual_revenue", "minAnnualRevenue"}
	rateMinKeys     = []string{"interest_rate_min", "interestRateMin", "rate_min"}
	rateMaxKeys     = []string{"interest_rate_max", "interestRateMax", "rate_max"}
	termMinKeys     = []string{"term_min", "termMin", "term_min_months", "termMinMonths"}
	termMaxKeys     = []string{"term_max", "termMax", "term_max_months", "termMaxMonths"}
	descriptionKeys = []string{"description", "details", "notes"}
	rateTextKeys    = []string{"rate", "interest_rate", "interestRate", "rate_text"}
	activeKeys      = []string{"active", "is_active", "isActive", "status"}
	updatedKeys     = []string{"updated_at", "updatedAt", "last_updated"}
)

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Candidate holds the fields pulled out of a raw record before any
// category resolution or validation happens.
type Candidate struct {
	ID            string
	Name          string
	LenderName    string
	CountryLabels []string
	CategoryLabel string
	MinAmount     *float64
	MaxAmount     *float64
	MinRevenue    *float64
	InterestRate  *domain.Range
	TermMonths    *domain.Range
	RateText      string
	Description   string
	Active        bool
	UpdatedAt     time.Time
}

// ExtractCandidate reads every known alias out of raw. Missing values are
// left empty; deciding whether that is fatal is up to the caller.
func ExtractCandidate(raw domain.RawRecord, now time.Time) Candidate {
	c := Candidate{
		ID:            raw.String(idKeys...),
		Name:          raw.String(nameKeys...),
		LenderName:    raw.String(lenderKeys...),
		CountryLabels: raw.Strings(countryKeys...),
		CategoryLabel: raw.String(categoryKeys...),
		Description:   raw.String(descriptionKeys...),
		RateText:      raw.String(rateTextKeys...),
		Active:        true,
		UpdatedAt:     now,
	}

	if v, ok := raw.Number(minAmountKeys...); ok {
		c.MinAmount = &v
	}
	if v, ok := raw.Number(maxAmountKeys...); ok {
		c.MaxAmount = &v
	}
	if v, ok := raw.Number(minRevenueKeys...); ok {
		c.MinRevenue = &v
	}

	c.InterestRate = extractRange(raw, "interest_rate", rateMinKeys, rateMaxKeys)
	c.TermMonths = extractRange(raw, "term_months", termMinKeys, termMaxKeys)

	if active, ok := raw.Bool(activeKeys...); ok {
		c.Active = active
	}
	if t, ok := raw.Time(updatedKeys...); ok {
		c.UpdatedAt = t
	}

	if c.ID == "" && c.Name != "" && c.LenderName != "" {
		c.ID = Slug(c.LenderName + " " + c.Name)
	}

	return c
}

// extractRange reads a {min,max} object under nested, or flat min/max keys.
// A single bound is widened to a point range.
func extractRange(raw domain.RawRecord, nested string, minKeys, maxKeys []string) *domain.Range {
	if obj, ok := raw[nested].(map[string]any); ok {
		inner := domain.RawRecord(obj)
		lo, okLo := inner.Number("min")
		hi, okHi := inner.Number("max")
		if okLo || okHi {
			return pointRange(lo, okLo, hi, okHi)
		}
	}
	lo, okLo := raw.Number(minKeys...)
	hi, okHi := raw.Number(maxKeys...)
	if !okLo && !okHi {
		return nil
	}
	return pointRange(lo, okLo, hi, okHi)
}

func pointRange(lo float64, okLo bool, hi float64, okHi bool) *domain.Range {
	switch {
	case okLo && okHi:
		return &domain.Range{Min: lo, Max: hi}
	case okLo:
		return &domain.Range{Min: lo, Max: lo}
	default:
		return &domain.Range{Min: hi, Max: hi}
	}
}

// Markets resolves every country label into the set of markets it covers,
// in first-seen order. Unknown labels are returned separately.
func Markets(labels []string) ([]domain.Country, []string) {
	var markets []domain.Country
	var unknown []string
	seen := make(map[domain.Country]bool)

	for _, label := range labels {
		resolved := domain.ParseMarkets(label)
		if resolved == nil {
			unknown = append(unknown, label)
			continue
		}
		for _, m := range resolved {
			if !seen[m] {
				seen[m] = true
				markets = append(markets, m)
			}
		}
	}
	return markets, unknown
}

// Build turns the candidate into one product per market. Products for a
// dual-market record get a market suffix on their id so each stays unique.
func (c Candidate) Build(category domain.Category, markets []domain.Country) []domain.Product {
	base := domain.Product{
		ID:           c.ID,
		Name:         c.Name,
		LenderName:   c.LenderName,
		Category:     category,
		MinRevenue:   c.MinRevenue,
		InterestRate: c.InterestRate,
		TermMonths:   c.TermMonths,
		Description:  c.Description,
		Active:       c.Active,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.MinAmount != nil {
		base.MinAmount = *c.MinAmount
	}
	if c.MaxAmount != nil {
		base.MaxAmount = *c.MaxAmount
	}

	if len(markets) == 0 {
		return []domain.Product{base}
	}

	products := make([]domain.Product, 0, len(markets))
	for _, market := range markets {
		p := base
		p.Country = market
		if len(markets) > 1 && p.ID != "" {
			p.ID = fmt.Sprintf("%s-%s", c.ID, strings.ToLower(string(market)))
		}
		products = append(products, p)
	}
	return products
}

// MapRecord converts a raw staff record into canonical products for the
// server-side catalog. Only exact category values are accepted here; the
// client-side normalizer is the place for label heuristics. Returns nil and
// the list of problems when the record cannot be stored.
func MapRecord(raw domain.RawRecord, now time.Time) ([]domain.Product, []string) {
	c := ExtractCandidate(raw, now)

	var issues []string
	if c.Name == "" {
		issues = append(issues, "name: required")
	}
	if c.LenderName == "" {
		issues = append(issues, "lender_name: required")
	}

	markets, unknown := Markets(c.CountryLabels)
	if len(markets) == 0 {
		issues = append(issues, fmt.Sprintf("country: unrecognised %v", unknown))
	}

	category, ok := domain.ParseCategory(c.CategoryLabel)
	if !ok {
		issues = append(issues, fmt.Sprintf("category: unrecognised %q", c.CategoryLabel))
	}

	if len(issues) > 0 {
		return nil, issues
	}

	products := c.Build(category, markets)
	for _, p := range products {
		if problems := domain.ValidateProduct(p); len(problems) > 0 {
			return nil, problems
		}
	}
	return products, nil
}

// fieldAliases maps the key a Product serializes to onto every alias that
// ExtractCandidate reads for it.
var fieldAliases = map[string][]string{
	"id":          idKeys,
	"name":        nameKeys,
	"lender_name": lenderKeys,
	"country":     countryKeys,
	"category":    categoryKeys,
	"min_amount":  minAmountKeys,
	"max_amount":  maxAmountKeys,
	"min_revenue": minRevenueKeys,
	"description": descriptionKeys,
	"active":      activeKeys,
	"updated_at":  updatedKeys,
}

// rangeFields are the nested {min,max} objects a Product serializes to
var rangeFields = []struct {
	nested           string
	minKeys, maxKeys []string
}{
	{"interest_rate", rateMinKeys, rateMaxKeys},
	{"term_months", termMinKeys, termMaxKeys},
}

var canonicalKey = func() map[string]string {
	m := make(map[string]string)
	for canonical, aliases := range fieldAliases {
		for _, alias := range aliases {
			m[alias] = canonical
		}
	}
	return m
}()

// MergePatch applies a partial update to base, a record produced by
// Product.ToRaw. Patch keys are rewritten to the canonical key of their
// field and every other alias of that field is removed, so a patch written
// as maxAmount or isActive replaces the stored value instead of being
// shadowed by it. Flat range bounds are folded into the nested range.
func MergePatch(base, patch domain.RawRecord) domain.RawRecord {
	out := make(domain.RawRecord, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}

	for _, rf := range rangeFields {
		lo, okLo := patch.Number(rf.minKeys...)
		hi, okHi := patch.Number(rf.maxKeys...)
		if !okLo && !okHi {
			continue
		}
		merged := map[string]any{}
		if existing, ok := out[rf.nested].(map[string]any); ok {
			for k, v := range existing {
				merged[k] = v
			}
		}
		if okLo {
			merged["min"] = lo
		}
		if okHi {
			merged["max"] = hi
		}
		if _, ok := merged["min"]; !ok {
			merged["min"] = merged["max"]
		}
		if _, ok := merged["max"]; !ok {
			merged["max"] = merged["min"]
		}
		out[rf.nested] = merged
		for _, key := range append(slices.Clone(rf.minKeys), rf.maxKeys...) {
			delete(out, key)
		}
	}

	// first alias present wins, as in ExtractCandidate
	for canonical, aliases := range fieldAliases {
		for _, alias := range aliases {
			v, ok := patch[alias]
			if !ok {
				continue
			}
			for _, a := range aliases {
				delete(out, a)
			}
			out[canonical] = v
			break
		}
	}
	for key, v := range patch {
		if _, ok := canonicalKey[key]; ok || isRangeBound(key) {
			continue
		}
		out[key] = v
	}
	return out
}

func isRangeBound(key string) bool {
	for _, rf := range rangeFields {
		if slices.Contains(rf.minKeys, key) || slices.Contains(rf.maxKeys, key) {
			return true
		}
	}
	return false
}

// Slug lowercases s and joins its alphanumeric runs with dashes
func Slug(s string) string {
	return strings.Trim(slugRegex.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
