package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/staff"
	"github.com/lendmatch/backend/internal/logging"
	"github.com/lendmatch/backend/internal/metrics"
)

// Package-level compiled regex patterns for free-text extraction
var (
	rateRangeRegex  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%?\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*%`)
	rateSingleRegex = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	termRangeRegex  = regexp.MustCompile(`(?i)(\d+)\s*(?:-|–|to)\s*(\d+)\s*(months?|mos?|years?|yrs?)\b`)
	termSingleRegex = regexp.MustCompile(`(?i)(\d+)\s*(months?|mos?|years?|yrs?)\b`)
)

// payloadArrayKeys are the object fields that may carry the record array
var payloadArrayKeys = []string{"products", "data", "items"}

// categoryTable maps known upstream labels (after CanonicalLabel) to the
// category enum. It is the primary mapping path.
var categoryTable = map[string]domain.Category{
	"term_loan":                       domain.CategoryTermLoan,
	"term_loans":                      domain.CategoryTermLoan,
	"business_term_loan":              domain.CategoryTermLoan,
	"term":                            domain.CategoryTermLoan,
	"working_capital":                 domain.CategoryWorkingCapital,
	"working_capital_loan":            domain.CategoryWorkingCapital,
	"merchant_cash_advance":           domain.CategoryWorkingCapital,
	"mca":                             domain.CategoryWorkingCapital,
	"line_of_credit":                  domain.CategoryLineOfCredit,
	"business_line_of_credit":         domain.CategoryLineOfCredit,
	"credit_line":                     domain.CategoryLineOfCredit,
	"loc":                             domain.CategoryLineOfCredit,
	"revolving_credit":                domain.CategoryLineOfCredit,
	"equipment_financing":             domain.CategoryEquipmentFinancing,
	"equipment_finance":               domain.CategoryEquipmentFinancing,
	"equipment_loan":                  domain.CategoryEquipmentFinancing,
	"equipment_leasing":               domain.CategoryEquipmentFinancing,
	"equipment_lease":                 domain.CategoryEquipmentFinancing,
	"invoice_factoring":               domain.CategoryInvoiceFactoring,
	"factoring":                       domain.CategoryInvoiceFactoring,
	"invoice_financing":               domain.CategoryInvoiceFactoring,
	"accounts_receivable_financing":   domain.CategoryInvoiceFactoring,
	"ar_financing":                    domain.CategoryInvoiceFactoring,
	"purchase_order_financing":        domain.CategoryPurchaseOrderFinancing,
	"purchase_order_finance":          domain.CategoryPurchaseOrderFinancing,
	"po_financing":                    domain.CategoryPurchaseOrderFinancing,
	"asset_based_lending":             domain.CategoryAssetBasedLending,
	"asset_based_loan":                domain.CategoryAssetBasedLending,
	"asset_based_line":                domain.CategoryAssetBasedLending,
	"abl":                             domain.CategoryAssetBasedLending,
	"sba_loan":                        domain.CategorySBALoan,
	"sba":                             domain.CategorySBALoan,
	"sba_7a":                          domain.CategorySBALoan,
	"sba_504":                         domain.CategorySBALoan,
	"small_business_administration":   domain.CategorySBALoan,
	"canada_small_business_financing": domain.CategoryTermLoan,
	"bdc_term_loan":                   domain.CategoryTermLoan,
}

// categoryFallbacks is checked in order when the table has no entry.
// Every hit is logged so label drift stays visible.
var categoryFallbacks = []struct {
	substring string
	category  domain.Category
}{
	{"factoring", domain.CategoryInvoiceFactoring},
	{"invoice", domain.CategoryInvoiceFactoring},
	{"receivable", domain.CategoryInvoiceFactoring},
	{"purchase_order", domain.CategoryPurchaseOrderFinancing},
	{"equipment", domain.CategoryEquipmentFinancing},
	{"asset", domain.CategoryAssetBasedLending},
	{"sba", domain.CategorySBALoan},
	{"line", domain.CategoryLineOfCredit},
	{"revolv", domain.CategoryLineOfCredit},
	{"term", domain.CategoryTermLoan},
	{"working", domain.CategoryWorkingCapital},
	{"cash", domain.CategoryWorkingCapital},
}

// NormalizerConfig holds configuration for the normalizer
type NormalizerConfig struct {
	MinSuccessRate float64
}

// NormalizeReport is the detailed outcome of a batch
type NormalizeReport struct {
	Products []domain.Product
	Issues   []domain.RecordIssue
	Total    int
	Accepted int
}

// Normalizer turns loosely typed upstream records into canonical products
type Normalizer struct {
	minSuccessRate float64
	clock          domain.Clock
	logger         *zap.Logger
}

// NewNormalizer creates a normalizer. A zero success rate defaults to 0.8.
func NewNormalizer(config NormalizerConfig, clock domain.Clock, logger *zap.Logger) *Normalizer {
	rate := config.MinSuccessRate
	if rate <= 0 || rate > 1 {
		rate = 0.8
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{minSuccessRate: rate, clock: clock, logger: logger}
}

// Normalize checks the payload shape, then normalizes its record array.
// A payload that is not an object carrying an array returns a
// *domain.StructuralError; a batch below the success threshold returns a
// *domain.ThresholdError.
func (n *Normalizer) Normalize(payload any) ([]domain.Product, error) {
	records, err := extractRecords(payload)
	if err != nil {
		return nil, err
	}

	report, err := n.NormalizeRecords(records)
	if err != nil {
		return nil, err
	}
	return report.Products, nil
}

// NormalizeRecords runs the per-record pipeline and applies the threshold.
// Success rate counts source records that produced at least one product.
func (n *Normalizer) NormalizeRecords(records []any) (NormalizeReport, error) {
	report := NormalizeReport{
		Products: []domain.Product{},
		Total:    len(records),
	}

	for i, item := range records {
		obj, ok := item.(map[string]any)
		if !ok {
			report.Issues = append(report.Issues, domain.RecordIssue{
				Index:  i,
				Issues: []string{fmt.Sprintf("record is %T, not an object", item)},
			})
			continue
		}

		products, issue := n.normalizeRecord(i, domain.RawRecord(obj))
		if issue != nil {
			report.Issues = append(report.Issues, *issue)
			continue
		}
		report.Products = append(report.Products, products...)
		report.Accepted++
	}

	for _, issue := range report.Issues {
		metrics.RecordsDropped.WithLabelValues("normalizer").Inc()
		logging.DataQuality(n.logger, fmt.Sprintf("record #%d %s", issue.Index, issue.Name),
			strings.Join(issue.Issues, "; "), "warning")
	}

	if report.Total == 0 {
		return report, nil
	}

	rate := float64(report.Accepted) / float64(report.Total)
	if rate < n.minSuccessRate {
		err := &domain.ThresholdError{
			Total:    report.Total,
			Accepted: report.Accepted,
			Required: n.minSuccessRate,
			Failures: report.Issues,
		}
		n.logger.Error("Normalization below threshold", zap.Error(err))
		return report, err
	}

	n.logger.Info("Normalized catalog",
		zap.Int("records", report.Total),
		zap.Int("accepted", report.Accepted),
		zap.Int("products", len(report.Products)))
	return report, nil
}

func (n *Normalizer) normalizeRecord(index int, raw domain.RawRecord) ([]domain.Product, *domain.RecordIssue) {
	c := staff.ExtractCandidate(raw, n.clock.Now())

	if c.InterestRate == nil {
		c.InterestRate = ParseRateRange(c.RateText)
	}
	if c.InterestRate == nil {
		c.InterestRate = ParseRateRange(c.Description)
	}
	if c.TermMonths == nil {
		c.TermMonths = ParseTermRange(c.Description)
	}

	markets, unknown := staff.Markets(c.CountryLabels)
	category := n.MapCategory(c.CategoryLabel, c.Name)

	var issues []string
	if len(markets) == 0 {
		issues = append(issues, fmt.Sprintf("country: unrecognised %v", unknown))
	}
	if c.MaxAmount == nil {
		issues = append(issues, "max_amount: required")
	}

	products := c.Build(category, markets)
	for _, p := range products {
		for _, problem := range domain.ValidateProduct(p) {
			if !hasFieldIssue(issues, problem) {
				issues = append(issues, problem)
			}
		}
	}

	if len(issues) > 0 {
		return nil, &domain.RecordIssue{Index: index, Name: c.Name, Issues: issues}
	}
	return products, nil
}

// MapCategory resolves an upstream label through the explicit table, then the
// substring fallback, and finally defaults to working_capital. Only the table
// path is silent.
func (n *Normalizer) MapCategory(label, productName string) domain.Category {
	key := domain.CanonicalLabel(label)
	if c, ok := categoryTable[key]; ok {
		return c
	}

	for _, fb := range categoryFallbacks {
		if key != "" && strings.Contains(key, fb.substring) {
			n.logger.Info("Category mapped by substring fallback",
				zap.String("label", label),
				zap.String("matched", fb.substring),
				zap.String("category", string(fb.category)),
				zap.String("product", productName))
			return fb.category
		}
	}

	n.logger.Warn("Unknown category label, defaulting to working_capital",
		zap.String("label", label),
		zap.String("product", productName))
	return domain.CategoryWorkingCapital
}

// ParseRateRange extracts an interest rate range such as "8.5% - 14%" or
// "from 9%". Returns nil when the text holds no percentage.
func ParseRateRange(text string) *domain.Range {
	if m := rateRangeRegex.FindStringSubmatch(text); m != nil {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil {
			return orderedRange(lo, hi)
		}
	}
	if m := rateSingleRegex.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &domain.Range{Min: v, Max: v}
		}
	}
	return nil
}

// ParseTermRange extracts a term range in months from text such as
// "6-24 months" or "up to 5 years". Returns nil when nothing matches.
func ParseTermRange(text string) *domain.Range {
	if m := termRangeRegex.FindStringSubmatch(text); m != nil {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil {
			mult := unitMonths(m[3])
			return orderedRange(lo*mult, hi*mult)
		}
	}
	if m := termSingleRegex.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			v *= unitMonths(m[2])
			return &domain.Range{Min: v, Max: v}
		}
	}
	return nil
}

func unitMonths(unit string) float64 {
	if strings.HasPrefix(strings.ToLower(unit), "y") {
		return 12
	}
	return 1
}

func orderedRange(a, b float64) *domain.Range {
	if a > b {
		a, b = b, a
	}
	return &domain.Range{Min: a, Max: b}
}

// extractRecords finds the record array in a decoded payload
func extractRecords(payload any) ([]any, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, &domain.StructuralError{Detail: fmt.Sprintf("expected a JSON object, got %s", jsonKind(payload))}
	}

	for _, key := range payloadArrayKeys {
		if list, ok := obj[key].([]any); ok {
			return list, nil
		}
	}
	return nil, &domain.StructuralError{Detail: fmt.Sprintf("object has no array under any of %v", payloadArrayKeys)}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// hasFieldIssue reports whether an issue for the same field is
// already recorded, so dual-market records do not list it twice.
func hasFieldIssue(issues []string, issue string) bool {
	field, _, _ := strings.Cut(issue, ":")
	for _, existing := range issues {
		if f, _, _ := strings.Cut(existing, ":"); f == field {
			return true
		}
	}
	return false
}
