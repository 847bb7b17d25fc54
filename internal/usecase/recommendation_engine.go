package usecase

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/metrics"
)

// Scoring bonuses
const (
	revenueFitBonus       = 10.0 // no minimum revenue, or 2x funding clears it
	receivablesBonus      = 15.0 // invoice factoring with an AR balance
	inventoryPurposeBonus = 15.0 // PO financing when funds are for inventory
	impliedRevenueFactor  = 2.0  // conservative annual revenue estimate per funding dollar
	maxScore              = 100.0
)

// Tier thresholds
const (
	excellentThreshold = 70.0
	goodThreshold      = 50.0
)

// categoryWeights is the category-fit score per lookingFor value
var categoryWeights = map[domain.Category]map[domain.LookingFor]float64{
	domain.CategoryTermLoan:               {domain.LookingForCapital: 30, domain.LookingForEquipment: 0, domain.LookingForBoth: 25},
	domain.CategoryWorkingCapital:         {domain.LookingForCapital: 25, domain.LookingForEquipment: 0, domain.LookingForBoth: 20},
	domain.CategoryLineOfCredit:           {domain.LookingForCapital: 20, domain.LookingForEquipment: 0, domain.LookingForBoth: 15},
	domain.CategoryEquipmentFinancing:     {domain.LookingForCapital: 0, domain.LookingForEquipment: 30, domain.LookingForBoth: 25},
	domain.CategoryInvoiceFactoring:       {domain.LookingForCapital: 15, domain.LookingForEquipment: 0, domain.LookingForBoth: 10},
	domain.CategoryPurchaseOrderFinancing: {domain.LookingForCapital: 10, domain.LookingForEquipment: 0, domain.LookingForBoth: 5},
	domain.CategoryAssetBasedLending:      {domain.LookingForCapital: 15, domain.LookingForEquipment: 5, domain.LookingForBoth: 10},
	domain.CategorySBALoan:                {domain.LookingForCapital: 25, domain.LookingForEquipment: 15, domain.LookingForBoth: 20},
}

// capitalCategories and equipmentCategories are the hard category filters
var (
	capitalCategories = map[domain.Category]bool{
		domain.CategoryTermLoan:       true,
		domain.CategoryWorkingCapital: true,
		domain.CategoryLineOfCredit:   true,
	}
	equipmentCategories = map[domain.Category]bool{
		domain.CategoryEquipmentFinancing: true,
	}
)

// categoryPhrases explain why a category suits the applicant
var categoryPhrases = map[domain.Category]string{
	domain.CategoryTermLoan:               "Term loan for business growth and expansion",
	domain.CategoryWorkingCapital:         "Working capital for operational expenses",
	domain.CategoryLineOfCredit:           "Flexible credit line for ongoing needs",
	domain.CategoryEquipmentFinancing:     "Specialized equipment financing",
	domain.CategoryInvoiceFactoring:       "Convert receivables to immediate cash",
	domain.CategoryPurchaseOrderFinancing: "Fund supplier orders before customers pay",
	domain.CategoryAssetBasedLending:      "Borrow against business assets",
	domain.CategorySBALoan:                "Government-backed financing with longer terms",
}

var countryNames = map[domain.Country]string{
	domain.CountryCA: "Canada",
	domain.CountryUS: "United States",
}

// RecommendationEngine ranks products against an applicant's funding profile.
// Recommend is pure; the engine holds no mutable state.
type RecommendationEngine struct {
	logger *zap.Logger
}

// NewRecommendationEngine creates a new recommendation engine
func NewRecommendationEngine(logger *zap.Logger) *RecommendationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecommendationEngine{logger: logger}
}

// Recommend filters and scores products for filters. It fails on the first
// structurally invalid product; the normalizer is expected to have removed
// those already.
func (e *RecommendationEngine) Recommend(products []domain.Product, filters domain.RecommendationFilters) ([]domain.ProductRecommendation, error) {
	start := time.Now()
	defer func() { metrics.RecommendationDuration.Observe(time.Since(start).Seconds()) }()

	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}
	for i, p := range products {
		if err := checkProduct(i, p); err != nil {
			e.logger.Error("Invalid product reached recommendation engine", zap.Error(err))
			return nil, err
		}
	}

	results := make([]domain.ProductRecommendation, 0)
	for _, p := range products {
		if !passesHardFilters(p, filters) {
			continue
		}
		score, reasons := scoreProduct(p, filters)
		results = append(results, domain.ProductRecommendation{
			Product:             p,
			MatchScore:          score,
			MatchReasons:        reasons,
			RecommendationLevel: levelFor(score),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchScore > results[j].MatchScore
	})

	e.logger.Debug("Scored catalog",
		zap.Int("products", len(products)),
		zap.Int("matches", len(results)),
		zap.String("country", string(filters.Country)),
		zap.String("looking_for", string(filters.LookingFor)))

	return results, nil
}

// ProductsByCategory groups active products by category
func (e *RecommendationEngine) ProductsByCategory(products []domain.Product) map[domain.Category][]domain.Product {
	groups := make(map[domain.Category][]domain.Product)
	for _, p := range products {
		if p.Active {
			groups[p.Category] = append(groups[p.Category], p)
		}
	}
	return groups
}

// AvailableCategories lists the categories with at least one active product
// in country, in enum order.
func (e *RecommendationEngine) AvailableCategories(products []domain.Product, country domain.Country) []domain.Category {
	present := make(map[domain.Category]bool)
	for _, p := range products {
		if p.Active && p.Country == country {
			present[p.Category] = true
		}
	}

	categories := make([]domain.Category, 0, len(present))
	for _, c := range domain.Categories {
		if present[c] {
			categories = append(categories, c)
		}
	}
	return categories
}

// ValidateFilters rejects unknown enum values and non-positive amounts
func ValidateFilters(f domain.RecommendationFilters) error {
	if !f.Country.Valid() {
		return fmt.Errorf("%w: country must be CA or US, got %q", domain.ErrInvalidRequest, f.Country)
	}
	if !f.LookingFor.Valid() {
		return fmt.Errorf("%w: lookingFor must be capital, equipment or both, got %q", domain.ErrInvalidRequest, f.LookingFor)
	}
	if math.IsNaN(f.FundingAmount) || math.IsInf(f.FundingAmount, 0) || f.FundingAmount <= 0 {
		return fmt.Errorf("%w: fundingAmount must be a positive number", domain.ErrInvalidRequest)
	}
	if f.AccountsReceivableBalance != nil && *f.AccountsReceivableBalance < 0 {
		return fmt.Errorf("%w: accountsReceivableBalance must not be negative", domain.ErrInvalidRequest)
	}
	return nil
}

func checkProduct(index int, p domain.Product) error {
	switch {
	case !p.Category.Valid():
		return &domain.InvalidProductError{Index: index, Name: p.Name, Reason: fmt.Sprintf("invalid category %q", p.Category)}
	case !p.Country.Valid():
		return &domain.InvalidProductError{Index: index, Name: p.Name, Reason: fmt.Sprintf("invalid country %q", p.Country)}
	case math.IsNaN(p.MinAmount) || math.IsInf(p.MinAmount, 0):
		return &domain.InvalidProductError{Index: index, Name: p.Name, Reason: "min_amount is not a number"}
	case math.IsNaN(p.MaxAmount) || math.IsInf(p.MaxAmount, 0):
		return &domain.InvalidProductError{Index: index, Name: p.Name, Reason: "max_amount is not a number"}
	}
	return nil
}

func passesHardFilters(p domain.Product, f domain.RecommendationFilters) bool {
	if !p.Active || p.Country != f.Country {
		return false
	}
	if f.FundingAmount < p.MinAmount || f.FundingAmount > p.MaxAmount {
		return false
	}

	switch f.LookingFor {
	case domain.LookingForCapital:
		return capitalCategories[p.Category]
	case domain.LookingForEquipment:
		return equipmentCategories[p.Category]
	default:
		return capitalCategories[p.Category] || equipmentCategories[p.Category]
	}
}

func scoreProduct(p domain.Product, f domain.RecommendationFilters) (float64, []string) {
	score := categoryWeights[p.Category][f.LookingFor]
	score += amountFitScore(f.FundingAmount, p.MinAmount)

	reasons := []string{
		"Available in " + countryNames[p.Country],
		fmt.Sprintf("Supports $%s funding range", FormatAmount(f.FundingAmount)),
	}
	if phrase, ok := categoryPhrases[p.Category]; ok {
		reasons = append(reasons, phrase)
	}

	if p.MinRevenue == nil || f.FundingAmount*impliedRevenueFactor >= *p.MinRevenue {
		score += revenueFitBonus
		reasons = append(reasons, "Revenue requirements likely met")
	}

	if p.Category == domain.CategoryInvoiceFactoring && f.AccountsReceivableBalance != nil && *f.AccountsReceivableBalance > 0 {
		score += receivablesBonus
		reasons = append(reasons, "Outstanding receivables qualify for factoring")
	}
	if p.Category == domain.CategoryPurchaseOrderFinancing && strings.EqualFold(f.FundsPurpose, "inventory") {
		score += inventoryPurposeBonus
		reasons = append(reasons, "Suited to inventory purchases")
	}

	return math.Max(0, math.Min(maxScore, score)), reasons
}

// amountFitScore favours products whose minimum sits close to the request
func amountFitScore(amount, minAmount float64) float64 {
	ratio := math.Inf(1)
	if minAmount > 0 {
		ratio = amount / minAmount
	}
	switch {
	case ratio >= 1 && ratio <= 2:
		return 20
	case ratio > 2 && ratio <= 5:
		return 15
	case ratio > 5:
		return 10
	default:
		return 5
	}
}

func levelFor(score float64) domain.RecommendationLevel {
	switch {
	case score >= excellentThreshold:
		return domain.LevelExcellent
	case score >= goodThreshold:
		return domain.LevelGood
	default:
		return domain.LevelFair
	}
}

// FormatAmount renders 1234567.5 as "1,234,568"
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(math.Round(v), 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
