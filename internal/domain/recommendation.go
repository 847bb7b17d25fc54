package domain

// LookingFor is the kind of financing an applicant is after
type LookingFor string

const (
	LookingForCapital   LookingFor = "capital"
	LookingForEquipment LookingFor = "equipment"
	LookingForBoth      LookingFor = "both"
)

// Valid reports whether l is a known value
func (l LookingFor) Valid() bool {
	return l == LookingForCapital || l == LookingForEquipment || l == LookingForBoth
}

// RecommendationLevel buckets a match score
type RecommendationLevel string

const (
	LevelExcellent RecommendationLevel = "excellent"
	LevelGood      RecommendationLevel = "good"
	LevelFair      RecommendationLevel = "fair"
)

// RecommendationFilters is the applicant's funding profile. It is never
// persisted.
type RecommendationFilters struct {
	Country                   Country    `json:"country" binding:"required"`
	FundingAmount             float64    `json:"fundingAmount" binding:"required"`
	LookingFor                LookingFor `json:"lookingFor" binding:"required"`
	AccountsReceivableBalance *float64   `json:"accountsReceivableBalance,omitempty"`
	FundsPurpose              string     `json:"fundsPurpose,omitempty"` // inventory, expansion, equipment, working_capital, other
}

// ProductRecommendation is one ranked result of a recommendation call
type ProductRecommendation struct {
	Product             Product             `json:"product"`
	MatchScore          float64             `json:"matchScore"` // 0-100
	MatchReasons        []string            `json:"matchReasons"`
	RecommendationLevel RecommendationLevel `json:"recommendationLevel"`
}
