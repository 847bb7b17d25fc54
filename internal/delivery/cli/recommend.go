package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/usecase"
)

var (
	recommendCountry    string
	recommendAmount     float64
	recommendLookingFor string
	recommendAR         float64
	recommendPurpose    string
	recommendLimit      int
	recommendJSON       bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank lender products for a funding profile",
	Long: `Scores the local catalog against a funding profile and lists matching
products, best first. The catalog is loaded with the same fetch-window
policy as sync.`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().StringVarP(&recommendCountry, "country", "c", "", "market: US or CA")
	recommendCmd.Flags().Float64VarP(&recommendAmount, "amount", "a", 0, "funding amount in dollars")
	recommendCmd.Flags().StringVar(&recommendLookingFor, "looking-for", string(domain.LookingForBoth), "capital, equipment or both")
	recommendCmd.Flags().Float64Var(&recommendAR, "ar", 0, "accounts receivable balance")
	recommendCmd.Flags().StringVar(&recommendPurpose, "purpose", "", "funds purpose: inventory, expansion, equipment, working_capital, other")
	recommendCmd.Flags().IntVarP(&recommendLimit, "limit", "n", 0, "maximum number of results (0 for all)")
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "output results as JSON")
	_ = recommendCmd.MarkFlagRequired("country")
	_ = recommendCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	if catalogSync == nil || engine == nil {
		return errors.New("recommendation service not configured")
	}

	country, ok := domain.ParseCountry(recommendCountry)
	if !ok {
		return fmt.Errorf("unknown country %q", recommendCountry)
	}

	filters := domain.RecommendationFilters{
		Country:       country,
		FundingAmount: recommendAmount,
		LookingFor:    domain.LookingFor(strings.ToLower(recommendLookingFor)),
		FundsPurpose:  recommendPurpose,
	}
	if cmd.Flags().Changed("ar") {
		ar := recommendAR
		filters.AccountsReceivableBalance = &ar
	}
	if err := usecase.ValidateFilters(filters); err != nil {
		return err
	}

	result, err := catalogSync.Load(commandContext(cmd), false)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	recommendations, err := engine.Recommend(result.Products, filters)
	if err != nil {
		return fmt.Errorf("recommendation failed: %w", err)
	}
	if recommendLimit > 0 && len(recommendations) > recommendLimit {
		recommendations = recommendations[:recommendLimit]
	}

	if recommendJSON {
		return outputRecommendJSON(cmd, recommendations)
	}
	outputRecommendTable(cmd, recommendations, filters, result.Products)
	return nil
}

func outputRecommendJSON(cmd *cobra.Command, recommendations []domain.ProductRecommendation) error {
	data, err := json.MarshalIndent(recommendations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputRecommendTable(cmd *cobra.Command, recommendations []domain.ProductRecommendation, filters domain.RecommendationFilters, catalog []domain.Product) {
	st := newStyler(cmd.OutOrStdout())

	if len(recommendations) == 0 {
		cmd.Println("No matching products.")
		if categories := engine.AvailableCategories(catalog, filters.Country); len(categories) > 0 {
			local := make([]domain.Product, 0, len(catalog))
			for _, p := range catalog {
				if p.Country == filters.Country {
					local = append(local, p)
				}
			}
			groups := engine.ProductsByCategory(local)
			names := make([]string, len(categories))
			for i, c := range categories {
				names[i] = fmt.Sprintf("%s (%d)", c, len(groups[c]))
			}
			cmd.Println(st.render(mutedStyle, "Categories offered in "+string(filters.Country)+": "+strings.Join(names, ", ")))
		}
		return
	}

	cmd.Println(st.render(titleStyle, fmt.Sprintf("%d matches for $%s in %s", len(recommendations), usecase.FormatAmount(filters.FundingAmount), filters.Country)))
	cmd.Println()
	for i, r := range recommendations {
		p := r.Product
		level := string(r.RecommendationLevel)
		cmd.Printf("  [%d] %s - %s  %s\n", i+1, p.Name, p.LenderName,
			st.render(levelStyle(level), fmt.Sprintf("%.0f %s", r.MatchScore, level)))
		cmd.Println(st.render(mutedStyle, fmt.Sprintf("      %s, $%s - $%s", p.Category, usecase.FormatAmount(p.MinAmount), usecase.FormatAmount(p.MaxAmount))))
		for _, reason := range r.MatchReasons {
			cmd.Println("      - " + st.wrap(reason, 8))
		}
		cmd.Println()
	}
}
