// Package detect holds the insight detectors. Each detector scans one
// tenant's data for one category of actionable signal and inserts
// de-duplicated insight records. Four detectors are pure rules; six build a
// context from the tenant's data and ask an LLM for a structured verdict.
package detect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/llm"
	"github.com/digityx/insightd/internal/logger"
)

// Insight category tags, stored verbatim on each record.
const (
	CategoryForgottenContact     = "Contact oublié"
	CategoryRecommendationMoment = "Moment recommandation"
	CategoryExtension            = "Opportunité extension"
	CategoryUnpaidInvoice        = "Facture impayée"
	CategoryLowPipeline          = "Pipeline faible"
	CategoryChurnRisk            = "Risque churn"
	CategoryUpsellTiming         = "Timing upsell"
	CategoryContentStrategy      = "Stratégie contenu"
	CategoryProcessImprovement   = "Amélioration process"
	CategoryPricingOptimization  = "Optimisation pricing"
)

// Detector scans one tenant for one insight category. Run returns the number
// of insights created. Rule-based detectors ignore the provider.
type Detector struct {
	Category string
	// StatsKey is the field name under which the batch run reports this
	// detector's count.
	StatsKey string
	NeedsLLM bool
	Run      func(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error)
}

// All returns the detectors in execution order: rules first, then the
// LLM-backed ones.
func All() []Detector {
	return []Detector{
		{Category: CategoryForgottenContact, StatsKey: "forgotten_contacts",
			Run: func(_ context.Context, db *database.DB, _ llm.Provider, userID string) (int, error) {
				return ForgottenContacts(db, userID)
			}},
		{Category: CategoryRecommendationMoment, StatsKey: "recommendation_moments",
			Run: func(_ context.Context, db *database.DB, _ llm.Provider, userID string) (int, error) {
				return RecommendationMoments(db, userID)
			}},
		{Category: CategoryUnpaidInvoice, StatsKey: "unpaid_invoices",
			Run: func(_ context.Context, db *database.DB, _ llm.Provider, userID string) (int, error) {
				return UnpaidInvoices(db, userID)
			}},
		{Category: CategoryLowPipeline, StatsKey: "low_pipeline",
			Run: func(_ context.Context, db *database.DB, _ llm.Provider, userID string) (int, error) {
				return LowPipeline(db, userID)
			}},
		{Category: CategoryExtension, StatsKey: "extension_opportunities", NeedsLLM: true, Run: ExtensionOpportunities},
		{Category: CategoryChurnRisk, StatsKey: "churn_risk", NeedsLLM: true, Run: ChurnRisk},
		{Category: CategoryUpsellTiming, StatsKey: "upsell_timing", NeedsLLM: true, Run: UpsellTiming},
		{Category: CategoryContentStrategy, StatsKey: "content_strategy", NeedsLLM: true, Run: ContentStrategy},
		{Category: CategoryProcessImprovement, StatsKey: "process_improvement", NeedsLLM: true, Run: ProcessImprovement},
		{Category: CategoryPricingOptimization, StatsKey: "pricing_optimization", NeedsLLM: true, Run: PricingOptimization},
	}
}

// insertFailed logs a failed insight insert. Detectors skip the record and
// keep scanning the tenant; a bad row never ends the run early and is not
// counted.
func insertFailed(category, userID string, err error) {
	logger.GetLogger().Warn("insight insert failed",
		zap.String("category", category),
		zap.String("user_id", userID),
		zap.Error(err))
}

func daysSince(t time.Time) int {
	return int(time.Since(t).Hours() / 24)
}

// frDate renders a date the way the insight texts expect it (dd/mm/yyyy).
func frDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func euros(v float64) string {
	return fmt.Sprintf("%.0f€", v)
}

// Helpers for reading the loosely-typed maps ParseJSONResponse returns.

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func getStringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strOrNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func dateOrNA(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return frDate(*t)
}

func satisfactionOr(sat *int, fallback string) string {
	if sat == nil {
		return fallback
	}
	return fmt.Sprintf("%d", *sat)
}
