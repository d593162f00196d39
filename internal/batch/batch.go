// Package batch orchestrates one detection run: it enumerates tenants and
// executes every detector against each one, accumulating per-category counts.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/detect"
	"github.com/digityx/insightd/internal/llm"
	"github.com/digityx/insightd/internal/logger"
	"github.com/digityx/insightd/internal/metrics"
)

// Stats holds the per-category insight counts of one run. Field names are the
// wire format of the trigger endpoint's response.
type Stats struct {
	UsersProcessed         int `json:"users_processed"`
	ForgottenContacts      int `json:"forgotten_contacts"`
	RecommendationMoments  int `json:"recommendation_moments"`
	ExtensionOpportunities int `json:"extension_opportunities"`
	UnpaidInvoices         int `json:"unpaid_invoices"`
	LowPipeline            int `json:"low_pipeline"`
	ChurnRisk              int `json:"churn_risk"`
	UpsellTiming           int `json:"upsell_timing"`
	ContentStrategy        int `json:"content_strategy"`
	ProcessImprovement     int `json:"process_improvement"`
	PricingOptimization    int `json:"pricing_optimization"`
}

// Total returns the number of insights created across all categories.
func (s *Stats) Total() int {
	return s.ForgottenContacts + s.RecommendationMoments + s.ExtensionOpportunities +
		s.UnpaidInvoices + s.LowPipeline + s.ChurnRisk + s.UpsellTiming +
		s.ContentStrategy + s.ProcessImprovement + s.PricingOptimization
}

func (s *Stats) add(statsKey string, n int) {
	switch statsKey {
	case "forgotten_contacts":
		s.ForgottenContacts += n
	case "recommendation_moments":
		s.RecommendationMoments += n
	case "extension_opportunities":
		s.ExtensionOpportunities += n
	case "unpaid_invoices":
		s.UnpaidInvoices += n
	case "low_pipeline":
		s.LowPipeline += n
	case "churn_risk":
		s.ChurnRisk += n
	case "upsell_timing":
		s.UpsellTiming += n
	case "content_strategy":
		s.ContentStrategy += n
	case "process_improvement":
		s.ProcessImprovement += n
	case "pricing_optimization":
		s.PricingOptimization += n
	}
}

// Runner executes detection runs. A nil provider is allowed only when callers
// have already checked it; Run refuses to start without one since six
// detectors depend on it.
type Runner struct {
	db       *database.DB
	provider llm.Provider
}

// NewRunner creates a batch runner.
func NewRunner(db *database.DB, provider llm.Provider) *Runner {
	return &Runner{db: db, provider: provider}
}

// Run executes all detectors for every tenant that owns at least one active
// client. A detector failing for one tenant is logged and counted as zero;
// it never aborts the run.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	if r.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	tenants, err := r.db.ListTenants()
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}

	start := time.Now()
	stats := &Stats{}
	for _, userID := range tenants {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		r.runTenant(ctx, userID, stats)
		stats.UsersProcessed++
	}

	metrics.ObserveBatch(start, stats.UsersProcessed)
	logger.GetLogger().Info("insight generation completed",
		zap.Int("users_processed", stats.UsersProcessed),
		zap.Int("insights_created", stats.Total()),
		zap.Duration("duration", time.Since(start)))
	return stats, nil
}

// RunForTenant executes all detectors for a single tenant.
func (r *Runner) RunForTenant(ctx context.Context, userID string) (*Stats, error) {
	if r.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	start := time.Now()
	stats := &Stats{}
	r.runTenant(ctx, userID, stats)
	stats.UsersProcessed = 1

	metrics.ObserveBatch(start, 1)
	logger.GetLogger().Info("insight generation completed",
		zap.String("user_id", userID),
		zap.Int("insights_created", stats.Total()),
		zap.Duration("duration", time.Since(start)))
	return stats, nil
}

func (r *Runner) runTenant(ctx context.Context, userID string, stats *Stats) {
	log := logger.GetLogger()
	for _, detector := range detect.All() {
		created, err := detector.Run(ctx, r.db, r.provider, userID)
		if err != nil {
			log.Error("detector failed",
				zap.String("category", detector.Category),
				zap.String("user_id", userID),
				zap.Error(err))
			metrics.RecordDetectorError(detector.Category)
		}
		if created > 0 {
			stats.add(detector.StatsKey, created)
			metrics.RecordInsights(detector.Category, created)
		}
	}
}
