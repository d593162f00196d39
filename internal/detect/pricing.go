package detect

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/llm"
	"github.com/digityx/insightd/internal/logger"
)

const pricingSystemPrompt = `Tu es un Business Analyst spécialisé dans le pricing des services digitaux.
Ton rôle est d'analyser les données de facturation pour détecter des anomalies ou opportunités d'optimisation tarifaire.

### ANALYSES À EFFECTUER :
1. SOUS-TARIFICATION : Types de projets facturés sous le marché
2. INCOHÉRENCES : Écarts de prix importants pour des projets similaires
3. MARGE EN BAISSE : Projets de plus en plus complexes au même prix
4. OPPORTUNITÉS : Services à forte valeur ajoutée mal valorisés
5. MRR : Contrats récurrents sous-évalués par rapport à la valeur fournie

### BENCHMARKS MARCHÉ (TJM agence digitale France) :
- Développement junior : 350-450€
- Développement senior : 500-700€
- Architecture/Lead : 700-1000€
- Conseil/Stratégie : 800-1200€

### FORMAT DE SORTIE :
{
  "anomalie_detectee": true | false,
  "type_anomalie": "Sous-tarification" | "Incohérence" | "Opportunité",
  "analyse": "Description de l'observation",
  "recommandation": "Action suggérée",
  "impact_estime": "Gain potentiel estimé",
  "confiance": nombre_entre_0_et_100
}

Si aucune anomalie significative, renvoie : {"anomalie_detectee": false, "confiance": 0}`

// minProjectsForPricing is the sample size below which per-type pricing
// statistics are noise.
const minProjectsForPricing = 10

// PricingOptimization runs one tenant-level billing analysis over completed
// projects and active recurring contracts. Requires at least ten completed
// projects; at most one insight per quarter.
func PricingOptimization(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error) {
	quarterAgo := time.Now().AddDate(0, -3, 0)
	exists, err := db.HasMatchingInsight(database.InsightFilter{
		UserID: userID, Type: CategoryPricingOptimization,
		CreatedAfter: &quarterAgo,
	})
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	projects, err := db.CompletedProjects(userID, 30)
	if err != nil {
		return 0, fmt.Errorf("listing completed projects: %w", err)
	}
	if len(projects) < minProjectsForPricing {
		return 0, nil
	}

	recurrents, err := db.ActiveRecurrents(userID)
	if err != nil {
		return 0, err
	}
	mrr := monthlyRecurringRevenue(recurrents)

	reply, err := provider.Generate(ctx, pricingSystemPrompt,
		pricingContext(projects, recurrents, mrr), 500)
	if err != nil {
		logger.GetLogger().Error("pricing analysis failed",
			zap.String("user_id", userID), zap.Error(err))
		return 0, nil
	}

	result := llm.ParseJSONResponse(reply)
	if result == nil {
		return 0, nil
	}
	confidence := getInt(result, "confiance")
	if !getBool(result, "anomalie_detectee") || confidence < 65 {
		return 0, nil
	}

	anomalyType := getString(result, "type_anomalie")
	if _, err := db.InsertInsight(&database.Insight{
		UserID:         userID,
		Type:           CategoryPricingOptimization,
		Titre:          fmt.Sprintf("Pricing: %s", anomalyType),
		Description:    getString(result, "analyse"),
		ScoreConfiance: confidence,
		ActionSuggeree: getString(result, "recommandation"),
		Metadata: map[string]any{
			"type_anomalie":     anomalyType,
			"impact_estime":     getString(result, "impact_estime"),
			"mrr_actuel":        int(math.Round(mrr)),
			"projects_analyzed": len(projects),
			"generated_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		insertFailed(CategoryPricingOptimization, userID, err)
		return 0, nil
	}
	return 1, nil
}

// monthlyRecurringRevenue normalizes recurring contract amounts to a monthly
// figure.
func monthlyRecurringRevenue(recurrents []database.Recurrent) float64 {
	mrr := 0.0
	for _, r := range recurrents {
		switch r.Frequence {
		case database.FreqMonthly:
			mrr += r.MontantHT
		case database.FreqQuarterly:
			mrr += r.MontantHT / 3
		default:
			mrr += r.MontantHT / 12
		}
	}
	return mrr
}

type pricingStats struct {
	count    int
	montants []float64
}

func pricingContext(projects []database.Project, recurrents []database.Recurrent, mrr float64) string {
	var b strings.Builder

	byType := make(map[string]*pricingStats)
	var typeOrder []string
	for _, p := range projects {
		projectType := "Autre"
		if p.Type != nil && *p.Type != "" {
			projectType = *p.Type
		}
		stats, ok := byType[projectType]
		if !ok {
			stats = &pricingStats{}
			byType[projectType] = stats
			typeOrder = append(typeOrder, projectType)
		}
		stats.count++
		if p.MontantHT != nil {
			stats.montants = append(stats.montants, *p.MontantHT)
		}
	}

	fmt.Fprintf(&b, "ANALYSE PRICING DE %d PROJETS :\n\n", len(projects))

	b.WriteString("MONTANTS PAR TYPE DE PROJET :\n")
	for _, projectType := range typeOrder {
		stats := byType[projectType]
		avg, min, max := 0.0, 0.0, 0.0
		if len(stats.montants) > 0 {
			min, max = stats.montants[0], stats.montants[0]
			sum := 0.0
			for _, m := range stats.montants {
				sum += m
				if m < min {
					min = m
				}
				if m > max {
					max = m
				}
			}
			avg = sum / float64(len(stats.montants))
		}
		fmt.Fprintf(&b, "- %s: %d projets, moyenne %s, range %s-%s\n",
			projectType, stats.count, euros(math.Round(avg)), euros(min), euros(max))
	}

	fmt.Fprintf(&b, "\nMRR ACTUEL : %s/mois (%d contrats actifs)\n\n",
		euros(math.Round(mrr)), len(recurrents))

	b.WriteString("RÉPARTITION RÉCURRENTS :\n")
	for i, r := range recurrents {
		if i >= 5 {
			break
		}
		unit := "an"
		switch r.Frequence {
		case database.FreqMonthly:
			unit = "mois"
		case database.FreqQuarterly:
			unit = "trim"
		}
		fmt.Fprintf(&b, "- %s/%s\n", euros(r.MontantHT), unit)
	}

	return b.String()
}
