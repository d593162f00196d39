package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/llm"
	"github.com/digityx/insightd/internal/logger"
)

const processSystemPrompt = `Tu es un Operations Analyst spécialisé dans les agences digitales.
Ton rôle est d'analyser les données de PLUSIEURS projets pour identifier des patterns récurrents (problèmes, retards, opportunités d'amélioration).

### PATTERNS À DÉTECTER :
1. RETARDS RÉCURRENTS : Certains types de projets dépassent systématiquement
2. ESTIMATIONS SOUS-ÉVALUÉES : Écarts fréquents entre prévu et réel
3. POINTS DE FRICTION : Étapes qui causent souvent des problèmes
4. GAPS DE COMPÉTENCES : Technologies qui posent problème
5. OPPORTUNITÉS MANQUÉES : Idées d'amélioration qui reviennent souvent

### FORMAT DE SORTIE :
{
  "pattern_detecte": true | false,
  "pattern_identifie": "Description courte du pattern",
  "cause_probable": "Hypothèse sur la cause",
  "recommandation": "Action concrète à mettre en place",
  "impact_estime": "Description de l'impact attendu",
  "confiance": nombre_entre_0_et_100
}

Si aucun pattern significatif n'est détecté, renvoie : {"pattern_detecte": false, "confiance": 0}`

// minProjectsForProcess is the sample size below which a cross-project
// pattern analysis is not meaningful.
const minProjectsForProcess = 5

// ProcessImprovement runs one tenant-level cross-project analysis looking for
// recurring delays, under-estimation and skill gaps. Requires at least five
// completed projects; at most one insight per month.
func ProcessImprovement(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error) {
	monthAgo := time.Now().AddDate(0, -1, 0)
	exists, err := db.HasMatchingInsight(database.InsightFilter{
		UserID: userID, Type: CategoryProcessImprovement,
		CreatedAfter: &monthAgo,
	})
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	projects, err := db.CompletedProjects(userID, 20)
	if err != nil {
		return 0, fmt.Errorf("listing completed projects: %w", err)
	}
	if len(projects) < minProjectsForProcess {
		return 0, nil
	}

	ideas, err := db.Ideas(userID, 50)
	if err != nil {
		return 0, err
	}

	reply, err := provider.Generate(ctx, processSystemPrompt,
		processContext(projects, ideas), 500)
	if err != nil {
		logger.GetLogger().Error("process analysis failed",
			zap.String("user_id", userID), zap.Error(err))
		return 0, nil
	}

	result := llm.ParseJSONResponse(reply)
	if result == nil {
		return 0, nil
	}
	confidence := getInt(result, "confiance")
	if !getBool(result, "pattern_detecte") || confidence < 70 {
		return 0, nil
	}

	pattern := getString(result, "pattern_identifie")
	cause := getString(result, "cause_probable")
	recommendation := getString(result, "recommandation")

	if _, err := db.InsertInsight(&database.Insight{
		UserID:         userID,
		Type:           CategoryProcessImprovement,
		Titre:          fmt.Sprintf("Process: %s", llm.Truncate(pattern, 60)),
		Description:    fmt.Sprintf("%s. %s", cause, recommendation),
		ScoreConfiance: confidence,
		ActionSuggeree: recommendation,
		Metadata: map[string]any{
			"pattern_identifie": pattern,
			"cause_probable":    cause,
			"impact_estime":     getString(result, "impact_estime"),
			"projects_analyzed": len(projects),
			"generated_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		insertFailed(CategoryProcessImprovement, userID, err)
		return 0, nil
	}
	return 1, nil
}

type delayStats struct {
	count  int
	delays []int
}

func processContext(projects []database.Project, ideas []database.Idea) string {
	var b strings.Builder

	byType := make(map[string]*delayStats)
	var typeOrder []string
	stackSet := make(map[string]bool)
	var stacks []string

	for _, p := range projects {
		projectType := "Autre"
		if p.Type != nil && *p.Type != "" {
			projectType = *p.Type
		}
		stats, ok := byType[projectType]
		if !ok {
			stats = &delayStats{}
			byType[projectType] = stats
			typeOrder = append(typeOrder, projectType)
		}
		stats.count++

		if p.DateFinPrevue != nil && p.DateFinReelle != nil {
			delay := int(p.DateFinReelle.Sub(*p.DateFinPrevue).Hours() / 24)
			if delay > 0 {
				stats.delays = append(stats.delays, delay)
			}
		}

		for _, tech := range p.StackTechnique {
			if !stackSet[tech] && len(stacks) < 10 {
				stackSet[tech] = true
				stacks = append(stacks, tech)
			}
		}
	}

	fmt.Fprintf(&b, "ANALYSE DE %d PROJETS TERMINÉS :\n\n", len(projects))

	b.WriteString("RETARDS PAR TYPE DE PROJET :\n")
	for _, projectType := range typeOrder {
		stats := byType[projectType]
		avg := 0
		if len(stats.delays) > 0 {
			sum := 0
			for _, d := range stats.delays {
				sum += d
			}
			avg = sum / len(stats.delays)
		}
		fmt.Fprintf(&b, "- %s: %d projets, %d en retard (moyenne: %dj)\n",
			projectType, stats.count, len(stats.delays), avg)
	}

	fmt.Fprintf(&b, "\nSTACKS TECHNIQUES UTILISÉES :\n%s\n", strings.Join(stacks, ", "))

	categoryCounts := make(map[string]int)
	for _, idea := range ideas {
		category := "Autre"
		if idea.Categorie != nil && *idea.Categorie != "" {
			category = *idea.Categorie
		}
		categoryCounts[category]++
	}
	type categoryCount struct {
		name  string
		count int
	}
	var categories []categoryCount
	for name, count := range categoryCounts {
		categories = append(categories, categoryCount{name, count})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].count != categories[j].count {
			return categories[i].count > categories[j].count
		}
		return categories[i].name < categories[j].name
	})

	b.WriteString("\nCATÉGORIES D'IDÉES D'AMÉLIORATION LES PLUS FRÉQUENTES :\n")
	for i, c := range categories {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s: %d idées\n", c.name, c.count)
	}

	return b.String()
}
