package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/llm"
	"github.com/digityx/insightd/internal/logger"
)

const contentSystemPrompt = `Tu es un Content Marketing Strategist pour une agence de développement web et IA.
Ton rôle est d'identifier les projets réussis qui pourraient être transformés en contenu marketing (case study, article technique, post LinkedIn).

### CRITÈRES DE SÉLECTION :
1. Projet terminé avec succès (satisfaction >= 8)
2. Défi technique intéressant résolu
3. Stack ou technologie tendance (Next.js, IA, etc.)
4. Résultats mesurables (performance, ROI)
5. Client qui accepterait probablement d'être cité

### TYPES DE CONTENU :
- "Case Study" : Pour projets complets avec résultats business
- "Article Technique" : Pour défis techniques innovants
- "Post LinkedIn" : Pour quick wins ou tendances
- "Video Demo" : Pour projets très visuels (sites, apps)

### FORMAT DE SORTIE :
{
  "pertinent": true | false,
  "type_contenu": "Case Study" | "Article Technique" | "Post LinkedIn" | "Video Demo",
  "sujet_suggere": "Titre accrocheur pour le contenu",
  "points_cles": ["point1", "point2", "point3"],
  "potentiel_lead_gen": "Élevé" | "Moyen" | "Faible",
  "confiance": nombre_entre_0_et_100
}

Si le projet n'est pas adapté pour du contenu, renvoie : {"pertinent": false, "confiance": 0}`

// ContentStrategy asks the model which recently completed, high-satisfaction
// projects deserve a marketing piece. One insight per project, ever.
func ContentStrategy(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error) {
	log := logger.GetLogger()

	projects, err := db.CompletedProjectsSince(userID, time.Now().AddDate(0, 0, -60))
	if err != nil {
		return 0, fmt.Errorf("listing recently completed projects: %w", err)
	}

	created := 0
	for _, project := range projects {
		client, err := db.GetClient(project.ClientID)
		if err != nil {
			return created, err
		}
		if client == nil || client.Satisfaction == nil || *client.Satisfaction < 8 {
			continue
		}

		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryContentStrategy,
			ProjectID: &project.ID,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		reply, err := provider.Generate(ctx, contentSystemPrompt,
			contentContext(project, client), 400)
		if err != nil {
			log.Error("content strategy analysis failed",
				zap.String("project_id", project.ID), zap.Error(err))
			continue
		}

		result := llm.ParseJSONResponse(reply)
		if result == nil {
			continue
		}
		confidence := getInt(result, "confiance")
		if !getBool(result, "pertinent") || confidence < 70 {
			continue
		}

		contentType := getString(result, "type_contenu")
		subject := getString(result, "sujet_suggere")
		keyPoints := getStringSlice(result, "points_cles")

		clientID := project.ClientID
		projectID := project.ID
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryContentStrategy,
			ClientID:       &clientID,
			ProjectID:      &projectID,
			Titre:          fmt.Sprintf("%s: %s", contentType, subject),
			Description:    strings.Join(keyPoints, ". "),
			ScoreConfiance: confidence,
			ActionSuggeree: fmt.Sprintf("Créer un %s sur %q", contentType, subject),
			Metadata: map[string]any{
				"type_contenu":       contentType,
				"sujet_suggere":      subject,
				"points_cles":        keyPoints,
				"potentiel_lead_gen": getString(result, "potentiel_lead_gen"),
				"generated_at":       time.Now().UTC().Format(time.RFC3339),
			},
		}); err != nil {
			insertFailed(CategoryContentStrategy, userID, err)
			continue
		}
		created++
	}
	return created, nil
}

func contentContext(project database.Project, client *database.Client) string {
	var b strings.Builder

	amount := 0.0
	if project.MontantHT != nil {
		amount = *project.MontantHT
	}
	stack := "N/A"
	if len(project.StackTechnique) > 0 {
		stack = strings.Join(project.StackTechnique, ", ")
	}

	fmt.Fprintf(&b, "PROJET : %s\n", project.Nom)
	fmt.Fprintf(&b, "- Type : %s\n", strOrNA(project.Type))
	fmt.Fprintf(&b, "- Stack technique : %s\n", stack)
	fmt.Fprintf(&b, "- Montant : %s\n", euros(amount))
	fmt.Fprintf(&b, "- Satisfaction client : %d/10\n\n", *client.Satisfaction)

	fmt.Fprintf(&b, "CLIENT : %s\n", client.Nom)
	fmt.Fprintf(&b, "- Source d'acquisition : %s\n\n", strOrNA(client.SourceAcquisition))

	extensions := "Aucune"
	if len(project.ExtensionsPossibles) > 0 {
		extensions = strings.Join(project.ExtensionsPossibles, ", ")
	}
	fmt.Fprintf(&b, "EXTENSIONS RÉALISÉES : %s\n\n", extensions)

	doc := ""
	if project.DocumentationMD != nil {
		doc = *project.DocumentationMD
	}
	fmt.Fprintf(&b, "DOCUMENTATION PROJET (résumé) : %s\n", llm.Truncate(doc, 500))

	return b.String()
}
