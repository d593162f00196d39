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

const extensionSystemPrompt = `Tu es l'Intelligence Commerciale de Digityx Studios, une agence experte en développement Fullstack et IA.
Ton rôle est d'analyser les données historiques d'un client pour détecter des opportunités de vente additionnelle (upsell) ou croisée (cross-sell).

### RÈGLES D'ANALYSE :
1. ANALYSE TECHNIQUE : Si le client a une stack spécifique (ex: React), suggère des évolutions cohérentes (ex: migration Next.js 15, optimisation des Core Web Vitals).
2. ANALYSE IA : Identifie où l'IA pourrait automatiser leurs processus actuels mentionnés dans les notes.
3. CYCLE DE VIE : Si un projet est terminé depuis 6 mois, suggère une phase de maintenance ou une V2.
4. SATISFACTION : Ne suggère des opportunités que si la satisfaction est >= 7.

### RECOMMANDATIONS FINANCIÈRES :
- Sois réaliste. Ne suggère pas un projet à 50k€ pour un client qui a un CA total de 5k€.
- Les montants doivent être des estimations HT basées sur la complexité perçue.
- Fourchettes typiques : Formation (2-5k€), Audit (3-8k€), Feature (5-15k€), Refonte (15-40k€), Projet complet (20-80k€).

### FORMAT DE SORTIE :
Tu dois impérativement répondre au format JSON strict suivant :
{
  "opportunite": "Titre court et percutant",
  "montant_estime": nombre_entier,
  "justification": "Explique pourquoi cette offre est pertinente maintenant en 2 phrases max.",
  "confiance": nombre_entre_0_et_100
}

Si aucune opportunité n'est détectée avec un score de confiance > 60, renvoie : {"opportunite": null}`

// ExtensionOpportunities asks the model for upsell or cross-sell openings on
// satisfied clients with at least one completed project. At most one insight
// per client per calendar month.
func ExtensionOpportunities(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error) {
	log := logger.GetLogger()

	clients, err := db.ActiveClientsWithMinSatisfaction(userID, 7)
	if err != nil {
		return 0, fmt.Errorf("listing satisfied clients: %w", err)
	}

	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	created := 0
	for _, client := range clients {
		projects, err := db.ProjectsForClient(client.ID)
		if err != nil {
			return created, err
		}
		var completed []database.Project
		for _, p := range projects {
			if p.StatutProjet == database.ProjectCompleted {
				completed = append(completed, p)
			}
		}
		if len(completed) == 0 {
			continue
		}

		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryExtension,
			ClientID: &client.ID, CreatedAfter: &startOfMonth,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		interactions, err := db.RecentInteractions(client.ID, 3)
		if err != nil {
			return created, err
		}

		reply, err := provider.Generate(ctx, extensionSystemPrompt,
			extensionContext(client, completed, interactions), 600)
		if err != nil {
			log.Error("extension analysis failed",
				zap.String("client_id", client.ID), zap.Error(err))
			continue
		}

		result := llm.ParseJSONResponse(reply)
		if result == nil {
			continue
		}
		opportunity := getString(result, "opportunite")
		confidence := getInt(result, "confiance")
		if opportunity == "" || confidence < 70 {
			continue
		}

		amount := getFloat(result, "montant_estime")
		clientID := client.ID
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryExtension,
			ClientID:       &clientID,
			Titre:          opportunity,
			Description:    getString(result, "justification"),
			ScoreConfiance: confidence,
			ActionSuggeree: fmt.Sprintf("Proposer %s (~%s)", opportunity, euros(amount)),
			Metadata: map[string]any{
				"montant_estime": amount,
				"generated_at":   time.Now().UTC().Format(time.RFC3339),
			},
		}); err != nil {
			insertFailed(CategoryExtension, userID, err)
			continue
		}
		created++
	}
	return created, nil
}

func extensionContext(client database.Client, completed []database.Project, interactions []database.Interaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "DONNÉES DU CLIENT :\n")
	fmt.Fprintf(&b, "- Nom : %s\n", client.Nom)
	fmt.Fprintf(&b, "- CA Historique : %s\n", euros(client.CATotalGenere))
	fmt.Fprintf(&b, "- Satisfaction : %s/10\n", satisfactionOr(client.Satisfaction, "N/A"))
	fmt.Fprintf(&b, "- Dernier contact : %s\n\n", dateOrNA(client.DateDernierContact))

	b.WriteString("PROJETS RÉALISÉS :\n")
	for i, p := range completed {
		if i >= 5 {
			break
		}
		stack := "N/A"
		if len(p.StackTechnique) > 0 {
			stack = strings.Join(truncateSlice(p.StackTechnique, 5), ", ")
		}
		amount := 0.0
		if p.MontantHT != nil {
			amount = *p.MontantHT
		}
		fmt.Fprintf(&b, "- %s (Type: %s, Montant: %s, Stack: %s)\n",
			p.Nom, strOrNA(p.Type), euros(amount), stack)
	}

	ideas := "Aucune"
	if len(client.IdeesVente) > 0 {
		ideas = strings.Join(truncateSlice(client.IdeesVente, 5), ", ")
	}
	fmt.Fprintf(&b, "\nIDÉES DE VENTE NOTÉES : %s\n", ideas)

	var extensions []string
	for _, p := range completed {
		extensions = append(extensions, p.ExtensionsPossibles...)
	}
	extensionsText := "Aucune"
	if len(extensions) > 0 {
		extensionsText = strings.Join(truncateSlice(extensions, 5), ", ")
	}
	fmt.Fprintf(&b, "\nEXTENSIONS POSSIBLES NOTÉES :\n%s\n", extensionsText)

	notes := ""
	if client.Notes != nil {
		notes = *client.Notes
	}
	fmt.Fprintf(&b, "\nNOTES CLIENT (résumé) : %s\n", llm.Truncate(notes, 300))

	b.WriteString("\nDERNIERS ÉCHANGES :\n")
	if len(interactions) == 0 {
		b.WriteString("Aucun\n")
	}
	for _, i := range interactions {
		subject, notes := "", ""
		if i.Sujet != nil {
			subject = *i.Sujet
		}
		if i.Notes != nil {
			notes = *i.Notes
		}
		fmt.Fprintf(&b, "- %s: %s - %s\n", frDate(i.Date), llm.Truncate(subject, 50), llm.Truncate(notes, 100))
	}

	return b.String()
}

func truncateSlice(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}
