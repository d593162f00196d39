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

const churnSystemPrompt = `Tu es un Customer Success Manager expert en détection précoce des signaux de désengagement client.
Ton rôle est d'analyser les données d'un client pour détecter s'il y a un risque de churn (perte du client).

### SIGNAUX DE RISQUE À ANALYSER :
1. SATISFACTION : Baisse de satisfaction entre interactions récentes
2. FRÉQUENCE DE CONTACT : Diminution notable des échanges
3. RETARDS : Projets livrés en retard ou problèmes de qualité
4. PAIEMENTS : Factures en retard ou litiges
5. ENGAGEMENT : Absence de réponse aux emails, reports de réunions répétés
6. CONTRATS : Récurrents approchant de leur fin sans discussion de renouvellement

### FORMAT DE SORTIE :
{
  "risque_niveau": "Élevé" | "Moyen" | "Faible",
  "facteurs": ["facteur1", "facteur2", ...],
  "actions_recommandees": ["action1", "action2"],
  "confiance": nombre_entre_0_et_100
}

Si le client semble en bonne santé (pas de signaux d'alerte), renvoie : {"risque_niveau": "Faible", "confiance": 0}`

// ChurnRisk asks the model to rate each active client's disengagement risk
// from payment delays, project slippage, expiring contracts and the recent
// interaction trail. Low-risk verdicts are discarded. At most one insight per
// client per 14 days, regardless of status.
func ChurnRisk(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error) {
	log := logger.GetLogger()

	clients, err := db.ActiveClients(userID)
	if err != nil {
		return 0, fmt.Errorf("listing active clients: %w", err)
	}

	twoWeeksAgo := time.Now().AddDate(0, 0, -14)
	created := 0

	for _, client := range clients {
		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryChurnRisk,
			ClientID: &client.ID, CreatedAfter: &twoWeeksAgo,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		unpaidCount, err := db.CountOverdueLotEcheancesForClient(client.ID, time.Now().AddDate(0, 0, -30))
		if err != nil {
			return created, err
		}
		expiringCount, err := db.CountExpiringRecurrentsForClient(client.ID, time.Now().AddDate(0, 0, 60))
		if err != nil {
			return created, err
		}

		projects, err := db.ProjectsForClient(client.ID)
		if err != nil {
			return created, err
		}
		inProgress := 0
		for _, p := range projects {
			if p.StatutProjet == database.ProjectInProgress {
				inProgress++
			}
		}

		interactions, err := db.RecentInteractions(client.ID, 5)
		if err != nil {
			return created, err
		}

		reply, err := provider.Generate(ctx, churnSystemPrompt,
			churnContext(client, unpaidCount, inProgress, expiringCount, interactions), 400)
		if err != nil {
			log.Error("churn analysis failed",
				zap.String("client_id", client.ID), zap.Error(err))
			continue
		}

		result := llm.ParseJSONResponse(reply)
		if result == nil {
			continue
		}
		level := getString(result, "risque_niveau")
		confidence := getInt(result, "confiance")
		if level == "" || level == "Faible" || confidence < 65 {
			continue
		}

		factors := getStringSlice(result, "facteurs")
		actions := getStringSlice(result, "actions_recommandees")

		description := strings.Join(truncateSlice(factors, 3), ". ")
		action := "Planifier un appel de suivi"
		if len(actions) > 0 {
			action = actions[0]
		}

		clientID := client.ID
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryChurnRisk,
			ClientID:       &clientID,
			Titre:          fmt.Sprintf("Risque de churn %s: %s", level, client.Nom),
			Description:    description,
			ScoreConfiance: confidence,
			ActionSuggeree: action,
			Metadata: map[string]any{
				"risque_niveau":        level,
				"facteurs":             factors,
				"actions_recommandees": actions,
				"generated_at":         time.Now().UTC().Format(time.RFC3339),
			},
		}); err != nil {
			insertFailed(CategoryChurnRisk, userID, err)
			continue
		}
		created++
	}
	return created, nil
}

func churnContext(client database.Client, unpaidCount, delayedProjects, expiringContracts int, interactions []database.Interaction) string {
	var b strings.Builder

	daysSinceContact := "N/A"
	if client.DateDernierContact != nil {
		daysSinceContact = fmt.Sprintf("%d", daysSince(*client.DateDernierContact))
	}

	fmt.Fprintf(&b, "DONNÉES DU CLIENT :\n")
	fmt.Fprintf(&b, "- Nom : %s\n", client.Nom)
	fmt.Fprintf(&b, "- Satisfaction actuelle : %s/10\n", satisfactionOr(client.Satisfaction, "Non renseignée"))
	fmt.Fprintf(&b, "- CA total généré : %s\n", euros(client.CATotalGenere))
	fmt.Fprintf(&b, "- Dernier contact : %s\n", dateOrNA(client.DateDernierContact))
	fmt.Fprintf(&b, "- Jours depuis dernier contact : %s\n\n", daysSinceContact)

	b.WriteString("SIGNAUX POTENTIELS :\n")
	fmt.Fprintf(&b, "- Factures en retard de paiement : %d\n", unpaidCount)
	fmt.Fprintf(&b, "- Projets potentiellement en retard : %d\n", delayedProjects)
	fmt.Fprintf(&b, "- Contrats récurrents expirant dans 60 jours : %d\n\n", expiringContracts)

	b.WriteString("DERNIÈRES INTERACTIONS (satisfaction notée) :\n")
	if len(interactions) == 0 {
		b.WriteString("Aucune interaction récente\n")
	}
	for _, i := range interactions {
		subject, notes, satisfaction := "", "", ""
		if i.Sujet != nil {
			subject = *i.Sujet
		}
		if i.Notes != nil {
			notes = *i.Notes
		}
		if i.SatisfactionClient != nil {
			satisfaction = fmt.Sprintf("(Satisfaction: %d/10) ", *i.SatisfactionClient)
		}
		fmt.Fprintf(&b, "- %s: %s %s- %s\n", frDate(i.Date), llm.Truncate(subject, 50), satisfaction, llm.Truncate(notes, 100))
	}

	clientNotes := ""
	if client.Notes != nil {
		clientNotes = *client.Notes
	}
	fmt.Fprintf(&b, "\nNOTES CLIENT : %s\n", llm.Truncate(clientNotes, 200))

	return b.String()
}
