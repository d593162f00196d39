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

const upsellSystemPrompt = `Tu es un expert en psychologie commerciale pour une agence digitale.
Ton rôle est de déterminer si c'est le BON MOMENT pour proposer une vente additionnelle à un client.

### INDICATEURS POSITIFS :
1. Projet récemment livré avec succès (satisfaction élevée)
2. Interaction positive récente (compliments, remerciements dans les notes)
3. Réunion de suivi prévue prochainement
4. Client en phase de croissance (nouveaux projets évoqués)
5. Des idées d'amélioration existent et attendent d'être proposées

### INDICATEURS NÉGATIFS (à éviter) :
1. Projet en cours avec problèmes
2. Réclamation récente ou insatisfaction
3. Dernière proposition commerciale il y a moins de 30 jours
4. Client en difficulté financière (retards de paiement)

### FORMAT DE SORTIE :
{
  "timing_optimal": true | false,
  "moment_suggere": "Cette semaine" | "Attendre 2 semaines" | "Attendre fin de projet",
  "raison": "Explication en 1-2 phrases",
  "canal_suggere": "Email" | "Appel" | "Réunion en personne",
  "idee_a_proposer": "Titre de l'idée si disponible",
  "confiance": nombre_entre_0_et_100
}

Si ce n'est pas le bon moment, renvoie : {"timing_optimal": false, "confiance": 0}`

// clientIdeas groups a client's pending ideas under one timing analysis.
type clientIdeas struct {
	client    *database.Client
	projectID string
	ideas     []database.PendingIdea
}

// UpsellTiming asks the model whether now is the right moment to pitch a
// client's pending ideas. One insight per client per 30 days.
func UpsellTiming(ctx context.Context, db *database.DB, provider llm.Provider, userID string) (int, error) {
	log := logger.GetLogger()

	pending, err := db.PendingIdeasWithClient(userID)
	if err != nil {
		return 0, fmt.Errorf("listing pending ideas: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Group ideas by client; the first idea's project carries the reference.
	grouped := make(map[string]*clientIdeas)
	var order []string
	for _, idea := range pending {
		group, ok := grouped[idea.ClientID]
		if !ok {
			client, err := db.GetClient(idea.ClientID)
			if err != nil {
				return 0, err
			}
			if client == nil {
				continue
			}
			group = &clientIdeas{client: client, projectID: idea.ProjectID}
			grouped[idea.ClientID] = group
			order = append(order, idea.ClientID)
		}
		group.ideas = append(group.ideas, idea)
	}

	monthAgo := time.Now().AddDate(0, -1, 0)
	created := 0

	for _, clientID := range order {
		group := grouped[clientID]
		client := group.client

		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryUpsellTiming,
			ClientID: &clientID, CreatedAfter: &monthAgo,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		interactions, err := db.RecentInteractions(clientID, 5)
		if err != nil {
			return created, err
		}
		deliveries, err := db.CountDeliveredLotsForClientSince(clientID, time.Now().AddDate(0, 0, -30))
		if err != nil {
			return created, err
		}

		reply, err := provider.Generate(ctx, upsellSystemPrompt,
			upsellContext(client, group.ideas, deliveries, interactions), 400)
		if err != nil {
			log.Error("upsell timing analysis failed",
				zap.String("client_id", clientID), zap.Error(err))
			continue
		}

		result := llm.ParseJSONResponse(reply)
		if result == nil {
			continue
		}
		confidence := getInt(result, "confiance")
		if !getBool(result, "timing_optimal") || confidence < 70 {
			continue
		}

		idea := getString(result, "idee_a_proposer")
		if idea == "" {
			idea = group.ideas[0].Titre
		}

		cid := clientID
		projectID := group.projectID
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryUpsellTiming,
			ClientID:       &cid,
			ProjectID:      &projectID,
			Titre:          fmt.Sprintf("Moment idéal pour proposer à %s", client.Nom),
			Description:    getString(result, "raison"),
			ScoreConfiance: confidence,
			ActionSuggeree: fmt.Sprintf("%s: proposer %q", getString(result, "canal_suggere"), idea),
			Metadata: map[string]any{
				"moment_suggere":  getString(result, "moment_suggere"),
				"canal_suggere":   getString(result, "canal_suggere"),
				"idee_a_proposer": idea,
				"ideas_count":     len(group.ideas),
				"generated_at":    time.Now().UTC().Format(time.RFC3339),
			},
		}); err != nil {
			insertFailed(CategoryUpsellTiming, userID, err)
			continue
		}
		created++
	}
	return created, nil
}

func upsellContext(client *database.Client, ideas []database.PendingIdea, recentDeliveries int, interactions []database.Interaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CLIENT : %s\n", client.Nom)
	fmt.Fprintf(&b, "- Satisfaction : %s/10\n", satisfactionOr(client.Satisfaction, "N/A"))
	fmt.Fprintf(&b, "- CA total : %s\n", euros(client.CATotalGenere))
	fmt.Fprintf(&b, "- Dernier contact : %s\n\n", dateOrNA(client.DateDernierContact))

	b.WriteString("IDÉES EN ATTENTE DE PROPOSITION :\n")
	for _, idea := range ideas {
		potential := 0.0
		if idea.PotentielFinancier != nil {
			potential = *idea.PotentielFinancier
		}
		fmt.Fprintf(&b, "- %s (%s)\n", idea.Titre, euros(potential))
	}

	fmt.Fprintf(&b, "\nLIVRAISONS RÉCENTES (30 derniers jours) : %d\n\n", recentDeliveries)

	b.WriteString("DERNIÈRES INTERACTIONS :\n")
	if len(interactions) == 0 {
		b.WriteString("Aucune\n")
	}
	for _, i := range interactions {
		subject := "N/A"
		if i.Sujet != nil && *i.Sujet != "" {
			subject = *i.Sujet
		}
		satisfaction := ""
		if i.SatisfactionClient != nil {
			satisfaction = fmt.Sprintf(" (Satisfaction: %d/10)", *i.SatisfactionClient)
		}
		fmt.Fprintf(&b, "- %s: %s%s\n", frDate(i.Date), subject, satisfaction)
	}

	return b.String()
}
