package detect

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/logger"
)

// ForgottenContacts flags active clients whose last contact is more than 30
// days old. Confidence grows with the silence, capped at 95. One open insight
// per client.
func ForgottenContacts(db *database.DB, userID string) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -30)
	clients, err := db.ActiveClientsNotContactedSince(userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stale clients: %w", err)
	}

	created := 0
	for _, client := range clients {
		days := daysSince(*client.DateDernierContact)

		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryForgottenContact,
			ClientID: &client.ID, OpenOnly: true,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		contact := client.Nom
		if client.ContactPrincipal != nil && *client.ContactPrincipal != "" {
			contact = *client.ContactPrincipal
		}

		confidence := 70 + days
		if confidence > 95 {
			confidence = 95
		}

		clientID := client.ID
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryForgottenContact,
			ClientID:       &clientID,
			Titre:          fmt.Sprintf("Pas de contact avec %s depuis %d jours", client.Nom, days),
			Description:    fmt.Sprintf("Client actif sans contact depuis %d jours. Risque de perte de relation.", days),
			ScoreConfiance: confidence,
			ActionSuggeree: fmt.Sprintf("Planifier check-in avec %s", contact),
		}); err != nil {
			insertFailed(CategoryForgottenContact, userID, err)
			continue
		}
		created++
	}
	return created, nil
}

// RecommendationMoments flags completed, paid projects whose client is highly
// satisfied and has not been asked for a recommendation in the last 90 days.
func RecommendationMoments(db *database.DB, userID string) (int, error) {
	projects, err := db.CompletedProjects(userID, 0)
	if err != nil {
		return 0, fmt.Errorf("listing completed projects: %w", err)
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

		paid, err := db.HasPaidLot(project.ID)
		if err != nil {
			return created, err
		}
		if !paid {
			continue
		}

		asked, err := db.HasInteractionWithSubjectSince(client.ID, "recommandation", time.Now().AddDate(0, 0, -90))
		if err != nil {
			return created, err
		}
		if asked {
			continue
		}

		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryRecommendationMoment,
			ClientID: &client.ID, OpenOnly: true,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		confidence := 75
		if project.MontantHT != nil && *project.MontantHT >= 10000 {
			confidence = 90
		}

		clientID := client.ID
		projectID := project.ID
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryRecommendationMoment,
			ClientID:       &clientID,
			ProjectID:      &projectID,
			Titre:          fmt.Sprintf("Moment idéal pour demander recommandation à %s", client.Nom),
			Description:    fmt.Sprintf("Projet %q terminé avec succès. Satisfaction: %d/10.", project.Nom, *client.Satisfaction),
			ScoreConfiance: confidence,
			ActionSuggeree: "Envoyer email demande recommandation personnalisé",
		}); err != nil {
			insertFailed(CategoryRecommendationMoment, userID, err)
			continue
		}
		created++
	}
	return created, nil
}

// UnpaidInvoices flags installments invoiced more than 30 days ago and still
// unpaid, both on project lots and on recurring contracts. Lot installments
// are suppressed per project; recurring ones additionally match on the
// installment label so distinct months each get their own insight.
func UnpaidInvoices(db *database.DB, userID string) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -30)
	created := 0

	lotInvoices, err := db.OverdueLotEcheances(userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing overdue lot installments: %w", err)
	}
	for _, inv := range lotInvoices {
		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryUnpaidInvoice,
			ProjectID: &inv.ProjectID, OpenOnly: true,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		days := daysSince(inv.DateFacturation)
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryUnpaidInvoice,
			ClientID:       &inv.ClientID,
			ProjectID:      &inv.ProjectID,
			Titre:          fmt.Sprintf("Échéance impayée: %s - %s (%dj)", inv.Label, inv.LotNom, days),
			Description:    fmt.Sprintf("Échéance de %s non payée depuis %d jours.", euros(inv.MontantHT), days),
			ScoreConfiance: 95,
			ActionSuggeree: fmt.Sprintf("Relancer %s pour paiement", inv.ClientNom),
			Metadata:       map[string]any{"echeance_type": "lot", "echeance_id": inv.EcheanceID},
		}); err != nil {
			insertFailed(CategoryUnpaidInvoice, userID, err)
			continue
		}
		created++
	}

	recurrentInvoices, err := db.OverdueRecurrentEcheances(userID, cutoff)
	if err != nil {
		return created, fmt.Errorf("listing overdue recurring installments: %w", err)
	}
	for _, inv := range recurrentInvoices {
		label := inv.Label
		exists, err := db.HasMatchingInsight(database.InsightFilter{
			UserID: userID, Type: CategoryUnpaidInvoice,
			ProjectID: &inv.ProjectID, OpenOnly: true, TitleContains: &label,
		})
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		days := daysSince(inv.DateFacturation)
		if _, err := db.InsertInsight(&database.Insight{
			UserID:         userID,
			Type:           CategoryUnpaidInvoice,
			ClientID:       &inv.ClientID,
			ProjectID:      &inv.ProjectID,
			Titre:          fmt.Sprintf("Récurrent impayé: %s (%dj)", inv.Label, days),
			Description:    fmt.Sprintf("Échéance récurrente de %s non payée depuis %d jours.", euros(inv.MontantHT), days),
			ScoreConfiance: 95,
			ActionSuggeree: fmt.Sprintf("Relancer %s pour paiement", inv.ClientNom),
			Metadata:       map[string]any{"echeance_type": "recurrent", "echeance_id": inv.EcheanceID},
		}); err != nil {
			insertFailed(CategoryUnpaidInvoice, userID, err)
			continue
		}
		created++
	}

	return created, nil
}

// LowPipeline emits one tenant-level insight when the weighted pipeline value
// (amount × closing probability) over open projects falls under 10k€, at most
// once per 7 days.
func LowPipeline(db *database.DB, userID string) (int, error) {
	projects, err := db.PipelineProjects(userID)
	if err != nil {
		return 0, fmt.Errorf("listing pipeline projects: %w", err)
	}

	value := 0.0
	for _, p := range projects {
		amount := 0.0
		if p.MontantHT != nil {
			amount = *p.MontantHT
		}
		probability := 50
		if p.ProbabiliteClosing != nil {
			probability = *p.ProbabiliteClosing
		}
		value += amount * float64(probability) / 100
	}

	if value >= 10000 {
		return 0, nil
	}

	weekAgo := time.Now().AddDate(0, 0, -7)
	exists, err := db.HasMatchingInsight(database.InsightFilter{
		UserID: userID, Type: CategoryLowPipeline,
		OpenOnly: true, CreatedAfter: &weekAgo,
	})
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	logger.GetLogger().Info("pipeline under threshold",
		zap.String("user_id", userID), zap.Float64("pipeline_value", value))

	if _, err := db.InsertInsight(&database.Insight{
		UserID:         userID,
		Type:           CategoryLowPipeline,
		Titre:          fmt.Sprintf("Pipeline faible: %d€", int(math.Round(value))),
		Description:    "Pipeline actuel sous 10k€. Actions commerciales recommandées.",
		ScoreConfiance: 80,
		ActionSuggeree: "Recontacter prospects froids ou lancer prospection",
	}); err != nil {
		insertFailed(CategoryLowPipeline, userID, err)
		return 0, nil
	}
	return 1, nil
}
