package detect

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/digityx/insightd/internal/database"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _, _ string, _ int) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func jsonResponse(t *testing.T, v map[string]any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal mock response: %v", err)
	}
	return string(data)
}

func TestForgottenContacts(t *testing.T) {
	db := openTestDB(t)
	stale := time.Now().AddDate(0, 0, -45)
	db.InsertClient(&database.Client{UserID: "u", Nom: "Acme",
		ContactPrincipal:   ptr("Jean Dupont"),
		DateDernierContact: timePtr(stale)})
	db.InsertClient(&database.Client{UserID: "u", Nom: "Fresh",
		DateDernierContact: timePtr(time.Now().AddDate(0, 0, -5))})

	created, err := ForgottenContacts(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Pas de contact avec Acme depuis 45 jours" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	if got.ScoreConfiance != 95 {
		t.Errorf("expected confidence capped at 95, got %d", got.ScoreConfiance)
	}
	if got.ActionSuggeree != "Planifier check-in avec Jean Dupont" {
		t.Errorf("unexpected action: %q", got.ActionSuggeree)
	}
}

func TestForgottenContactsSuppressedWhileOpen(t *testing.T) {
	db := openTestDB(t)
	db.InsertClient(&database.Client{UserID: "u", Nom: "Acme",
		DateDernierContact: timePtr(time.Now().AddDate(0, 0, -45))})

	first, _ := ForgottenContacts(db, "u")
	second, _ := ForgottenContacts(db, "u")
	if first != 1 || second != 0 {
		t.Errorf("expected 1 then 0, got %d then %d", first, second)
	}
}

func TestForgottenContactsContinuesAfterFailedInsert(t *testing.T) {
	db := openTestDB(t)
	stale := timePtr(time.Now().AddDate(0, 0, -45))
	db.InsertClient(&database.Client{UserID: "u", Nom: "Alpha", DateDernierContact: stale})
	db.InsertClient(&database.Client{UserID: "u", Nom: "Zeta", DateDernierContact: stale})

	// Reject Alpha's insight at the storage layer; the detector must carry
	// on with the remaining clients and only count the rows that landed.
	raw, err := sql.Open("sqlite", db.Path())
	if err != nil {
		t.Fatalf("failed to open raw connection: %v", err)
	}
	defer raw.Close()
	if _, err := raw.Exec(`CREATE TRIGGER reject_alpha BEFORE INSERT ON insights_ia
		WHEN NEW.titre LIKE '%Alpha%'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	created, err := ForgottenContacts(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight despite the failed insert, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	if len(insights) != 1 || !strings.Contains(insights[0].Titre, "Zeta") {
		t.Errorf("expected only the second client's insight, got %+v", insights)
	}
}

func TestRecommendationMoments(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme", Satisfaction: intPtr(9)})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Refonte", MontantHT: floatPtr(15000), StatutProjet: database.ProjectCompleted})
	db.InsertLot(&database.Lot{UserID: "u", ProjectID: projectID, Nom: "Phase 1",
		MontantHT: 15000, StatutFacturation: database.BillingPaid})

	created, err := RecommendationMoments(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	if insights[0].ScoreConfiance != 90 {
		t.Errorf("expected confidence 90 for 10k+ project, got %d", insights[0].ScoreConfiance)
	}
}

func TestRecommendationMomentsSkipsRecentRequest(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme", Satisfaction: intPtr(9)})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Refonte", StatutProjet: database.ProjectCompleted})
	db.InsertLot(&database.Lot{UserID: "u", ProjectID: projectID, Nom: "Phase 1",
		MontantHT: 5000, StatutFacturation: database.BillingPaid})
	db.InsertInteraction(&database.Interaction{UserID: "u", ClientID: clientID,
		Date: time.Now().AddDate(0, 0, -10), Sujet: ptr("Demande de recommandation")})

	created, err := RecommendationMoments(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected 0 insights after a recent request, got %d", created)
	}
}

func TestRecommendationMomentsRequiresPaidLot(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme", Satisfaction: intPtr(9)})
	db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Refonte", StatutProjet: database.ProjectCompleted})

	created, err := RecommendationMoments(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected 0 insights without a paid lot, got %d", created)
	}
}

func TestUnpaidInvoices(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Site", StatutProjet: database.ProjectInProgress})
	lotID, _ := db.InsertLot(&database.Lot{UserID: "u", ProjectID: projectID,
		Nom: "Phase 1", MontantHT: 5000})
	db.InsertLotEcheance(&database.LotEcheance{UserID: "u", LotID: lotID, Label: "Acompte",
		MontantHT: 2500, StatutFacturation: database.BillingInvoiced,
		DateFacturation: timePtr(time.Now().AddDate(0, 0, -40))})

	created, err := UnpaidInvoices(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Échéance impayée: Acompte - Phase 1 (40j)" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	if got.ScoreConfiance != 95 {
		t.Errorf("expected confidence 95, got %d", got.ScoreConfiance)
	}
	if got.Metadata["echeance_type"] != "lot" {
		t.Errorf("unexpected metadata: %v", got.Metadata)
	}
}

func TestUnpaidInvoicesRecurrentPerLabel(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Maintenance", StatutProjet: database.ProjectInProgress})
	recurrentID, _ := db.InsertRecurrent(&database.Recurrent{UserID: "u", ProjectID: projectID,
		Label: "Maintenance mensuelle", MontantHT: 300})

	overdue := timePtr(time.Now().AddDate(0, 0, -45))
	db.InsertRecurrentEcheance(&database.RecurrentEcheance{UserID: "u", RecurrentID: recurrentID,
		Label: "Janvier", MontantHT: 300, StatutFacturation: database.BillingInvoiced, DateFacturation: overdue})
	db.InsertRecurrentEcheance(&database.RecurrentEcheance{UserID: "u", RecurrentID: recurrentID,
		Label: "Février", MontantHT: 300, StatutFacturation: database.BillingInvoiced, DateFacturation: overdue})

	created, err := UnpaidInvoices(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 2 {
		t.Errorf("expected one insight per distinct label, got %d", created)
	}

	// Re-running adds nothing: both labels are already covered.
	again, _ := UnpaidInvoices(db, "u")
	if again != 0 {
		t.Errorf("expected 0 on re-run, got %d", again)
	}
}

func TestLowPipeline(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	db.InsertProject(&database.Project{UserID: "u", ClientID: clientID, Nom: "Maybe",
		MontantHT: floatPtr(16000), ProbabiliteClosing: intPtr(50), StatutProjet: database.ProjectDiscussion})

	created, err := LowPipeline(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight for 8000 pipeline, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	if insights[0].Titre != "Pipeline faible: 8000€" {
		t.Errorf("unexpected titre: %q", insights[0].Titre)
	}

	// Second run within 7 days is suppressed.
	again, _ := LowPipeline(db, "u")
	if again != 0 {
		t.Errorf("expected 0 on re-run, got %d", again)
	}
}

func TestLowPipelineAboveThreshold(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	db.InsertProject(&database.Project{UserID: "u", ClientID: clientID, Nom: "Sure",
		MontantHT: floatPtr(20000), ProbabiliteClosing: intPtr(80), StatutProjet: database.ProjectProposalSent})

	created, err := LowPipeline(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected 0 insights with healthy pipeline, got %d", created)
	}
}

func TestLowPipelineDefaultProbability(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	// 25000 at the default 50% probability = 12500, above the threshold.
	db.InsertProject(&database.Project{UserID: "u", ClientID: clientID, Nom: "NoProba",
		MontantHT: floatPtr(25000), StatutProjet: database.ProjectDiscussion})

	created, err := LowPipeline(db, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected missing probability to default to 50%%, got %d insights", created)
	}
}

func satisfiedClientWithProject(t *testing.T, db *database.DB) (string, string) {
	t.Helper()
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme",
		Satisfaction: intPtr(9), CATotalGenere: 20000})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Refonte", Type: ptr("Site web"), MontantHT: floatPtr(12000),
		StackTechnique: []string{"Next.js", "Supabase"},
		StatutProjet:   database.ProjectCompleted,
		DateFinReelle:  timePtr(time.Now().AddDate(0, 0, -15))})
	return clientID, projectID
}

func TestExtensionOpportunities(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := satisfiedClientWithProject(t, db)

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"opportunite":    "Migration Next.js 15",
		"montant_estime": 8000,
		"justification":  "Stack vieillissante, gains de performance immédiats.",
		"confiance":      85,
	})}

	created, err := ExtensionOpportunities(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Migration Next.js 15" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	if got.ActionSuggeree != "Proposer Migration Next.js 15 (~8000€)" {
		t.Errorf("unexpected action: %q", got.ActionSuggeree)
	}
	if got.ClientID == nil || *got.ClientID != clientID {
		t.Errorf("expected client reference %q, got %v", clientID, got.ClientID)
	}
}

func TestExtensionOpportunitiesBelowFloor(t *testing.T) {
	db := openTestDB(t)
	satisfiedClientWithProject(t, db)

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"opportunite": "Audit SEO",
		"confiance":   60,
	})}

	created, err := ExtensionOpportunities(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected low-confidence verdict to be discarded, got %d", created)
	}
}

func TestExtensionOpportunitiesMonthlyWindow(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := satisfiedClientWithProject(t, db)
	db.InsertInsight(&database.Insight{UserID: "u", Type: CategoryExtension,
		ClientID: &clientID, Titre: "Déjà proposé ce mois"})

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"opportunite": "Autre idée", "confiance": 90,
	})}

	created, err := ExtensionOpportunities(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected monthly suppression, got %d", created)
	}
	if mock.calls != 0 {
		t.Errorf("expected no LLM call for a suppressed client, got %d", mock.calls)
	}
}

func TestChurnRisk(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme",
		Satisfaction: intPtr(4), DateDernierContact: timePtr(time.Now().AddDate(0, 0, -50))})

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"risque_niveau":        "Élevé",
		"facteurs":             []string{"Satisfaction en baisse", "Silence prolongé", "Facture en retard", "Quatrième facteur"},
		"actions_recommandees": []string{"Appeler cette semaine", "Proposer un point projet"},
		"confiance":            80,
	})}

	created, err := ChurnRisk(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Risque de churn Élevé: Acme" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	if got.Description != "Satisfaction en baisse. Silence prolongé. Facture en retard" {
		t.Errorf("expected description limited to 3 factors, got %q", got.Description)
	}
	if got.ActionSuggeree != "Appeler cette semaine" {
		t.Errorf("unexpected action: %q", got.ActionSuggeree)
	}
	if got.ClientID == nil || *got.ClientID != clientID {
		t.Errorf("expected client reference, got %v", got.ClientID)
	}
}

func TestChurnRiskLowVerdictDiscarded(t *testing.T) {
	db := openTestDB(t)
	db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"risque_niveau": "Faible", "confiance": 0,
	})}

	created, err := ChurnRisk(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected healthy client to produce nothing, got %d", created)
	}
}

func TestChurnRiskFourteenDayWindow(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	// A recent insight suppresses even when it is no longer open.
	db.InsertInsight(&database.Insight{UserID: "u", Type: CategoryChurnRisk,
		ClientID: &clientID, Titre: "Risque de churn Moyen: Acme", Statut: "Traité"})

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"risque_niveau": "Élevé", "confiance": 90,
	})}

	created, err := ChurnRisk(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected 14-day suppression regardless of status, got %d", created)
	}
}

func TestUpsellTiming(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme", Satisfaction: intPtr(9)})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Site", StatutProjet: database.ProjectCompleted})
	db.InsertIdea(&database.Idea{UserID: "u", ProjectID: projectID,
		Titre: "Module facturation", PotentielFinancier: floatPtr(6000)})

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"timing_optimal": true,
		"moment_suggere": "Cette semaine",
		"raison":         "Projet livré avec succès, client enthousiaste.",
		"canal_suggere":  "Appel",
		"confiance":      85,
	})}

	created, err := UpsellTiming(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Moment idéal pour proposer à Acme" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	// No idea named by the model: falls back to the first pending one.
	if got.ActionSuggeree != `Appel: proposer "Module facturation"` {
		t.Errorf("unexpected action: %q", got.ActionSuggeree)
	}
}

func TestUpsellTimingNotOptimal(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	projectID, _ := db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
		Nom: "Site", StatutProjet: database.ProjectInProgress})
	db.InsertIdea(&database.Idea{UserID: "u", ProjectID: projectID, Titre: "Module export"})

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"timing_optimal": false, "confiance": 0,
	})}

	created, err := UpsellTiming(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected 0 insights when timing is wrong, got %d", created)
	}
}

func TestUpsellTimingNoIdeas(t *testing.T) {
	db := openTestDB(t)
	db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})

	mock := &mockProvider{}
	created, err := UpsellTiming(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 || mock.calls != 0 {
		t.Errorf("expected no work without pending ideas, got %d insights, %d calls", created, mock.calls)
	}
}

func TestContentStrategy(t *testing.T) {
	db := openTestDB(t)
	_, projectID := satisfiedClientWithProject(t, db)

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"pertinent":          true,
		"type_contenu":       "Case Study",
		"sujet_suggere":      "Refonte Next.js en 6 semaines",
		"points_cles":        []string{"Performance doublée", "SEO amélioré"},
		"potentiel_lead_gen": "Élevé",
		"confiance":          80,
	})}

	created, err := ContentStrategy(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Case Study: Refonte Next.js en 6 semaines" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	if got.ProjectID == nil || *got.ProjectID != projectID {
		t.Errorf("expected project reference, got %v", got.ProjectID)
	}

	// A project is analyzed once, even after the insight is closed.
	again, _ := ContentStrategy(context.Background(), db, mock, "u")
	if again != 0 {
		t.Errorf("expected per-project lifetime suppression, got %d", again)
	}
}

func TestContentStrategySkipsOldProjects(t *testing.T) {
	db := openTestDB(t)
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme", Satisfaction: intPtr(9)})
	db.InsertProject(&database.Project{UserID: "u", ClientID: clientID, Nom: "Ancien",
		StatutProjet:  database.ProjectCompleted,
		DateFinReelle: timePtr(time.Now().AddDate(0, 0, -90))})

	mock := &mockProvider{}
	created, err := ContentStrategy(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 || mock.calls != 0 {
		t.Errorf("expected projects older than 60 days to be skipped, got %d insights, %d calls", created, mock.calls)
	}
}

func seedCompletedProjects(t *testing.T, db *database.DB, n int) {
	t.Helper()
	clientID, _ := db.InsertClient(&database.Client{UserID: "u", Nom: "Acme"})
	for i := 0; i < n; i++ {
		db.InsertProject(&database.Project{UserID: "u", ClientID: clientID,
			Nom: "Projet", Type: ptr("Site web"), MontantHT: floatPtr(5000),
			StatutProjet:  database.ProjectCompleted,
			DateFinPrevue: timePtr(time.Now().AddDate(0, -2, 0)),
			DateFinReelle: timePtr(time.Now().AddDate(0, -1, 0))})
	}
}

func TestProcessImprovement(t *testing.T) {
	db := openTestDB(t)
	seedCompletedProjects(t, db, 6)

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"pattern_detecte":   true,
		"pattern_identifie": "Les sites web glissent d'un mois en moyenne",
		"cause_probable":    "Estimations trop optimistes",
		"recommandation":    "Ajouter 30% de marge aux devis site web",
		"impact_estime":     "Moins de pénalités de retard",
		"confiance":         75,
	})}

	created, err := ProcessImprovement(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	got := insights[0]
	if got.Titre != "Process: Les sites web glissent d'un mois en moyenne" {
		t.Errorf("unexpected titre: %q", got.Titre)
	}
	if got.ClientID != nil {
		t.Errorf("expected tenant-level insight without client, got %v", got.ClientID)
	}

	again, _ := ProcessImprovement(context.Background(), db, mock, "u")
	if again != 0 {
		t.Errorf("expected monthly suppression, got %d", again)
	}
}

func TestProcessImprovementNeedsFiveProjects(t *testing.T) {
	db := openTestDB(t)
	seedCompletedProjects(t, db, 4)

	mock := &mockProvider{}
	created, err := ProcessImprovement(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 || mock.calls != 0 {
		t.Errorf("expected no analysis under 5 projects, got %d insights, %d calls", created, mock.calls)
	}
}

func TestPricingOptimization(t *testing.T) {
	db := openTestDB(t)
	seedCompletedProjects(t, db, 12)

	mock := &mockProvider{response: jsonResponse(t, map[string]any{
		"anomalie_detectee": true,
		"type_anomalie":     "Sous-tarification",
		"analyse":           "Les sites web sont facturés 30% sous le marché.",
		"recommandation":    "Relever le prix plancher à 7000€",
		"impact_estime":     "+15k€/an",
		"confiance":         70,
	})}

	created, err := PricingOptimization(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 insight, got %d", created)
	}

	insights, _ := db.ListInsights("u", 10)
	if insights[0].Titre != "Pricing: Sous-tarification" {
		t.Errorf("unexpected titre: %q", insights[0].Titre)
	}

	again, _ := PricingOptimization(context.Background(), db, mock, "u")
	if again != 0 {
		t.Errorf("expected quarterly suppression, got %d", again)
	}
}

func TestPricingOptimizationNeedsTenProjects(t *testing.T) {
	db := openTestDB(t)
	seedCompletedProjects(t, db, 9)

	mock := &mockProvider{}
	created, err := PricingOptimization(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 || mock.calls != 0 {
		t.Errorf("expected no analysis under 10 projects, got %d insights, %d calls", created, mock.calls)
	}
}

func TestMonthlyRecurringRevenue(t *testing.T) {
	recurrents := []database.Recurrent{
		{MontantHT: 300, Frequence: database.FreqMonthly},
		{MontantHT: 900, Frequence: database.FreqQuarterly},
		{MontantHT: 1200, Frequence: database.FreqAnnual},
	}
	if got := monthlyRecurringRevenue(recurrents); got != 700 {
		t.Errorf("expected MRR 700, got %.2f", got)
	}
}

func TestGarbledLLMResponseIsDiscarded(t *testing.T) {
	db := openTestDB(t)
	satisfiedClientWithProject(t, db)

	mock := &mockProvider{response: "désolé, je ne peux pas répondre en JSON"}
	created, err := ExtensionOpportunities(context.Background(), db, mock, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected unparseable reply to create nothing, got %d", created)
	}
}

func TestAllDetectorOrder(t *testing.T) {
	detectors := All()
	if len(detectors) != 10 {
		t.Fatalf("expected 10 detectors, got %d", len(detectors))
	}
	for i, d := range detectors[:4] {
		if d.NeedsLLM {
			t.Errorf("detector %d (%s) should be rule-based", i, d.Category)
		}
	}
	for i, d := range detectors[4:] {
		if !d.NeedsLLM {
			t.Errorf("detector %d (%s) should need the LLM", i+4, d.Category)
		}
	}
}
