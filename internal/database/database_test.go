package database

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
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

func insertTestClient(t *testing.T, db *DB, userID, nom string) string {
	t.Helper()
	id, err := db.InsertClient(&Client{UserID: userID, Nom: nom})
	if err != nil {
		t.Fatalf("failed to insert client: %v", err)
	}
	return id
}

func insertTestProject(t *testing.T, db *DB, userID, clientID, nom string, statut ProjectStatus) string {
	t.Helper()
	id, err := db.InsertProject(&Project{UserID: userID, ClientID: clientID, Nom: nom, StatutProjet: statut})
	if err != nil {
		t.Fatalf("failed to insert project: %v", err)
	}
	return id
}

func TestInsertAndGetClient(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertClient(&Client{
		UserID:       "user-1",
		Nom:          "Acme",
		Satisfaction: intPtr(8),
		IdeesVente:   []string{"refonte site", "audit SEO"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty client id")
	}

	c, err := db.GetClient(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected client, got nil")
	}
	if c.Nom != "Acme" {
		t.Errorf("expected nom 'Acme', got %q", c.Nom)
	}
	if c.Statut != ClientActive {
		t.Errorf("expected default statut %q, got %q", ClientActive, c.Statut)
	}
	if len(c.IdeesVente) != 2 {
		t.Errorf("expected 2 idees de vente, got %d", len(c.IdeesVente))
	}
}

func TestGetClientNotFound(t *testing.T) {
	db := openTestDB(t)
	c, err := db.GetClient("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil for missing client, got %+v", c)
	}
}

func TestListTenants(t *testing.T) {
	db := openTestDB(t)
	insertTestClient(t, db, "user-b", "B1")
	insertTestClient(t, db, "user-a", "A1")
	insertTestClient(t, db, "user-a", "A2")

	deleted := insertTestClient(t, db, "user-c", "C1")
	if err := db.SoftDeleteClient(deleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tenants, err := db.ListTenants()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
	if tenants[0] != "user-a" || tenants[1] != "user-b" {
		t.Errorf("unexpected tenant order: %v", tenants)
	}
}

func TestActiveClientsNotContactedSince(t *testing.T) {
	db := openTestDB(t)
	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().AddDate(0, 0, -3)

	db.InsertClient(&Client{UserID: "u", Nom: "Stale", DateDernierContact: timePtr(old)})
	db.InsertClient(&Client{UserID: "u", Nom: "Fresh", DateDernierContact: timePtr(recent)})
	db.InsertClient(&Client{UserID: "u", Nom: "Never"})

	cutoff := time.Now().AddDate(0, 0, -30)
	clients, err := db.ActiveClientsNotContactedSince("u", cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 stale client, got %d", len(clients))
	}
	if clients[0].Nom != "Stale" {
		t.Errorf("expected 'Stale', got %q", clients[0].Nom)
	}
}

func TestCompletedProjectsOrder(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")

	older := time.Now().AddDate(0, -6, 0)
	newer := time.Now().AddDate(0, -1, 0)
	db.InsertProject(&Project{UserID: "u", ClientID: clientID, Nom: "Old",
		StatutProjet: ProjectCompleted, DateFinReelle: timePtr(older)})
	db.InsertProject(&Project{UserID: "u", ClientID: clientID, Nom: "New",
		StatutProjet: ProjectCompleted, DateFinReelle: timePtr(newer)})
	db.InsertProject(&Project{UserID: "u", ClientID: clientID, Nom: "Running",
		StatutProjet: ProjectInProgress})

	projects, err := db.CompletedProjects("u", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 completed projects, got %d", len(projects))
	}
	if projects[0].Nom != "New" {
		t.Errorf("expected most recent first, got %q", projects[0].Nom)
	}
}

func TestPipelineProjects(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	db.InsertProject(&Project{UserID: "u", ClientID: clientID, Nom: "Talks", StatutProjet: ProjectDiscussion})
	db.InsertProject(&Project{UserID: "u", ClientID: clientID, Nom: "Quoted", StatutProjet: ProjectProposalSent})
	db.InsertProject(&Project{UserID: "u", ClientID: clientID, Nom: "Building", StatutProjet: ProjectInProgress})

	projects, err := db.PipelineProjects("u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("expected 2 pipeline projects, got %d", len(projects))
	}
}

func TestOverdueLotEcheances(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	projectID := insertTestProject(t, db, "u", clientID, "Site", ProjectInProgress)
	lotID, _ := db.InsertLot(&Lot{UserID: "u", ProjectID: projectID, Nom: "Phase 1", MontantHT: 5000})

	overdueDate := time.Now().AddDate(0, 0, -20)
	db.InsertLotEcheance(&LotEcheance{UserID: "u", LotID: lotID, Label: "Acompte",
		MontantHT: 2500, StatutFacturation: BillingInvoiced, DateFacturation: timePtr(overdueDate)})
	db.InsertLotEcheance(&LotEcheance{UserID: "u", LotID: lotID, Label: "Solde",
		MontantHT: 2500, StatutFacturation: BillingPaid, DateFacturation: timePtr(overdueDate)})

	cutoff := time.Now().AddDate(0, 0, -15)
	invoices, err := db.OverdueLotEcheances("u", cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("expected 1 overdue invoice, got %d", len(invoices))
	}
	inv := invoices[0]
	if inv.Label != "Acompte" || inv.LotNom != "Phase 1" || inv.ClientNom != "Acme" {
		t.Errorf("unexpected invoice: %+v", inv)
	}
}

func TestHasInteractionWithSubjectSince(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	db.InsertInteraction(&Interaction{UserID: "u", ClientID: clientID,
		Date: time.Now().AddDate(0, 0, -5), Sujet: ptr("Demande de RECOMMANDATION")})

	found, err := db.HasInteractionWithSubjectSince(clientID, "recommandation", time.Now().AddDate(0, 0, -10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("expected case-insensitive subject match")
	}

	found, err = db.HasInteractionWithSubjectSince(clientID, "recommandation", time.Now().AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected no match before a later cutoff")
	}
}

func TestPendingIdeasWithClient(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	projectID := insertTestProject(t, db, "u", clientID, "Site", ProjectCompleted)

	db.InsertIdea(&Idea{UserID: "u", ProjectID: projectID, Titre: "Module export"})
	db.InsertIdea(&Idea{UserID: "u", ProjectID: projectID, Titre: "Déjà vendue", Statut: "Proposée"})

	ideas, err := db.PendingIdeasWithClient("u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ideas) != 1 {
		t.Fatalf("expected 1 pending idea, got %d", len(ideas))
	}
	if ideas[0].Titre != "Module export" || ideas[0].ClientID != clientID {
		t.Errorf("unexpected idea: %+v", ideas[0])
	}
}

func TestInsertInsightDefaults(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertInsight(&Insight{
		UserID:         "u",
		Type:           "Contact oublié",
		Titre:          "Pas de contact avec Acme depuis 45 jours",
		Description:    "Relancer le client.",
		ScoreConfiance: 90,
		ActionSuggeree: "Appeler Acme",
		Metadata:       map[string]any{"days_since_contact": 45},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty insight id")
	}

	insights, err := db.ListInsights("u", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(insights))
	}
	got := insights[0]
	if got.Statut != InsightStatusNew {
		t.Errorf("expected default statut %q, got %q", InsightStatusNew, got.Statut)
	}
	if got.Metadata["days_since_contact"] != float64(45) {
		t.Errorf("unexpected metadata: %v", got.Metadata)
	}
}

func TestHasMatchingInsight(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	db.InsertInsight(&Insight{
		UserID:   "u",
		Type:     "Risque churn",
		ClientID: &clientID,
		Titre:    "Risque de churn: Acme",
		Statut:   InsightStatusNew,
	})

	found, err := db.HasMatchingInsight(InsightFilter{
		UserID: "u", Type: "Risque churn", ClientID: &clientID, OpenOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("expected match on open churn insight")
	}

	other := "other-client"
	found, err = db.HasMatchingInsight(InsightFilter{
		UserID: "u", Type: "Risque churn", ClientID: &other,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected no match for a different client")
	}

	future := time.Now().Add(time.Hour)
	found, err = db.HasMatchingInsight(InsightFilter{
		UserID: "u", Type: "Risque churn", ClientID: &clientID, CreatedAfter: &future,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected no match after a future cutoff")
	}
}

func TestHasMatchingInsightTitleContains(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	db.InsertInsight(&Insight{
		UserID:   "u",
		Type:     "Opportunité extension",
		ClientID: &clientID,
		Titre:    "Proposer: Module export",
	})

	found, err := db.HasMatchingInsight(InsightFilter{
		UserID: "u", Type: "Opportunité extension", ClientID: &clientID,
		TitleContains: ptr("Module export"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("expected title substring match")
	}
}

func TestRecomputeClientRevenue(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	projectID := insertTestProject(t, db, "u", clientID, "Site", ProjectCompleted)

	// Paid lot without installments counts through its paid amount.
	db.InsertLot(&Lot{UserID: "u", ProjectID: projectID, Nom: "Forfait",
		MontantHT: 4000, MontantPaye: floatPtr(3800), StatutFacturation: BillingPaid})

	// Lot split into installments counts only through the paid ones.
	splitLot, _ := db.InsertLot(&Lot{UserID: "u", ProjectID: projectID, Nom: "Phasé",
		MontantHT: 6000, StatutFacturation: BillingPaid})
	db.InsertLotEcheance(&LotEcheance{UserID: "u", LotID: splitLot, Label: "Acompte",
		MontantHT: 3000, StatutFacturation: BillingPaid})
	db.InsertLotEcheance(&LotEcheance{UserID: "u", LotID: splitLot, Label: "Solde",
		MontantHT: 3000, StatutFacturation: BillingInvoiced})

	recurrentID, _ := db.InsertRecurrent(&Recurrent{UserID: "u", ProjectID: projectID,
		Label: "Maintenance", MontantHT: 200})
	db.InsertRecurrentEcheance(&RecurrentEcheance{UserID: "u", RecurrentID: recurrentID,
		Label: "Janvier", MontantHT: 200, StatutFacturation: BillingPaid})

	if err := db.RecomputeClientStats(clientID, UpdateCA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := db.GetClient(clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 3800.0 + 3000.0 + 200.0
	if c.CATotalGenere != want {
		t.Errorf("expected ca_total_genere %.2f, got %.2f", want, c.CATotalGenere)
	}
}

func TestRecomputeClientLastContact(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")

	older := time.Now().AddDate(0, 0, -20)
	newer := time.Now().AddDate(0, 0, -2)
	db.InsertInteraction(&Interaction{UserID: "u", ClientID: clientID, Date: older, Sujet: ptr("Kickoff")})
	db.InsertInteraction(&Interaction{UserID: "u", ClientID: clientID, Date: newer, Sujet: ptr("Point mensuel")})

	if err := db.RecomputeClientStats(clientID, UpdateContact); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := db.GetClient(clientID)
	if c.DateDernierContact == nil {
		t.Fatal("expected last contact to be set")
	}
	if diff := c.DateDernierContact.Sub(newer); diff > time.Second || diff < -time.Second {
		t.Errorf("expected last contact near %v, got %v", newer, c.DateDernierContact)
	}
}

func TestRecomputeClientStatsUnknownType(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	if err := db.RecomputeClientStats(clientID, "bogus"); err == nil {
		t.Error("expected error for unknown update type")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	clientID := insertTestClient(t, db, "u", "Acme")
	insertTestProject(t, db, "u", clientID, "Site", ProjectInProgress)
	db.InsertInsight(&Insight{UserID: "u", Type: "Pipeline faible", Titre: "Pipeline commercial faible"})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Tenants != 1 || stats.Clients != 1 || stats.Projects != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.Insights != 1 || stats.OpenInsights != 1 {
		t.Errorf("unexpected insight counts: %+v", stats)
	}
}
