package database

import (
	"encoding/json"
	"time"
)

// Client status values.
const (
	ClientActive   = "Actif"
	ClientInactive = "Inactif"
)

// ProjectStatus is the lifecycle status of a project.
type ProjectStatus string

const (
	ProjectDiscussion   ProjectStatus = "Discussion"
	ProjectProposalSent ProjectStatus = "Proposition envoyée"
	ProjectInProgress   ProjectStatus = "En cours"
	ProjectCompleted    ProjectStatus = "Terminé"
)

// BillingStatus is the invoicing status of a lot or echeance.
type BillingStatus string

const (
	BillingDraft    BillingStatus = "Brouillon"
	BillingInvoiced BillingStatus = "Facturé"
	BillingPaid     BillingStatus = "Payé"
)

// Delivery status values for lots.
const DeliveryDelivered = "Livré"

// Frequency is the billing cadence of a recurring contract.
type Frequency string

const (
	FreqMonthly   Frequency = "Mensuel"
	FreqQuarterly Frequency = "Trimestriel"
	FreqAnnual    Frequency = "Annuel"
)

// Recurring contract status values.
const RecurrentActive = "Actif"

// Idea status values.
const IdeaToPropose = "À proposer"

// Insight status values. New insights always start as "Nouveau".
const InsightStatusNew = "Nouveau"

// Client is a tenant-owned customer account.
type Client struct {
	ID                 string
	UserID             string
	Nom                string
	ContactPrincipal   *string
	Statut             string
	Satisfaction       *int
	CATotalGenere      float64
	Notes              *string
	IdeesVente         []string
	SourceAcquisition  *string
	DateDernierContact *time.Time
	DeletedAt          *time.Time
	CreatedAt          time.Time
}

// Project belongs to one client.
type Project struct {
	ID                  string
	UserID              string
	ClientID            string
	Nom                 string
	Type                *string
	MontantHT           *float64
	StackTechnique      []string
	StatutProjet        ProjectStatus
	ProbabiliteClosing  *int
	ExtensionsPossibles []string
	DocumentationMD     *string
	DateFinPrevue       *time.Time
	DateFinReelle       *time.Time
	DeletedAt           *time.Time
	CreatedAt           time.Time
}

// Lot is a billable deliverable of a project.
type Lot struct {
	ID                string
	UserID            string
	ProjectID         string
	Nom               string
	MontantHT         float64
	MontantPaye       *float64
	StatutFacturation BillingStatus
	StatutLivraison   *string
	DateFacturation   *time.Time
	DateLivraison     *time.Time
	CreatedAt         time.Time
}

// LotEcheance is a scheduled sub-installment of a lot.
type LotEcheance struct {
	ID                string
	UserID            string
	LotID             string
	Label             string
	MontantHT         float64
	StatutFacturation BillingStatus
	DateFacturation   *time.Time
	CreatedAt         time.Time
}

// Recurrent is a recurring contract attached to a project.
type Recurrent struct {
	ID        string
	UserID    string
	ProjectID string
	Label     string
	MontantHT float64
	Frequence Frequency
	Statut    string
	DateFin   *time.Time
	CreatedAt time.Time
}

// RecurrentEcheance is a scheduled installment of a recurring contract.
type RecurrentEcheance struct {
	ID                string
	UserID            string
	RecurrentID       string
	Label             string
	MontantHT         float64
	StatutFacturation BillingStatus
	DateFacturation   *time.Time
	CreatedAt         time.Time
}

// Interaction is a logged exchange with a client.
type Interaction struct {
	ID                 string
	UserID             string
	ClientID           string
	Date               time.Time
	Sujet              *string
	Notes              *string
	SatisfactionClient *int
	CreatedAt          time.Time
}

// Idea is a proposed enhancement tied to a project.
type Idea struct {
	ID                 string
	UserID             string
	ProjectID          string
	Titre              string
	Categorie          *string
	Statut             string
	PotentielFinancier *float64
	CreatedAt          time.Time
}

// Insight is a detector-generated finding.
type Insight struct {
	ID             string
	UserID         string
	Type           string
	ClientID       *string
	ProjectID      *string
	Titre          string
	Description    string
	ScoreConfiance int
	ActionSuggeree string
	Statut         string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Tenants      int
	Clients      int
	Projects     int
	Interactions int
	Insights     int
	OpenInsights int
}

// timeLayout is the stored timestamp format. RFC 3339 in UTC compares
// correctly as text, which the window queries rely on.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, *s)
	if err != nil {
		// created_at columns filled by sqlite use 'YYYY-MM-DD HH:MM:SS'
		t, err = time.Parse("2006-01-02 15:04:05", *s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseTimeOrZero(s *string) time.Time {
	if t := parseTimePtr(s); t != nil {
		return *t
	}
	return time.Time{}
}

// String-list columns (idees_vente, stack_technique, extensions_possibles)
// are stored as JSON arrays in TEXT columns.

func marshalList(items []string) *string {
	if items == nil {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func unmarshalList(s *string) []string {
	if s == nil || *s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(*s), &items); err != nil {
		return nil
	}
	return items
}
