package database

import (
	"fmt"
)

// Update types accepted by RecomputeClientStats.
const (
	UpdateCA      = "ca"
	UpdateContact = "contact"
	UpdateAll     = "all"
)

// RecomputeClientStats recalculates a client's derived columns from its
// billing and interaction history. updateType selects which columns to
// refresh: "ca" for total revenue, "contact" for the last-contact date, or
// "all" for both.
func (db *DB) RecomputeClientStats(clientID, updateType string) error {
	switch updateType {
	case UpdateCA, UpdateContact, UpdateAll:
	default:
		return fmt.Errorf("unknown update type %q", updateType)
	}

	if updateType == UpdateCA || updateType == UpdateAll {
		if err := db.recomputeClientRevenue(clientID); err != nil {
			return fmt.Errorf("recompute revenue: %w", err)
		}
	}
	if updateType == UpdateContact || updateType == UpdateAll {
		if err := db.recomputeClientLastContact(clientID); err != nil {
			return fmt.Errorf("recompute last contact: %w", err)
		}
	}
	return nil
}

// recomputeClientRevenue sets ca_total_genere to the sum of everything
// actually paid: lots paid as a whole (those without installments), paid lot
// installments, and paid recurring installments. A lot split into
// installments counts only through them, never through its own amount.
func (db *DB) recomputeClientRevenue(clientID string) error {
	var lotTotal float64
	err := db.conn.QueryRow(
		`SELECT COALESCE(SUM(COALESCE(l.montant_paye, l.montant_ht)), 0)
		FROM project_lots l
		JOIN projects p ON p.id = l.project_id
		WHERE p.client_id = ? AND l.statut_facturation = ?
		AND NOT EXISTS (SELECT 1 FROM project_lot_echeances e WHERE e.lot_id = l.id)`,
		clientID, string(BillingPaid),
	).Scan(&lotTotal)
	if err != nil {
		return err
	}

	var echeanceTotal float64
	err = db.conn.QueryRow(
		`SELECT COALESCE(SUM(e.montant_ht), 0)
		FROM project_lot_echeances e
		JOIN project_lots l ON l.id = e.lot_id
		JOIN projects p ON p.id = l.project_id
		WHERE p.client_id = ? AND e.statut_facturation = ?`,
		clientID, string(BillingPaid),
	).Scan(&echeanceTotal)
	if err != nil {
		return err
	}

	var recurrentTotal float64
	err = db.conn.QueryRow(
		`SELECT COALESCE(SUM(e.montant_ht), 0)
		FROM project_recurrent_echeances e
		JOIN project_recurrents r ON r.id = e.recurrent_id
		JOIN projects p ON p.id = r.project_id
		WHERE p.client_id = ? AND e.statut_facturation = ?`,
		clientID, string(BillingPaid),
	).Scan(&recurrentTotal)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		"UPDATE clients SET ca_total_genere = ? WHERE id = ?",
		lotTotal+echeanceTotal+recurrentTotal, clientID,
	)
	return err
}

// recomputeClientLastContact sets date_dernier_contact to the date of the
// client's most recent interaction, or clears it when none exists.
func (db *DB) recomputeClientLastContact(clientID string) error {
	latest, err := db.LatestInteractionDate(clientID)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		"UPDATE clients SET date_dernier_contact = ? WHERE id = ?",
		formatTimePtr(latest), clientID,
	)
	return err
}

// GetStats returns aggregate row counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&s.Tenants, "SELECT COUNT(DISTINCT user_id) FROM clients WHERE deleted_at IS NULL", nil},
		{&s.Clients, "SELECT COUNT(*) FROM clients WHERE deleted_at IS NULL", nil},
		{&s.Projects, "SELECT COUNT(*) FROM projects WHERE deleted_at IS NULL", nil},
		{&s.Interactions, "SELECT COUNT(*) FROM interactions", nil},
		{&s.Insights, "SELECT COUNT(*) FROM insights_ia", nil},
		{&s.OpenInsights, "SELECT COUNT(*) FROM insights_ia WHERE statut = ?", []any{InsightStatusNew}},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query, q.args...).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
