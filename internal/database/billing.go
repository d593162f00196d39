package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InsertLot inserts a project lot, generating an id when none is set.
func (db *DB) InsertLot(l *Lot) (string, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.StatutFacturation == "" {
		l.StatutFacturation = BillingDraft
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO project_lots (id, user_id, project_id, nom, montant_ht, montant_paye,
			statut_facturation, statut_livraison, date_facturation, date_livraison, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.ProjectID, l.Nom, l.MontantHT, l.MontantPaye,
		string(l.StatutFacturation), l.StatutLivraison,
		formatTimePtr(l.DateFacturation), formatTimePtr(l.DateLivraison), formatTime(l.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

// InsertLotEcheance inserts a lot installment.
func (db *DB) InsertLotEcheance(e *LotEcheance) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StatutFacturation == "" {
		e.StatutFacturation = BillingDraft
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO project_lot_echeances (id, user_id, lot_id, label, montant_ht,
			statut_facturation, date_facturation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.LotID, e.Label, e.MontantHT,
		string(e.StatutFacturation), formatTimePtr(e.DateFacturation), formatTime(e.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// InsertRecurrent inserts a recurring contract.
func (db *DB) InsertRecurrent(r *Recurrent) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Frequence == "" {
		r.Frequence = FreqMonthly
	}
	if r.Statut == "" {
		r.Statut = RecurrentActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO project_recurrents (id, user_id, project_id, label, montant_ht,
			frequence, statut, date_fin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.ProjectID, r.Label, r.MontantHT,
		string(r.Frequence), r.Statut, formatTimePtr(r.DateFin), formatTime(r.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// InsertRecurrentEcheance inserts a recurring contract installment.
func (db *DB) InsertRecurrentEcheance(e *RecurrentEcheance) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StatutFacturation == "" {
		e.StatutFacturation = BillingDraft
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO project_recurrent_echeances (id, user_id, recurrent_id, label, montant_ht,
			statut_facturation, date_facturation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.RecurrentID, e.Label, e.MontantHT,
		string(e.StatutFacturation), formatTimePtr(e.DateFacturation), formatTime(e.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// HasPaidLot reports whether a project has at least one paid lot.
func (db *DB) HasPaidLot(projectID string) (bool, error) {
	var id string
	err := db.conn.QueryRow(
		`SELECT id FROM project_lots
		WHERE project_id = ? AND statut_facturation = ? LIMIT 1`,
		projectID, string(BillingPaid),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OverdueInvoice is an invoiced-but-unpaid installment joined with its
// project and client, as the unpaid-invoice detector consumes it.
type OverdueInvoice struct {
	EcheanceID      string
	Label           string
	MontantHT       float64
	DateFacturation time.Time
	LotNom          string // empty for recurring installments
	ProjectID       string
	ClientID        string
	ClientNom       string
}

// OverdueLotEcheances returns lot installments invoiced before the cutoff and
// still unpaid, joined through their lot, project and client.
func (db *DB) OverdueLotEcheances(userID string, before time.Time) ([]OverdueInvoice, error) {
	rows, err := db.conn.Query(
		`SELECT e.id, e.label, e.montant_ht, e.date_facturation, l.nom, p.id, p.client_id, c.nom
		FROM project_lot_echeances e
		JOIN project_lots l ON l.id = e.lot_id
		JOIN projects p ON p.id = l.project_id
		JOIN clients c ON c.id = p.client_id
		WHERE e.user_id = ? AND e.statut_facturation = ?
		AND e.date_facturation IS NOT NULL AND e.date_facturation < ?
		AND p.deleted_at IS NULL`,
		userID, string(BillingInvoiced), formatTime(before),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOverdueInvoices(rows, true)
}

// OverdueRecurrentEcheances returns recurring installments invoiced before
// the cutoff and still unpaid.
func (db *DB) OverdueRecurrentEcheances(userID string, before time.Time) ([]OverdueInvoice, error) {
	rows, err := db.conn.Query(
		`SELECT e.id, e.label, e.montant_ht, e.date_facturation, p.id, p.client_id, c.nom
		FROM project_recurrent_echeances e
		JOIN project_recurrents r ON r.id = e.recurrent_id
		JOIN projects p ON p.id = r.project_id
		JOIN clients c ON c.id = p.client_id
		WHERE e.user_id = ? AND e.statut_facturation = ?
		AND e.date_facturation IS NOT NULL AND e.date_facturation < ?
		AND p.deleted_at IS NULL`,
		userID, string(BillingInvoiced), formatTime(before),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOverdueInvoices(rows, false)
}

func scanOverdueInvoices(rows *sql.Rows, withLot bool) ([]OverdueInvoice, error) {
	var invoices []OverdueInvoice
	for rows.Next() {
		var inv OverdueInvoice
		var facturation *string
		var err error
		if withLot {
			err = rows.Scan(&inv.EcheanceID, &inv.Label, &inv.MontantHT, &facturation,
				&inv.LotNom, &inv.ProjectID, &inv.ClientID, &inv.ClientNom)
		} else {
			err = rows.Scan(&inv.EcheanceID, &inv.Label, &inv.MontantHT, &facturation,
				&inv.ProjectID, &inv.ClientID, &inv.ClientNom)
		}
		if err != nil {
			return nil, err
		}
		inv.DateFacturation = parseTimeOrZero(facturation)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// CountOverdueLotEcheancesForClient counts a client's unpaid lot installments
// invoiced before the cutoff.
func (db *DB) CountOverdueLotEcheancesForClient(clientID string, before time.Time) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*)
		FROM project_lot_echeances e
		JOIN project_lots l ON l.id = e.lot_id
		JOIN projects p ON p.id = l.project_id
		WHERE p.client_id = ? AND e.statut_facturation = ?
		AND e.date_facturation IS NOT NULL AND e.date_facturation < ?`,
		clientID, string(BillingInvoiced), formatTime(before),
	).Scan(&count)
	return count, err
}

// CountExpiringRecurrentsForClient counts a client's active recurring
// contracts ending before the cutoff.
func (db *DB) CountExpiringRecurrentsForClient(clientID string, before time.Time) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*)
		FROM project_recurrents r
		JOIN projects p ON p.id = r.project_id
		WHERE p.client_id = ? AND r.statut = ?
		AND r.date_fin IS NOT NULL AND r.date_fin < ?`,
		clientID, RecurrentActive, formatTime(before),
	).Scan(&count)
	return count, err
}

// CountDeliveredLotsForClientSince counts a client's lots delivered on or
// after the cutoff.
func (db *DB) CountDeliveredLotsForClientSince(clientID string, since time.Time) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*)
		FROM project_lots l
		JOIN projects p ON p.id = l.project_id
		WHERE p.client_id = ? AND l.statut_livraison = ?
		AND l.date_livraison IS NOT NULL AND l.date_livraison >= ?`,
		clientID, DeliveryDelivered, formatTime(since),
	).Scan(&count)
	return count, err
}

// ActiveRecurrents returns a tenant's active recurring contracts.
func (db *DB) ActiveRecurrents(userID string) ([]Recurrent, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, project_id, label, montant_ht, frequence, statut, date_fin, created_at
		FROM project_recurrents WHERE user_id = ? AND statut = ?`,
		userID, RecurrentActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recurrents []Recurrent
	for rows.Next() {
		var r Recurrent
		var freq string
		var dateFin, createdAt *string
		if err := rows.Scan(&r.ID, &r.UserID, &r.ProjectID, &r.Label, &r.MontantHT,
			&freq, &r.Statut, &dateFin, &createdAt); err != nil {
			return nil, err
		}
		r.Frequence = Frequency(freq)
		r.DateFin = parseTimePtr(dateFin)
		r.CreatedAt = parseTimeOrZero(createdAt)
		recurrents = append(recurrents, r)
	}
	return recurrents, rows.Err()
}
