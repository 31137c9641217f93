package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"koursa/client/internal/archive/domain"
	fichedomain "koursa/client/internal/fiche/domain"
)

const (
	insertRun = `INSERT INTO archive_sync_runs (id, started_at) VALUES ($1, $2)`
	finishRun = `UPDATE archive_sync_runs SET finished_at = $2, fiche_count = $3 WHERE id = $1`

	upsertFiche = `
INSERT INTO fiche_archive (
    id, ue_id, ue_label, representative_id, instructor_id, date_cours, heure_debut, heure_fin,
    hours, salle, type_seance, titre_chapitre, statut, motif_refus, date_soumission,
    date_validation, fiche_precedente, payload, sync_run, synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO UPDATE SET
    ue_id = EXCLUDED.ue_id,
    ue_label = EXCLUDED.ue_label,
    representative_id = EXCLUDED.representative_id,
    instructor_id = EXCLUDED.instructor_id,
    date_cours = EXCLUDED.date_cours,
    heure_debut = EXCLUDED.heure_debut,
    heure_fin = EXCLUDED.heure_fin,
    hours = EXCLUDED.hours,
    salle = EXCLUDED.salle,
    type_seance = EXCLUDED.type_seance,
    titre_chapitre = EXCLUDED.titre_chapitre,
    statut = EXCLUDED.statut,
    motif_refus = EXCLUDED.motif_refus,
    date_soumission = EXCLUDED.date_soumission,
    date_validation = EXCLUDED.date_validation,
    fiche_precedente = EXCLUDED.fiche_precedente,
    payload = EXCLUDED.payload,
    sync_run = EXCLUDED.sync_run,
    synced_at = EXCLUDED.synced_at`

	selectFiche = `SELECT payload, sync_run, synced_at FROM fiche_archive WHERE id = $1`

	hoursByUnit = `
SELECT ue_id, ue_label, COUNT(*), COALESCE(SUM(hours), 0)::float8
FROM fiche_archive
WHERE statut = $1 AND date_cours >= $2 AND date_cours < $3
GROUP BY ue_id, ue_label
ORDER BY ue_label, ue_id`
)

// PostgresRepository implements Repository on Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an archive repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// StartRun inserts the run row.
func (r *PostgresRepository) StartRun(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx, insertRun, run.ID, run.StartedAt)
	return err
}

// FinishRun updates the run row.
func (r *PostgresRepository) FinishRun(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx, finishRun, run.ID, run.FinishedAt, run.FicheCount)
	return err
}

// Upsert writes the snapshot of f. The full backend payload is kept as JSONB.
func (r *PostgresRepository) Upsert(ctx context.Context, f *fichedomain.Fiche, runID string, syncedAt time.Time) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fiche %d: %w", f.ID, err)
	}
	date, err := time.Parse("2006-01-02", f.Date)
	if err != nil {
		return fmt.Errorf("fiche %d: date_cours %q: %w", f.ID, f.Date, err)
	}
	var submitted sql.NullTime
	if !f.SubmittedAt.IsZero() {
		submitted = sql.NullTime{Time: f.SubmittedAt, Valid: true}
	}
	var validated sql.NullTime
	if f.ValidatedAt != nil {
		validated = sql.NullTime{Time: *f.ValidatedAt, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, upsertFiche,
		f.ID, f.UnitID, f.UnitName, nullInt(f.RepresentativeID), nullInt(f.InstructorID), date,
		fichedomain.ClockTime(f.StartTime), fichedomain.ClockTime(f.EndTime), f.Hours(), f.Room,
		string(f.SessionType), f.ChapterTitle, string(f.Status), f.RefusalReason, submitted,
		validated, nullInt(f.SupersedesID), payload, runID, syncedAt,
	)
	return err
}

// GetByID returns the archived fiche for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Record, error) {
	var payload []byte
	rec := &domain.Record{}
	err := r.db.QueryRowContext(ctx, selectFiche, id).Scan(&payload, &rec.RunID, &rec.SyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Fiche); err != nil {
		return nil, fmt.Errorf("decode archived fiche %d: %w", id, err)
	}
	return rec, nil
}

// HoursByUnit sums validated hours per unit between from (inclusive) and to (exclusive).
func (r *PostgresRepository) HoursByUnit(ctx context.Context, from, to time.Time) ([]domain.UnitHours, error) {
	rows, err := r.db.QueryContext(ctx, hoursByUnit, string(fichedomain.StatusValidated), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UnitHours
	for rows.Next() {
		var h domain.UnitHours
		if err := rows.Scan(&h.UnitID, &h.UnitLabel, &h.Sessions, &h.Hours); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
