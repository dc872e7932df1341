// Package call persists and expires the "call" events the display panels
// show.
package call

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chamada/internal/classify"
)

// ErrStoreUnavailable wraps every storage failure surfaced to handlers.
var ErrStoreUnavailable = errors.New("call store unavailable")

// Event is one paging event. Immutable once written except for deletion.
type Event struct {
	ID          string          `json:"id"`
	StudentID   string          `json:"id_aluno"`
	StudentName string          `json:"nomeCompleto"`
	ClassLabel  string          `json:"turma"`
	Colecao     classify.Bucket `json:"colecao"`
	CreatedAt   time.Time       `json:"timestamp"`
	CallDate    string          `json:"data_chamada"`
}

// Repository persists call events. DeleteOlderThan must delete at most batch
// rows per call so sweeps respect the store's batch limits.
type Repository interface {
	Insert(ctx context.Context, evt Event) error
	CountByStudentAndDate(ctx context.Context, colecao classify.Bucket, studentID, date string) (int, error)
	ListSince(ctx context.Context, colecao classify.Bucket, cutoff time.Time) ([]Event, error)
	DeleteOlderThan(ctx context.Context, colecao classify.Bucket, cutoff time.Time, batch int) (int, error)
	DeleteAll(ctx context.Context) error
}

// PostgresRepository stores events in the chamados table, one logical
// collection per colecao value.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes a new event. The timestamp is assigned by the database
// server for consistency across instances.
func (r *PostgresRepository) Insert(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chamados (id, aluno_id, nome, turma, colecao, criado_em, data_chamada)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
	`, evt.ID, evt.StudentID, evt.StudentName, evt.ClassLabel, string(evt.Colecao), evt.CallDate)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CountByStudentAndDate counts a student's events on a calendar date within
// one collection.
func (r *PostgresRepository) CountByStudentAndDate(ctx context.Context, colecao classify.Bucket, studentID, date string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chamados
		WHERE colecao = $1 AND aluno_id = $2 AND data_chamada = $3
	`, string(colecao), studentID, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// ListSince returns the events of one collection created at or after cutoff,
// oldest first.
func (r *PostgresRepository) ListSince(ctx context.Context, colecao classify.Bucket, cutoff time.Time) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aluno_id, nome, turma, colecao, criado_em, data_chamada
		FROM chamados
		WHERE colecao = $1 AND criado_em >= $2
		ORDER BY criado_em
	`, string(colecao), cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var colecaoStr string
		if err := rows.Scan(&evt.ID, &evt.StudentID, &evt.StudentName, &evt.ClassLabel, &colecaoStr, &evt.CreatedAt, &evt.CallDate); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreUnavailable, err)
		}
		evt.Colecao = classify.Bucket(colecaoStr)
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// DeleteOlderThan removes up to batch events of one collection older than
// cutoff and reports how many went away.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, colecao classify.Bucket, cutoff time.Time, batch int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM chamados
		WHERE ctid IN (
			SELECT ctid FROM chamados
			WHERE colecao = $1 AND criado_em < $2
			LIMIT $3
		)
	`, string(colecao), cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("%w: delete batch: %v", ErrStoreUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteAll wipes every collection. Destructive, no confirmation here.
func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chamados`); err != nil {
		return fmt.Errorf("%w: delete all: %v", ErrStoreUnavailable, err)
	}
	return nil
}
