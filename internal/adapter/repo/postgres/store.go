// Package postgres stores interviews as JSONB documents in PostgreSQL.
//
// Each entity is one row; every write is a single statement, so readers see
// either the old or the new document.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

//go:embed schema.sql
var schema string

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Migrate creates the tables and indexes when missing.
func Migrate(ctx context.Context, p PgxPool) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("op=postgres.migrate: %w", err)
	}
	return nil
}

// NewStore wires the repositories over pool.
func NewStore(pool *pgxpool.Pool) domain.Store {
	st := Repos(pool)
	st.Ping = pool.Ping
	st.Close = func(context.Context) error {
		pool.Close()
		return nil
	}
	return st
}

// Repos returns the repositories over any PgxPool.
func Repos(p PgxPool) domain.Store {
	return domain.Store{
		Interviews:   &InterviewRepo{Pool: p},
		QuestionSets: &QuestionSetRepo{Pool: p},
		Answers:      &AnswerRepo{Pool: p},
		Performances: &PerformanceRepo{Pool: p},
	}
}

func startSpan(ctx context.Context, table, op, name string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("repo."+table).Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", table),
	)
	return ctx, span
}

func notFound(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// InterviewRepo persists interviews.
type InterviewRepo struct{ Pool PgxPool }

// Create inserts iv, assigning an id when empty.
func (r *InterviewRepo) Create(ctx domain.Context, iv domain.Interview) (string, error) {
	ctx, span := startSpan(ctx, "interviews", "INSERT", "interviews.Create")
	defer span.End()
	if iv.ID == "" {
		iv.ID = domain.NewID()
	}
	doc, err := encodeInterview(iv)
	if err != nil {
		return "", fmt.Errorf("op=interview.create: %w", err)
	}
	q := `INSERT INTO interviews (id, owner_id, status, created_at, doc) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q, iv.ID, iv.Owner.ID, string(iv.Status), iv.CreatedAt.UTC(), doc)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=interview.create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: interview %s exists", domain.ErrConflict, iv.ID)
	}
	return iv.ID, nil
}

// Get loads an interview by id.
func (r *InterviewRepo) Get(ctx domain.Context, id string) (domain.Interview, error) {
	ctx, span := startSpan(ctx, "interviews", "SELECT", "interviews.Get")
	defer span.End()
	var raw []byte
	if err := r.Pool.QueryRow(ctx, `SELECT doc FROM interviews WHERE id=$1`, id).Scan(&raw); err != nil {
		if notFound(err) {
			return domain.Interview{}, domain.ErrNotFound
		}
		return domain.Interview{}, fmt.Errorf("op=interview.get: %w", err)
	}
	iv, err := decodeInterview(raw)
	if err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.get: %w", err)
	}
	return iv, nil
}

// Update replaces the stored document.
func (r *InterviewRepo) Update(ctx domain.Context, iv domain.Interview) error {
	ctx, span := startSpan(ctx, "interviews", "UPDATE", "interviews.Update")
	defer span.End()
	doc, err := encodeInterview(iv)
	if err != nil {
		return fmt.Errorf("op=interview.update: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE interviews SET owner_id=$2, status=$3, doc=$4 WHERE id=$1`, iv.ID, iv.Owner.ID, string(iv.Status), doc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=interview.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes an interview row.
func (r *InterviewRepo) Delete(ctx domain.Context, id string) error {
	ctx, span := startSpan(ctx, "interviews", "DELETE", "interviews.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM interviews WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=interview.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOwner lists the owner's interviews newest first. Both owner forms
// store the same value in owner_id.
func (r *InterviewRepo) ListByOwner(ctx domain.Context, ownerID string, f domain.InterviewFilter) ([]domain.Interview, error) {
	ctx, span := startSpan(ctx, "interviews", "SELECT", "interviews.ListByOwner")
	defer span.End()
	excluded := make([]string, 0, len(f.ExcludeStatus))
	for _, s := range f.ExcludeStatus {
		excluded = append(excluded, string(s))
	}
	q := `SELECT doc FROM interviews WHERE owner_id=$1 AND status <> ALL($2::text[]) ORDER BY created_at DESC, id DESC`
	args := []any{ownerID, excluded}
	if f.Limit > 0 {
		q += ` LIMIT $3`
		args = append(args, f.Limit)
	}
	return r.list(ctx, "op=interview.list_by_owner", q, args...)
}

// ListAll returns every interview.
func (r *InterviewRepo) ListAll(ctx domain.Context) ([]domain.Interview, error) {
	ctx, span := startSpan(ctx, "interviews", "SELECT", "interviews.ListAll")
	defer span.End()
	return r.list(ctx, "op=interview.list_all", `SELECT doc FROM interviews ORDER BY created_at DESC, id DESC`)
}

func (r *InterviewRepo) list(ctx context.Context, op, q string, args ...any) ([]domain.Interview, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []domain.Interview
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		iv, err := decodeInterview(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// QuestionSetRepo persists one question set per interview.
type QuestionSetRepo struct{ Pool PgxPool }

// Get loads the set of an interview.
func (r *QuestionSetRepo) Get(ctx domain.Context, interviewID string) (domain.QuestionSet, error) {
	ctx, span := startSpan(ctx, "question_sets", "SELECT", "question_sets.Get")
	defer span.End()
	var raw []byte
	if err := r.Pool.QueryRow(ctx, `SELECT doc FROM question_sets WHERE interview_id=$1`, interviewID).Scan(&raw); err != nil {
		if notFound(err) {
			return domain.QuestionSet{}, domain.ErrNotFound
		}
		return domain.QuestionSet{}, fmt.Errorf("op=question_set.get: %w", err)
	}
	qs, err := decodeQuestionSet(raw)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("op=question_set.get: %w", err)
	}
	return qs, nil
}

// Replace upserts the whole set in one statement.
func (r *QuestionSetRepo) Replace(ctx domain.Context, qs domain.QuestionSet) error {
	ctx, span := startSpan(ctx, "question_sets", "UPSERT", "question_sets.Replace")
	defer span.End()
	if qs.ID == "" {
		qs.ID = uuid.NewString()
	}
	doc, err := json.Marshal(qs)
	if err != nil {
		return fmt.Errorf("op=question_set.replace: %w", err)
	}
	q := `INSERT INTO question_sets (interview_id, generated_at, doc) VALUES ($1,$2,$3)
ON CONFLICT (interview_id) DO UPDATE SET generated_at=EXCLUDED.generated_at, doc=EXCLUDED.doc`
	if _, err := r.Pool.Exec(ctx, q, qs.InterviewID, qs.GeneratedAt.UTC(), doc); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=question_set.replace: %w", err)
	}
	return nil
}

// Delete removes the set of an interview. A missing set is not an error.
func (r *QuestionSetRepo) Delete(ctx domain.Context, interviewID string) error {
	ctx, span := startSpan(ctx, "question_sets", "DELETE", "question_sets.Delete")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM question_sets WHERE interview_id=$1`, interviewID); err != nil {
		return fmt.Errorf("op=question_set.delete: %w", err)
	}
	return nil
}

// AnswerRepo persists answers keyed by (interview, question index).
type AnswerRepo struct{ Pool PgxPool }

// Upsert writes every answer in one statement; for repeated indices the last
// answer wins.
func (r *AnswerRepo) Upsert(ctx domain.Context, interviewID string, answers []domain.Answer) error {
	ctx, span := startSpan(ctx, "answers", "UPSERT", "answers.Upsert")
	defer span.End()
	if len(answers) == 0 {
		return nil
	}
	pos := make(map[int]int, len(answers))
	var (
		idx   []int32
		texts []string
		times []time.Time
	)
	for _, a := range answers {
		if p, ok := pos[a.QuestionIndex]; ok {
			texts[p], times[p] = a.Text, a.SubmittedAt.UTC()
			continue
		}
		pos[a.QuestionIndex] = len(idx)
		idx = append(idx, int32(a.QuestionIndex))
		texts = append(texts, a.Text)
		times = append(times, a.SubmittedAt.UTC())
	}
	span.SetAttributes(attribute.Int("answers.count", len(idx)))
	q := `INSERT INTO answers (interview_id, question_index, text, submitted_at)
SELECT $1, t.idx, t.txt, t.ts FROM unnest($2::int[], $3::text[], $4::timestamptz[]) AS t(idx, txt, ts)
ON CONFLICT (interview_id, question_index) DO UPDATE SET text=EXCLUDED.text, submitted_at=EXCLUDED.submitted_at`
	if _, err := r.Pool.Exec(ctx, q, interviewID, idx, texts, times); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=answer.upsert: %w", err)
	}
	return nil
}

// List returns answers ordered by question index.
func (r *AnswerRepo) List(ctx domain.Context, interviewID string) ([]domain.Answer, error) {
	ctx, span := startSpan(ctx, "answers", "SELECT", "answers.List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT question_index, text, submitted_at FROM answers WHERE interview_id=$1 ORDER BY question_index`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("op=answer.list: %w", err)
	}
	defer rows.Close()
	out := []domain.Answer{}
	for rows.Next() {
		a := domain.Answer{InterviewID: interviewID}
		if err := rows.Scan(&a.QuestionIndex, &a.Text, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("op=answer.list: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=answer.list: %w", err)
	}
	return out, nil
}

// DeleteAll removes every answer of an interview.
func (r *AnswerRepo) DeleteAll(ctx domain.Context, interviewID string) error {
	ctx, span := startSpan(ctx, "answers", "DELETE", "answers.DeleteAll")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM answers WHERE interview_id=$1`, interviewID); err != nil {
		return fmt.Errorf("op=answer.delete_all: %w", err)
	}
	return nil
}

// PerformanceRepo persists one PerformanceRecord per interview.
type PerformanceRepo struct{ Pool PgxPool }

// Upsert stores rec by interview id; an existing row keeps its id.
func (r *PerformanceRepo) Upsert(ctx domain.Context, rec domain.PerformanceRecord) (string, error) {
	ctx, span := startSpan(ctx, "performances", "UPSERT", "performances.Upsert")
	defer span.End()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("op=performance.upsert: %w", err)
	}
	q := `INSERT INTO performances (interview_id, id, owner_id, created_at, doc) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (interview_id) DO UPDATE SET owner_id=EXCLUDED.owner_id, created_at=EXCLUDED.created_at, doc=EXCLUDED.doc
RETURNING id`
	var id string
	if err := r.Pool.QueryRow(ctx, q, rec.InterviewID, rec.ID, rec.Owner.ID, rec.CreatedAt.UTC(), doc).Scan(&id); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=performance.upsert: %w", err)
	}
	return id, nil
}

// GetByInterview loads the record of an interview.
func (r *PerformanceRepo) GetByInterview(ctx domain.Context, interviewID string) (domain.PerformanceRecord, error) {
	ctx, span := startSpan(ctx, "performances", "SELECT", "performances.GetByInterview")
	defer span.End()
	var (
		id  string
		raw []byte
	)
	if err := r.Pool.QueryRow(ctx, `SELECT id, doc FROM performances WHERE interview_id=$1`, interviewID).Scan(&id, &raw); err != nil {
		if notFound(err) {
			return domain.PerformanceRecord{}, domain.ErrNotFound
		}
		return domain.PerformanceRecord{}, fmt.Errorf("op=performance.get: %w", err)
	}
	rec, err := decodePerformance(id, raw)
	if err != nil {
		return domain.PerformanceRecord{}, fmt.Errorf("op=performance.get: %w", err)
	}
	return rec, nil
}

// ListByOwner returns the owner's records newest first.
func (r *PerformanceRepo) ListByOwner(ctx domain.Context, ownerID string) ([]domain.PerformanceRecord, error) {
	ctx, span := startSpan(ctx, "performances", "SELECT", "performances.ListByOwner")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT id, doc FROM performances WHERE owner_id=$1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("op=performance.list_by_owner: %w", err)
	}
	defer rows.Close()
	var out []domain.PerformanceRecord
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("op=performance.list_by_owner: %w", err)
		}
		rec, err := decodePerformance(id, raw)
		if err != nil {
			return nil, fmt.Errorf("op=performance.list_by_owner: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=performance.list_by_owner: %w", err)
	}
	return out, nil
}

// Delete removes the record of an interview. A missing record is not an error.
func (r *PerformanceRepo) Delete(ctx domain.Context, interviewID string) error {
	ctx, span := startSpan(ctx, "performances", "DELETE", "performances.Delete")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM performances WHERE interview_id=$1`, interviewID); err != nil {
		return fmt.Errorf("op=performance.delete: %w", err)
	}
	return nil
}
