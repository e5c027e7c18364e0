package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/interview-prep/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleInterview() domain.Interview {
	return domain.Interview{
		Owner:           domain.OwnerRef{ID: "65f000000000000000000001", Form: domain.OwnerFormString},
		JobTitle:        "Backend Engineer",
		JobDesc:         "Build APIs",
		CompanyName:     "Acme",
		Skills:          []string{"go", "postgres"},
		InterviewType:   domain.InterviewTechnical,
		ExperienceLevel: domain.LevelMid,
		Status:          domain.StatusCreated,
		QuestionsCount:  12,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
}

func TestMigrate_ExecutesSchema(t *testing.T) {
	p := &poolStub{}
	require.NoError(t, postgres.Migrate(context.Background(), p))
	require.Len(t, p.calls, 1)
	assert.Contains(t, p.calls[0].sql, "CREATE TABLE IF NOT EXISTS interviews")
	assert.Contains(t, p.calls[0].sql, "CREATE TABLE IF NOT EXISTS performances")

	p = &poolStub{execErr: assert.AnError}
	err := postgres.Migrate(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=postgres.migrate")
}

func TestInterviewRepo_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		pool    *poolStub
		wantErr error
		errMsg  string
	}{
		{name: "assigns id", pool: &poolStub{execTag: "INSERT 0 1"}},
		{name: "keeps provided id", id: "65f0000000000000000000aa", pool: &poolStub{execTag: "INSERT 0 1"}},
		{name: "duplicate id", id: "65f0000000000000000000aa", pool: &poolStub{execTag: "INSERT 0 0"}, wantErr: domain.ErrConflict},
		{name: "database error", pool: &poolStub{execErr: assert.AnError}, errMsg: "op=interview.create"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &postgres.InterviewRepo{Pool: tt.pool}
			iv := sampleInterview()
			iv.ID = tt.id
			id, err := repo.Create(context.Background(), iv)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				return
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, domain.IsObjectID(id))
			if tt.id != "" {
				assert.Equal(t, tt.id, id)
			}
			args := tt.pool.calls[0].args
			assert.Equal(t, id, args[0])
			assert.Equal(t, "65f000000000000000000001", args[1])
			assert.Equal(t, "created", args[2])
		})
	}
}

func TestInterviewRepo_GetRoundTripsDocument(t *testing.T) {
	ctx := context.Background()
	w := &poolStub{execTag: "INSERT 0 1"}
	iv := sampleInterview()
	done := t0.Add(time.Hour)
	iv.Status, iv.CompletedAt, iv.PerformanceID = domain.StatusCompleted, &done, "perf-1"
	id, err := (&postgres.InterviewRepo{Pool: w}).Create(ctx, iv)
	require.NoError(t, err)
	doc := w.calls[0].args[4].([]byte)

	r := &poolStub{rows: []rowStub{{vals: []any{doc}}}}
	got, err := (&postgres.InterviewRepo{Pool: r}).Get(ctx, id)
	require.NoError(t, err)
	iv.ID = id
	assert.Equal(t, iv.Owner, got.Owner)
	assert.Equal(t, iv.Skills, got.Skills)
	assert.Equal(t, "perf-1", got.PerformanceID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.Equal(t, id, r.calls[0].args[0])
}

func TestInterviewRepo_GetMissing(t *testing.T) {
	p := &poolStub{rows: []rowStub{{err: pgx.ErrNoRows}}}
	_, err := (&postgres.InterviewRepo{Pool: p}).Get(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrNotFound)

	p = &poolStub{rows: []rowStub{{vals: []any{[]byte("{not json")}}}}
	_, err = (&postgres.InterviewRepo{Pool: p}).Get(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestInterviewRepo_UpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	p := &poolStub{execTag: "UPDATE 0"}
	repo := &postgres.InterviewRepo{Pool: p}
	iv := sampleInterview()
	iv.ID = "65f0000000000000000000aa"
	require.ErrorIs(t, repo.Update(ctx, iv), domain.ErrNotFound)

	p.execTag = "DELETE 0"
	require.ErrorIs(t, repo.Delete(ctx, iv.ID), domain.ErrNotFound)

	p.execTag = "UPDATE 1"
	require.NoError(t, repo.Update(ctx, iv))
	assert.Contains(t, p.calls[len(p.calls)-1].sql, "UPDATE interviews")
}

func TestInterviewRepo_ListByOwner(t *testing.T) {
	ctx := context.Background()
	a, _ := json.Marshal(map[string]any{"id": "a", "status": "ready"})
	b, _ := json.Marshal(map[string]any{"id": "b", "status": "created"})
	p := &poolStub{sets: [][][]any{{{a}, {b}}, {}}}
	repo := &postgres.InterviewRepo{Pool: p}

	got, err := repo.ListByOwner(ctx, "owner", domain.InterviewFilter{ExcludeStatus: []domain.InterviewStatus{domain.StatusCompleted}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, domain.StatusCreated, got[1].Status)
	assert.Contains(t, p.calls[0].sql, "LIMIT $3")
	assert.Equal(t, []any{"owner", []string{"completed"}, 5}, p.calls[0].args)

	got, err = repo.ListByOwner(ctx, "owner", domain.InterviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotContains(t, p.calls[1].sql, "LIMIT")
	assert.Len(t, p.calls[1].args, 2)

	p.queryErr = assert.AnError
	_, err = repo.ListAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=interview.list_all")
}

func TestQuestionSetRepo(t *testing.T) {
	ctx := context.Background()
	qs := domain.QuestionSet{
		InterviewID: "iv1",
		Questions:   []domain.Question{{Index: 0, Category: domain.CategoryDSA, Prompt: "Two sum", TimeLimitMinutes: 45}},
		GeneratedAt: t0,
		Provenance:  domain.ProvenanceFallback,
		Degraded:    true,
	}
	w := &poolStub{}
	require.NoError(t, (&postgres.QuestionSetRepo{Pool: w}).Replace(ctx, qs))
	assert.Contains(t, w.calls[0].sql, "ON CONFLICT (interview_id) DO UPDATE")
	doc := w.calls[0].args[2].([]byte)

	r := &poolStub{rows: []rowStub{{vals: []any{doc}}, {err: pgx.ErrNoRows}}}
	repo := &postgres.QuestionSetRepo{Pool: r}
	got, err := repo.Get(ctx, "iv1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.True(t, got.Degraded)
	assert.Equal(t, "Two sum", got.Questions[0].Prompt)

	_, err = repo.Get(ctx, "iv1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnswerRepo_UpsertLastWins(t *testing.T) {
	ctx := context.Background()
	p := &poolStub{}
	repo := &postgres.AnswerRepo{Pool: p}

	require.NoError(t, repo.Upsert(ctx, "iv1", nil))
	assert.Empty(t, p.calls)

	err := repo.Upsert(ctx, "iv1", []domain.Answer{
		{QuestionIndex: 2, Text: "first", SubmittedAt: t0},
		{QuestionIndex: 0, Text: "zero", SubmittedAt: t0},
		{QuestionIndex: 2, Text: "second", SubmittedAt: t0.Add(time.Minute)},
	})
	require.NoError(t, err)
	require.Len(t, p.calls, 1)
	args := p.calls[0].args
	assert.Equal(t, "iv1", args[0])
	assert.Equal(t, []int32{2, 0}, args[1])
	assert.Equal(t, []string{"second", "zero"}, args[2])
	assert.Equal(t, []time.Time{t0.Add(time.Minute), t0}, args[3])
	assert.Contains(t, p.calls[0].sql, "unnest")
}

func TestAnswerRepo_List(t *testing.T) {
	p := &poolStub{sets: [][][]any{{{0, "a", t0}, {3, "d", t0}}}}
	got, err := (&postgres.AnswerRepo{Pool: p}).List(context.Background(), "iv1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Answer{InterviewID: "iv1", QuestionIndex: 3, Text: "d", SubmittedAt: t0}, got[1])

	p = &poolStub{}
	got, err = (&postgres.AnswerRepo{Pool: p}).List(context.Background(), "iv1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPerformanceRepo(t *testing.T) {
	ctx := context.Background()
	rec := domain.PerformanceRecord{
		InterviewID:  "iv1",
		Owner:        domain.OwnerRef{ID: "owner", Form: domain.OwnerFormObject},
		OverallScore: 72.5,
		Source:       domain.SourceScoring,
	}
	p := &poolStub{rows: []rowStub{{vals: []any{"existing-id"}}}}
	id, err := (&postgres.PerformanceRepo{Pool: p}).Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)
	assert.Contains(t, p.calls[0].sql, "RETURNING id")
	assert.Equal(t, "owner", p.calls[0].args[2])
	doc := p.calls[0].args[4].([]byte)

	r := &poolStub{
		rows: []rowStub{{vals: []any{"existing-id", doc}}, {err: pgx.ErrNoRows}},
		sets: [][][]any{{{"existing-id", doc}}},
	}
	repo := &postgres.PerformanceRepo{Pool: r}
	got, err := repo.GetByInterview(ctx, "iv1")
	require.NoError(t, err)
	assert.Equal(t, "existing-id", got.ID)
	assert.Equal(t, 72.5, got.OverallScore)

	_, err = repo.GetByInterview(ctx, "iv1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	list, err := repo.ListByOwner(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "existing-id", list[0].ID)

	require.NoError(t, repo.Delete(ctx, "missing"))
}

func TestRepos_WiresEveryRepository(t *testing.T) {
	st := postgres.Repos(&poolStub{})
	assert.NotNil(t, st.Interviews)
	assert.NotNil(t, st.QuestionSets)
	assert.NotNil(t, st.Answers)
	assert.NotNil(t, st.Performances)
}
