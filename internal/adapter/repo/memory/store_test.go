package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/memory"
	"github.com/fairyhunter13/interview-prep/internal/domain"
)

func TestInterviews_CRUDAndListing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New().Domain()
	owner := domain.NewID()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i, status := range []domain.InterviewStatus{domain.StatusCreated, domain.StatusCompleted, domain.StatusInProgress} {
		iv := domain.Interview{Owner: domain.OwnerRef{ID: owner, Form: domain.OwnerFormObject}, Status: status, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if status == domain.StatusCompleted {
			now := base
			iv.CompletedAt = &now
		}
		id, err := st.Interviews.Create(ctx, iv)
		require.NoError(t, err)
		require.True(t, domain.IsObjectID(id))
		ids = append(ids, id)
	}
	_, err := st.Interviews.Create(ctx, domain.Interview{Owner: domain.OwnerRef{ID: owner, Form: domain.OwnerFormString}, CreatedAt: base.Add(5 * time.Hour)})
	require.NoError(t, err)
	_, err = st.Interviews.Create(ctx, domain.Interview{Owner: domain.OwnerRef{ID: domain.NewID()}})
	require.NoError(t, err)

	all, err := st.Interviews.ListByOwner(ctx, owner, domain.InterviewFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4, "legacy string owners match too")
	assert.Equal(t, domain.OwnerFormString, all[0].Owner.Form, "newest first")

	open, err := st.Interviews.ListByOwner(ctx, owner, domain.InterviewFilter{ExcludeStatus: []domain.InterviewStatus{domain.StatusCompleted}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, iv := range open {
		assert.NotEqual(t, domain.StatusCompleted, iv.Status)
	}

	got, err := st.Interviews.Get(ctx, ids[0])
	require.NoError(t, err)
	got.Skills = append(got.Skills, "mutated")
	got.Status = domain.StatusReady
	require.NoError(t, st.Interviews.Update(ctx, got))

	again, err := st.Interviews.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, again.Status)
	again.Skills[0] = "changed after read"
	reread, _ := st.Interviews.Get(ctx, ids[0])
	assert.Equal(t, []string{"mutated"}, reread.Skills, "reads are copies")

	require.NoError(t, st.Interviews.Delete(ctx, ids[0]))
	_, err = st.Interviews.Get(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, st.Interviews.Delete(ctx, ids[0]), domain.ErrNotFound)
	assert.ErrorIs(t, st.Interviews.Update(ctx, domain.Interview{ID: ids[0]}), domain.ErrNotFound)

	everything, err := st.Interviews.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, everything, 4)
}

func TestQuestionSets_ReplaceSupersedes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New().Domain()

	_, err := st.QuestionSets.Get(ctx, "iv")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, st.QuestionSets.Replace(ctx, domain.QuestionSet{InterviewID: "iv", Questions: make([]domain.Question, 3)}))
	require.NoError(t, st.QuestionSets.Replace(ctx, domain.QuestionSet{InterviewID: "iv", Questions: make([]domain.Question, 2), Regenerated: true}))

	qs, err := st.QuestionSets.Get(ctx, "iv")
	require.NoError(t, err)
	assert.Len(t, qs.Questions, 2)
	assert.True(t, qs.Regenerated)
	assert.NotEmpty(t, qs.ID)

	require.NoError(t, st.QuestionSets.Delete(ctx, "iv"))
	_, err = st.QuestionSets.Get(ctx, "iv")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnswers_UpsertByIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New().Domain()

	require.NoError(t, st.Answers.Upsert(ctx, "iv", []domain.Answer{{QuestionIndex: 1, Text: "b"}, {QuestionIndex: 0, Text: "a"}}))
	require.NoError(t, st.Answers.Upsert(ctx, "iv", []domain.Answer{{QuestionIndex: 1, Text: "b2"}}))

	got, err := st.Answers.List(ctx, "iv")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b2", got[1].Text)
	assert.Equal(t, "iv", got[1].InterviewID)

	require.NoError(t, st.Answers.DeleteAll(ctx, "iv"))
	got, err = st.Answers.List(ctx, "iv")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPerformances_UpsertKeepsID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New().Domain()
	owner := domain.NewID()

	id, err := st.Performances.Upsert(ctx, domain.PerformanceRecord{InterviewID: "iv1", Owner: domain.OwnerRef{ID: owner}, OverallScore: 40})
	require.NoError(t, err)
	id2, err := st.Performances.Upsert(ctx, domain.PerformanceRecord{ID: "ignored", InterviewID: "iv1", Owner: domain.OwnerRef{ID: owner}, OverallScore: 80})
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	rec, err := st.Performances.GetByInterview(ctx, "iv1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, rec.OverallScore)

	_, err = st.Performances.Upsert(ctx, domain.PerformanceRecord{InterviewID: "iv2", Owner: domain.OwnerRef{ID: owner}, CreatedAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	list, err := st.Performances.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "iv2", list[0].InterviewID)

	require.NoError(t, st.Performances.Delete(ctx, "iv1"))
	_, err = st.Performances.GetByInterview(ctx, "iv1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
