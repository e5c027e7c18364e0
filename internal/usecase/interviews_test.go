package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

func (f *fixture) interviews() usecase.InterviewService {
	s := usecase.NewInterviewService(f.store, f.locker, f.events)
	s.Now = f.clock
	return s
}

func TestCreate_ValidatesAndDefaults(t *testing.T) {
	f := newFixture(t)
	svc := f.interviews()

	_, err := svc.Create(context.Background(), ownerHex, usecase.CreateInput{JobTitle: "x", Skills: []string{" "}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	var ve *usecase.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Missing required fields", ve.Message)
	assert.Equal(t, map[string]string{"jobDesc": "required", "companyName": "required", "skills": "required"}, ve.Fields)

	_, err = svc.Create(context.Background(), ownerHex, usecase.CreateInput{JobDesc: "d", CompanyName: "c", Skills: []string{"Go"}, InterviewType: "trivia"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	iv, err := svc.Create(context.Background(), ownerHex, usecase.CreateInput{JobDesc: " d ", CompanyName: "c", Skills: []string{"Go", ""}})
	require.NoError(t, err)
	assert.True(t, domain.IsObjectID(iv.ID))
	assert.Equal(t, domain.InterviewMixed, iv.InterviewType)
	assert.Equal(t, domain.LevelMid, iv.ExperienceLevel)
	assert.Equal(t, domain.StatusCreated, iv.Status)
	assert.Equal(t, []string{"Go"}, iv.Skills)
	assert.Equal(t, "d", iv.JobDesc)
	assert.Equal(t, domain.OwnerFormObject, iv.Owner.Form)
	assert.Equal(t, 16, iv.QuestionsCount)
}

func TestOwnerFor(t *testing.T) {
	assert.Equal(t, domain.OwnerRef{}, usecase.OwnerFor(""))
	assert.Equal(t, domain.OwnerFormObject, usecase.OwnerFor(ownerHex).Form)
	assert.Equal(t, domain.OwnerFormString, usecase.OwnerFor("auth0|abc").Form)
}

func TestSetAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.interviews()
	id := f.generated(t, domain.InterviewDSA)

	res, err := svc.SetAnswers(ctx, id, json.RawMessage(`["first", 7]`), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AnswersCount)
	assert.Equal(t, domain.StatusInProgress, res.Status)
	require.Len(t, res.Warnings, 1)

	res, err = svc.SetAnswers(ctx, id, json.RawMessage(`[{"questionIndex":0,"answer":"replaced"},{"questionIndex":1,"answer":"second"}]`), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AnswersCount)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	stored, err := f.store.Answers.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "replaced", stored[0].Text)

	iv, err := f.store.Interviews.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, iv.CompletedAt)

	// later answers without complete keep the interview completed
	res, err = svc.SetAnswers(ctx, id, json.RawMessage(`["again"]`), false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
}

func TestSetAnswers_Invalid(t *testing.T) {
	f := newFixture(t)
	svc := f.interviews()
	id := f.generated(t, domain.InterviewDSA)

	_, err := svc.SetAnswers(context.Background(), "bad", json.RawMessage(`[]`), false)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.SetAnswers(context.Background(), id, json.RawMessage(`{"answer":"a"}`), false)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.SetAnswers(context.Background(), domain.NewID(), json.RawMessage(`[]`), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	svc := f.interviews()
	id := f.generated(t, domain.InterviewDSA)

	iv, err := svc.Complete(context.Background(), id)
	require.NoError(t, err)
	first := *iv.CompletedAt

	f.now = f.now.Add(time.Hour)
	iv, err = svc.Complete(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, iv.CompletedAt.Equal(first))

	_, err = svc.Complete(context.Background(), domain.NewID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	done := f.now
	for i := 0; i < 3; i++ {
		f.createInterview(t, domain.InterviewDSA, func(iv *domain.Interview) { iv.CreatedAt = f.now.Add(time.Duration(i) * time.Minute) })
	}
	f.createInterview(t, domain.InterviewDSA, withStatus(domain.StatusReady, nil))
	f.createInterview(t, domain.InterviewDSA, withStatus(domain.StatusCompleted, &done))
	f.createInterview(t, domain.InterviewDSA, legacyOwner(ownerHex), withStatus(domain.StatusInProgress, nil))
	f.createInterview(t, domain.InterviewDSA, func(iv *domain.Interview) { iv.Owner.ID = "65f0000000000000000000ff" })

	svc := f.interviews()
	out, err := svc.ListForUser(context.Background(), ownerHex, 0)
	require.NoError(t, err)
	assert.Equal(t, usecase.UserStats{Total: 6, Completed: 1, InProgress: 5}, out.Stats)
	require.Len(t, out.Interviews, 5)
	for i := 1; i < len(out.Interviews); i++ {
		assert.False(t, out.Interviews[i].CreatedAt.After(out.Interviews[i-1].CreatedAt))
	}
	for _, iv := range out.Interviews {
		assert.NotEqual(t, domain.StatusCompleted, iv.Status)
	}

	out, err = svc.ListForUser(context.Background(), ownerHex, 2)
	require.NoError(t, err)
	assert.Len(t, out.Interviews, 2)
	assert.Equal(t, 6, out.Stats.Total)

	_, err = svc.ListForUser(context.Background(), "", 10)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSavePerformance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.interviews()
	id := f.generated(t, domain.InterviewDSA)

	_, _, err := svc.SavePerformance(ctx, "", usecase.SavePerformanceInput{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, _, err = svc.SavePerformance(ctx, ownerHex, usecase.SavePerformanceInput{InterviewID: id})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	in := usecase.SavePerformanceInput{InterviewID: id, JobTitle: "Backend Engineer", CompanyName: "Acme", Score: 77.25, TimeSpent: 40}
	_, _, err = svc.SavePerformance(ctx, "65f0000000000000000000ff", in)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	perfID, updated, err := svc.SavePerformance(ctx, ownerHex, in)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEmpty(t, perfID)

	iv, err := f.store.Interviews.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, iv.Status)
	assert.Equal(t, perfID, iv.PerformanceID)

	rec, err := f.store.Performances.GetByInterview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceClient, rec.Source)
	assert.Equal(t, 77.3, rec.OverallScore)

	again, updated, err := svc.SavePerformance(ctx, ownerHex, in)
	require.NoError(t, err)
	assert.Equal(t, perfID, again)
	assert.False(t, updated)
}

func TestSummarize(t *testing.T) {
	mk := func(score float64, tech float64) domain.PerformanceRecord {
		return domain.PerformanceRecord{OverallScore: score, TimeSpent: 10, ParameterScores: map[string]float64{
			usecase.ParamTechnicalKnowledge: tech,
			usecase.ParamCompanyFit:         50,
		}}
	}

	s := usecase.Summarize(nil)
	assert.Equal(t, 0, s.TotalInterviews)
	assert.Empty(t, s.RecentPerformance)

	// fewer than six records: no trend
	s = usecase.Summarize([]domain.PerformanceRecord{mk(90, 80), mk(50, 80)})
	assert.Equal(t, 0.0, s.ImprovementTrend)
	assert.Equal(t, 70.0, s.AverageScore)
	assert.Equal(t, 20, s.TotalTimeSpent)
	assert.Equal(t, usecase.ParamTechnicalKnowledge, s.StrongestArea)
	assert.Equal(t, usecase.ParamCompanyFit, s.WeakestArea)

	// newest first: latest three average 80, previous three 60
	recs := []domain.PerformanceRecord{mk(80, 10), mk(70, 10), mk(90, 10), mk(60, 10), mk(50, 10), mk(70, 10), mk(10, 10)}
	s = usecase.Summarize(recs)
	assert.Equal(t, 20.0, s.ImprovementTrend)
	assert.Equal(t, usecase.ParamCompanyFit, s.StrongestArea)
	assert.Len(t, s.RecentPerformance, 5)
}

func TestPerformanceStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.interviews()

	stats, err := svc.PerformanceStats(ctx, ownerHex)
	require.NoError(t, err)
	assert.NotNil(t, stats.Performances)
	assert.Equal(t, 0, stats.Stats.TotalInterviews)

	_, err = svc.PerformanceStats(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.interviews()
	id := f.generated(t, domain.InterviewDSA)
	f.answer(t, id, "a")
	_, err := f.store.Performances.Upsert(ctx, domain.PerformanceRecord{InterviewID: id, Owner: domain.OwnerRef{ID: ownerHex}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "", id), domain.ErrUnauthorized)
	assert.ErrorIs(t, svc.Delete(ctx, ownerHex, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, svc.Delete(ctx, "65f0000000000000000000ff", id), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, ownerHex, domain.NewID()), domain.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, ownerHex, id))
	_, err = f.store.Interviews.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.QuestionSets.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	answers, err := f.store.Answers.List(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, answers)
	_, err = f.store.Performances.GetByInterview(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, f.events.types(), domain.EventInterviewDeleted)
}
