// Package domain holds the interview entities, the error taxonomy and the
// ports implemented by adapters.
package domain

import (
	"context"
	"fmt"
	"time"
)

// Context is an alias so ports don't force adapters to import context directly.
type Context = context.Context

// InterviewType enumerates the supported interview configurations.
type InterviewType string

const (
	InterviewTechnical  InterviewType = "technical"
	InterviewBehavioral InterviewType = "behavioral"
	InterviewAptitude   InterviewType = "aptitude"
	InterviewDSA        InterviewType = "dsa"
	InterviewMixed      InterviewType = "mixed"
)

// Valid reports whether t is a known interview type.
func (t InterviewType) Valid() bool {
	switch t {
	case InterviewTechnical, InterviewBehavioral, InterviewAptitude, InterviewDSA, InterviewMixed:
		return true
	}
	return false
}

// Category is the category of a single question.
type Category string

const (
	CategoryTechnical  Category = "technical"
	CategoryBehavioral Category = "behavioral"
	CategoryAptitude   Category = "aptitude"
	CategoryDSA        Category = "dsa"
)

// Categories lists every category in plan order.
var Categories = []Category{CategoryTechnical, CategoryBehavioral, CategoryAptitude, CategoryDSA}

// Difficulty of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Experience levels understood by the planner. Others are treated as mid.
const (
	LevelEntry  = "entry"
	LevelMid    = "mid"
	LevelSenior = "senior"
)

// InterviewStatus is the lifecycle status of an interview.
type InterviewStatus string

const (
	StatusCreated    InterviewStatus = "created"
	StatusReady      InterviewStatus = "ready"
	StatusInProgress InterviewStatus = "in-progress"
	StatusCompleted  InterviewStatus = "completed"
)

// OwnerForm is the stored representation of an owner reference.
type OwnerForm string

const (
	// OwnerFormObject is the canonical form (an ObjectId).
	OwnerFormObject OwnerForm = "object"
	// OwnerFormString is the legacy form, a plain string holding the same value.
	OwnerFormString OwnerForm = "string"
)

// OwnerRef points at the user owning an interview.
type OwnerRef struct {
	ID   string    `json:"id"`
	Form OwnerForm `json:"form"`
}

// Canonical returns the reference in canonical form when its value allows it.
func (o OwnerRef) Canonical() OwnerRef {
	if o.ID != "" && IsObjectID(o.ID) {
		return OwnerRef{ID: o.ID, Form: OwnerFormObject}
	}
	return o
}

// IsLegacy reports whether the reference is stored in the legacy string form.
func (o OwnerRef) IsLegacy() bool { return o.ID != "" && o.Form == OwnerFormString }

// Interview is the root entity. QuestionSet, answers and PerformanceRecord
// reference it by ID.
// Invariant: CompletedAt != nil iff Status == StatusCompleted.
type Interview struct {
	ID                string
	Owner             OwnerRef
	JobTitle          string
	JobDesc           string
	CompanyName       string
	Skills            []string
	ProjectContext    []string
	WorkExDetails     []string
	InterviewType     InterviewType
	ExperienceLevel   string
	Status            InterviewStatus
	QuestionsCount    int
	EstimatedDuration int
	PerformanceID     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// Complete transitions the interview to completed. Calling it on an already
// completed interview keeps the original completion time.
func (iv *Interview) Complete(now time.Time) {
	if iv.Status == StatusCompleted && iv.CompletedAt != nil {
		return
	}
	t := now.UTC()
	iv.Status = StatusCompleted
	iv.CompletedAt = &t
	iv.UpdatedAt = t
}

// Reopen moves the interview back to status s, clearing completion.
func (iv *Interview) Reopen(s InterviewStatus, now time.Time) {
	iv.Status = s
	iv.CompletedAt = nil
	iv.UpdatedAt = now.UTC()
}

// Validate checks the entity invariants.
func (iv Interview) Validate() error {
	if iv.InterviewType != "" && !iv.InterviewType.Valid() {
		return fmt.Errorf("%w: unknown interview type %q", ErrInvalidArgument, iv.InterviewType)
	}
	if (iv.Status == StatusCompleted) != (iv.CompletedAt != nil) {
		return fmt.Errorf("%w: completedAt must be set iff status is completed", ErrInvalidArgument)
	}
	return nil
}

// Provenance tags where a question set came from.
type Provenance string

const (
	ProvenanceProvider Provenance = "provider"
	ProvenanceFallback Provenance = "fallback"
)

// Question is one generated interview question.
type Question struct {
	Index              int        `json:"index"`
	Category           Category   `json:"category"`
	Difficulty         Difficulty `json:"difficulty"`
	TimeLimitMinutes   int        `json:"timeLimit"`
	Points             int        `json:"points"`
	Prompt             string     `json:"question"`
	ExpectedAnswer     string     `json:"expectedAnswer,omitempty"`
	EvaluationCriteria []string   `json:"evaluationCriteria,omitempty"`
	Provider           string     `json:"provider,omitempty"`
	TestCaseRef        string     `json:"testCaseRef,omitempty"`
}

// QuestionSet is the ordered set of questions for one interview.
type QuestionSet struct {
	ID          string         `json:"id"`
	InterviewID string         `json:"interviewId"`
	Questions   []Question     `json:"questions"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Provenance  Provenance     `json:"provenance"`
	Providers   map[string]int `json:"providers,omitempty"`
	Regenerated bool           `json:"regenerate"`
	Degraded    bool           `json:"degraded"`
}

// Answer is a stored candidate answer. At most one per (interview, index).
type Answer struct {
	InterviewID   string    `json:"interviewId"`
	QuestionIndex int       `json:"questionIndex"`
	Text          string    `json:"answer"`
	SubmittedAt   time.Time `json:"timestamp"`
}

// CanonicalAnswer is the normalized (index, text) pair consumed by scoring.
type CanonicalAnswer struct {
	Index int
	Text  string
}

// QuestionScore is the score of one question.
type QuestionScore struct {
	Index    int      `json:"questionIndex"`
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	Answered bool     `json:"answered"`
}

// Feedback contains the qualitative feedback sections.
type Feedback struct {
	Overall         string   `json:"overall"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	Recommendations []string `json:"recommendations"`
}

// RoundResult summarizes one round (category) of an interview.
type RoundResult struct {
	RoundType string  `json:"roundType"`
	Score     float64 `json:"score"`
	Questions int     `json:"questions"`
}

// PerformanceSource tells whether a record was computed or client-supplied.
type PerformanceSource string

const (
	SourceScoring PerformanceSource = "scoring"
	SourceClient  PerformanceSource = "client"
)

// PerformanceRecord is the scoring outcome for an interview. One per
// interview; re-scoring overwrites it in place.
type PerformanceRecord struct {
	ID              string             `json:"id"`
	InterviewID     string             `json:"interviewId"`
	Owner           OwnerRef           `json:"owner"`
	JobTitle        string             `json:"jobTitle"`
	CompanyName     string             `json:"companyName"`
	InterviewType   InterviewType      `json:"interviewType"`
	ExperienceLevel string             `json:"experienceLevel"`
	QuestionScores  []QuestionScore    `json:"questionScores"`
	OverallScore    float64            `json:"overallScore"`
	ParameterScores map[string]float64 `json:"parameterScores"`
	Feedback        Feedback           `json:"feedback"`
	RoundResults    []RoundResult      `json:"roundResults"`
	TimeSpent       int                `json:"timeSpent"` // minutes
	TotalQuestions  int                `json:"totalQuestions"`
	CorrectAnswers  int                `json:"correctAnswers"`
	Source          PerformanceSource  `json:"source"`
	CompletedAt     time.Time          `json:"completedAt"`
	CreatedAt       time.Time          `json:"createdAt"`
}
