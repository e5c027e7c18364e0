package domain

import "time"

// InterviewFilter narrows ListByOwner results.
type InterviewFilter struct {
	ExcludeStatus []InterviewStatus
	// Limit <= 0 means unlimited.
	Limit int
}

// InterviewRepository persists interviews.
type InterviewRepository interface {
	Create(ctx Context, iv Interview) (string, error)
	Get(ctx Context, id string) (Interview, error)
	// Update replaces the stored document atomically.
	Update(ctx Context, iv Interview) error
	Delete(ctx Context, id string) error
	// ListByOwner matches the owner id in either stored form, newest first.
	ListByOwner(ctx Context, ownerID string, f InterviewFilter) ([]Interview, error)
	// ListAll returns every interview, used by maintenance.
	ListAll(ctx Context) ([]Interview, error)
}

// QuestionSetRepository persists one question set per interview.
type QuestionSetRepository interface {
	Get(ctx Context, interviewID string) (QuestionSet, error)
	// Replace swaps the stored set as a single document write.
	Replace(ctx Context, qs QuestionSet) error
	Delete(ctx Context, interviewID string) error
}

// AnswerRepository persists answers keyed by (interview, question index).
type AnswerRepository interface {
	// Upsert writes each answer, replacing any existing one at the same index.
	Upsert(ctx Context, interviewID string, answers []Answer) error
	List(ctx Context, interviewID string) ([]Answer, error)
	DeleteAll(ctx Context, interviewID string) error
}

// PerformanceRepository persists one PerformanceRecord per interview.
type PerformanceRepository interface {
	// Upsert stores rec keyed by InterviewID and returns the record id. An
	// existing record keeps its id.
	Upsert(ctx Context, rec PerformanceRecord) (string, error)
	GetByInterview(ctx Context, interviewID string) (PerformanceRecord, error)
	ListByOwner(ctx Context, ownerID string) ([]PerformanceRecord, error)
	Delete(ctx Context, interviewID string) error
}

// Store groups the repositories behind one storage backend.
type Store struct {
	Interviews   InterviewRepository
	QuestionSets QuestionSetRepository
	Answers      AnswerRepository
	Performances PerformanceRepository
	Ping         func(ctx Context) error
	Close        func(ctx Context) error
}

// Quota is the required number of questions for one category.
type Quota struct {
	Category         Category   `json:"category"`
	Count            int        `json:"count"`
	TimeLimitMinutes int        `json:"timeLimit"`
	Difficulty       Difficulty `json:"difficulty"`
	Points           int        `json:"points"`
}

// GenerationRequest is what a provider is asked to produce.
type GenerationRequest struct {
	InterviewID     string
	JobTitle        string
	JobDesc         string
	CompanyName     string
	Skills          []string
	ProjectContext  []string
	WorkExDetails   []string
	InterviewType   InterviewType
	ExperienceLevel string
	Quotas          []Quota
}

// Total returns the number of questions requested.
func (r GenerationRequest) Total() int {
	n := 0
	for _, q := range r.Quotas {
		n += q.Count
	}
	return n
}

// QuestionProvider generates questions for a request. Implementations may
// return fewer questions than requested; callers fit and top up.
type QuestionProvider interface {
	Name() string
	Generate(ctx Context, req GenerationRequest) ([]Question, error)
}

// Scorer computes per-question scores and feedback for canonical answers.
type Scorer interface {
	Score(ctx Context, iv Interview, qs QuestionSet, answers []CanonicalAnswer) (PerformanceRecord, error)
}

// Locker provides exclusive per-key leases.
type Locker interface {
	// Acquire returns ErrConflict when the key is already held.
	Acquire(ctx Context, key string) (release func(), err error)
}

// Event is a domain event published after state changes.
type Event struct {
	Type        string         `json:"type"`
	InterviewID string         `json:"interviewId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Event types.
const (
	EventQuestionsGenerated = "questions.generated"
	EventInterviewScored    = "interview.scored"
	EventInterviewRepaired  = "interview.repaired"
	EventInterviewDeleted   = "interview.deleted"
)

// EventPublisher publishes domain events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx Context, ev Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Context, Event) error { return nil }
