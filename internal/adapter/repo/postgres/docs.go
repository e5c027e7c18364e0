package postgres

import (
	"encoding/json"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// interviewDoc is the JSONB layout of the interviews.doc column.
type interviewDoc struct {
	ID                string                 `json:"id"`
	Owner             domain.OwnerRef        `json:"owner"`
	JobTitle          string                 `json:"jobTitle"`
	JobDesc           string                 `json:"jobDesc"`
	CompanyName       string                 `json:"companyName"`
	Skills            []string               `json:"skills"`
	ProjectContext    []string               `json:"projectContext,omitempty"`
	WorkExDetails     []string               `json:"workExDetails,omitempty"`
	InterviewType     domain.InterviewType   `json:"interviewType"`
	ExperienceLevel   string                 `json:"experienceLevel"`
	Status            domain.InterviewStatus `json:"status"`
	QuestionsCount    int                    `json:"questionsCount"`
	EstimatedDuration int                    `json:"estimatedDuration"`
	PerformanceID     string                 `json:"performanceId,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
}

func encodeInterview(iv domain.Interview) ([]byte, error) {
	return json.Marshal(interviewDoc(iv))
}

func decodeInterview(raw []byte) (domain.Interview, error) {
	var d interviewDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Interview{}, err
	}
	return domain.Interview(d), nil
}

func decodeQuestionSet(raw []byte) (domain.QuestionSet, error) {
	var qs domain.QuestionSet
	err := json.Unmarshal(raw, &qs)
	return qs, err
}

func decodePerformance(id string, raw []byte) (domain.PerformanceRecord, error) {
	var rec domain.PerformanceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.PerformanceRecord{}, err
	}
	rec.ID = id
	return rec, nil
}
