package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

// stringList accepts a JSON array of strings or one comma-separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("expected a string or an array of strings")
	}
	*l = strings.Split(s, ",")
	return nil
}

type createInterviewRequest struct {
	JobTitle        string     `json:"jobTitle" validate:"max=200"`
	JobDesc         string     `json:"jobDesc" validate:"max=20000"`
	CompanyName     string     `json:"companyName" validate:"max=200"`
	Skills          stringList `json:"skills" validate:"max=50"`
	ProjectContext  stringList `json:"projectContext" validate:"max=20"`
	WorkExDetails   stringList `json:"workExDetails" validate:"max=20"`
	ExperienceLevel string     `json:"experienceLevel" validate:"max=32"`
	InterviewType   string     `json:"interviewType" validate:"max=32"`
}

type generateRequest struct {
	InterviewID string `json:"interviewId" validate:"required,len=24,hexadecimal"`
	Regenerate  bool   `json:"regenerate"`
}

type interviewIDRequest struct {
	InterviewID string `json:"interviewId" validate:"required,len=24,hexadecimal"`
}

type setAnswersRequest struct {
	Data     json.RawMessage `json:"data"`
	ID       string          `json:"id" validate:"required,len=24,hexadecimal"`
	Complete bool            `json:"complete"`
}

type savePerformanceRequest struct {
	InterviewID     string               `json:"interviewId" validate:"required,len=24,hexadecimal"`
	JobTitle        string               `json:"jobTitle" validate:"required,max=200"`
	CompanyName     string               `json:"companyName" validate:"required,max=200"`
	Score           *float64             `json:"score" validate:"required,min=0,max=100"`
	InterviewType   string               `json:"interviewType"`
	ExperienceLevel string               `json:"experienceLevel"`
	ParameterScores map[string]float64   `json:"parameterScores"`
	Feedback        domain.Feedback      `json:"feedback"`
	RoundResults    []domain.RoundResult `json:"roundResults"`
	TimeSpent       int                  `json:"timeSpent" validate:"min=0"`
	TotalQuestions  int                  `json:"totalQuestions" validate:"min=0"`
	CorrectAnswers  int                  `json:"correctAnswers" validate:"min=0"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// decode reads a JSON body of at most limit bytes into dst and validates it.
// An empty body decodes as {} when allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, limit int64, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case errors.Is(err, io.EOF) && allowEmpty:
	case err != nil:
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: request body too large", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	return validate(dst)
}

// validate runs struct tags and reports failing fields by JSON name.
func validate(dst any) error {
	err := getValidator().Struct(dst)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	msg := "Validation failed"
	for _, tag := range fields {
		if tag == "required" {
			msg = "Missing required fields"
			break
		}
	}
	return &usecase.ValidationError{Message: msg, Fields: fields}
}
