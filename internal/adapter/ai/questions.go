package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// rawQuestion accepts the field spellings seen across providers.
type rawQuestion struct {
	Question           string          `json:"question"`
	Prompt             string          `json:"prompt"`
	Text               string          `json:"text"`
	Category           string          `json:"category"`
	Type               string          `json:"type"`
	Difficulty         string          `json:"difficulty"`
	ExpectedAnswer     string          `json:"expectedAnswer"`
	ExpectedAnswerAlt  string          `json:"expected_answer"`
	EvaluationCriteria json.RawMessage `json:"evaluationCriteria"`
	TestCaseRef        string          `json:"testCaseRef"`
}

func (r rawQuestion) toDomain(provider string, fallbackCategory string) domain.Question {
	q := domain.Question{
		Prompt:         firstNonEmpty(r.Question, r.Prompt, r.Text),
		Category:       domain.Category(firstNonEmpty(r.Category, r.Type, fallbackCategory)),
		Difficulty:     domain.Difficulty(strings.ToLower(strings.TrimSpace(r.Difficulty))),
		ExpectedAnswer: firstNonEmpty(r.ExpectedAnswer, r.ExpectedAnswerAlt),
		Provider:       provider,
		TestCaseRef:    r.TestCaseRef,
	}
	q.EvaluationCriteria = decodeCriteria(r.EvaluationCriteria)
	return q
}

// decodeCriteria accepts a list of strings or a single string.
func decodeCriteria(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && strings.TrimSpace(one) != "" {
		return []string{one}
	}
	return nil
}

// DecodeQuestions extracts and decodes questions from raw model output. The
// payload may be {"questions":[...]}, a bare array, or an object keyed by
// category name. An empty result is an invalid_output error.
func DecodeQuestions(provider, content string) ([]domain.Question, error) {
	payload, err := NewResponseCleaner().ExtractJSON(content)
	if err != nil {
		return nil, NewProviderError(provider, CodeInvalidOutput, err)
	}
	out, err := decodePayload(provider, []byte(payload))
	if err != nil {
		return nil, NewProviderError(provider, CodeInvalidOutput, err)
	}
	if len(out) == 0 {
		return nil, NewProviderError(provider, CodeInvalidOutput, fmt.Errorf("%w: no questions in payload", domain.ErrSchemaInvalid))
	}
	return out, nil
}

func decodePayload(provider string, payload []byte) ([]domain.Question, error) {
	var arr []rawQuestion
	if err := json.Unmarshal(payload, &arr); err == nil {
		return convert(provider, "", arr), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: payload is neither array nor object", domain.ErrSchemaInvalid)
	}
	if inner, ok := obj["questions"]; ok {
		return decodePayload(provider, inner)
	}
	// single question object
	if _, ok := obj["question"]; ok {
		var one rawQuestion
		if err := json.Unmarshal(payload, &one); err == nil {
			return convert(provider, "", []rawQuestion{one}), nil
		}
	}
	var out []domain.Question
	for _, c := range domain.Categories {
		for key, raw := range obj {
			if !strings.EqualFold(key, string(c)) {
				continue
			}
			var list []rawQuestion
			if err := json.Unmarshal(raw, &list); err != nil {
				continue
			}
			out = append(out, convert(provider, string(c), list)...)
		}
	}
	return out, nil
}

func convert(provider, category string, in []rawQuestion) []domain.Question {
	out := make([]domain.Question, 0, len(in))
	for _, r := range in {
		q := r.toDomain(provider, category)
		if strings.TrimSpace(q.Prompt) == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
