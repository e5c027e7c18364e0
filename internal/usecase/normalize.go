package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/pkg/textx"
)

// AnswerShape is one of the accepted element shapes of an answers payload.
type AnswerShape interface {
	answerShape()
}

// StringAnswer is a bare string; its index is its position.
type StringAnswer struct{ Text string }

// IndexedAnswer is an object carrying questionIndex.
type IndexedAnswer struct {
	Index int
	Text  string
}

// BareAnswer is an object without questionIndex; its index is its position.
type BareAnswer struct{ Text string }

func (StringAnswer) answerShape()  {}
func (IndexedAnswer) answerShape() {}
func (BareAnswer) answerShape()    {}

// NormalizeWarning reports a skipped element.
type NormalizeWarning struct {
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

func (w NormalizeWarning) String() string {
	if w.Position < 0 {
		return w.Reason
	}
	return fmt.Sprintf("element %d: %s", w.Position, w.Reason)
}

// textKeys are tried in order when reading an answer object.
var textKeys = []string{"answer", "text", "response", "content"}

// ResolveAnswer classifies one raw payload element.
func ResolveAnswer(raw json.RawMessage) (AnswerShape, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty element")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid string: %w", err)
		}
		return StringAnswer{Text: s}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("invalid object: %w", err)
		}
		text, ok := objectText(obj)
		if !ok {
			return nil, errors.New("object has no answer text")
		}
		idxRaw, hasIdx := obj["questionIndex"]
		if !hasIdx || string(bytes.TrimSpace(idxRaw)) == "null" {
			return BareAnswer{Text: text}, nil
		}
		idx, err := questionIndex(idxRaw)
		if err != nil {
			return nil, err
		}
		return IndexedAnswer{Index: idx, Text: text}, nil
	case 'n':
		return nil, errors.New("null element")
	case '[':
		return nil, errors.New("nested array")
	default:
		return nil, fmt.Errorf("unsupported element %s", textx.Truncate(string(raw), 32))
	}
}

func objectText(obj map[string]json.RawMessage) (string, bool) {
	for _, k := range textKeys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s, true
		}
	}
	return "", false
}

func questionIndex(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, errors.New("questionIndex is not a number")
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("questionIndex %v is not a non-negative integer", f)
	}
	return int(f), nil
}

// NormalizeAnswers turns an answers payload into canonical (index, text)
// pairs ordered by index, one per index, later entries overriding earlier
// ones. Elements that cannot be understood are skipped with a warning.
func NormalizeAnswers(raw json.RawMessage) ([]domain.CanonicalAnswer, []NormalizeWarning) {
	var elems []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' || json.Unmarshal(trimmed, &elems) != nil {
		return []domain.CanonicalAnswer{}, []NormalizeWarning{{Position: -1, Reason: "answers payload is not an array"}}
	}

	byIndex := make(map[int]string, len(elems))
	var warnings []NormalizeWarning
	for pos, el := range elems {
		shape, err := ResolveAnswer(el)
		if err != nil {
			warnings = append(warnings, NormalizeWarning{Position: pos, Reason: err.Error()})
			continue
		}
		switch a := shape.(type) {
		case StringAnswer:
			byIndex[pos] = a.Text
		case BareAnswer:
			byIndex[pos] = a.Text
		case IndexedAnswer:
			byIndex[a.Index] = a.Text
		}
	}
	return canonical(byIndex), warnings
}

// NormalizeStored applies the same dedupe and ordering to stored answers.
func NormalizeStored(answers []domain.Answer) []domain.CanonicalAnswer {
	byIndex := make(map[int]string, len(answers))
	for _, a := range answers {
		if a.QuestionIndex < 0 {
			continue
		}
		byIndex[a.QuestionIndex] = a.Text
	}
	return canonical(byIndex)
}

func canonical(byIndex map[int]string) []domain.CanonicalAnswer {
	out := make([]domain.CanonicalAnswer, 0, len(byIndex))
	for i, text := range byIndex {
		out = append(out, domain.CanonicalAnswer{Index: i, Text: text})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}
