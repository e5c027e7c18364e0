// Package heuristic is the terminal question provider. It fills templates
// from a YAML bank and never fails, so every quota can be satisfied offline.
package heuristic

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Name is the provider name recorded on generated questions.
const Name = "heuristic"

//go:embed bank.yaml
var defaultBank []byte

// Template is a fill-in question for the non-coding categories.
type Template struct {
	Prompt   string   `yaml:"prompt"`
	Expected string   `yaml:"expected"`
	Criteria []string `yaml:"criteria"`
}

// Problem is a coding problem for the dsa category.
type Problem struct {
	Ref         string            `yaml:"ref"`
	Title       string            `yaml:"title"`
	Difficulty  domain.Difficulty `yaml:"difficulty"`
	Description string            `yaml:"description"`
	Criteria    []string          `yaml:"criteria"`
}

// Bank is the question bank file layout.
type Bank struct {
	Technical  []Template `yaml:"technical"`
	Behavioral []Template `yaml:"behavioral"`
	Aptitude   []Template `yaml:"aptitude"`
	DSA        []Problem  `yaml:"dsa"`
}

func (b Bank) templates(c domain.Category) []Template {
	switch c {
	case domain.CategoryTechnical:
		return b.Technical
	case domain.CategoryBehavioral:
		return b.Behavioral
	case domain.CategoryAptitude:
		return b.Aptitude
	}
	return nil
}

// ParseBank decodes a bank and rejects one missing a category.
func ParseBank(data []byte) (Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bank{}, fmt.Errorf("op=heuristic.ParseBank: %w", err)
	}
	if len(b.Technical) == 0 || len(b.Behavioral) == 0 || len(b.Aptitude) == 0 || len(b.DSA) == 0 {
		return Bank{}, fmt.Errorf("op=heuristic.ParseBank: every category needs at least one entry")
	}
	return b, nil
}

// Generator implements domain.QuestionProvider from a Bank.
type Generator struct {
	bank Bank
}

// New returns a generator over the embedded bank, or over path when set.
func New(path string) (*Generator, error) {
	data := defaultBank
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("op=heuristic.New: %w", err)
		}
		data = b
	}
	bank, err := ParseBank(data)
	if err != nil {
		return nil, err
	}
	return &Generator{bank: bank}, nil
}

// MustDefault returns the generator over the embedded bank.
func MustDefault() *Generator {
	g, err := New("")
	if err != nil {
		panic(err)
	}
	return g
}

// Name implements domain.QuestionProvider.
func (g *Generator) Name() string { return Name }

// Generate returns exactly req.Total() questions in quota order. The output
// depends only on req.
func (g *Generator) Generate(_ domain.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	return g.Fill(req), nil
}

// Fill is Generate without the error return.
func (g *Generator) Fill(req domain.GenerationRequest) []domain.Question {
	skills := nonEmpty(req.Skills)
	if len(skills) == 0 {
		skills = []string{"software engineering"}
	}
	out := make([]domain.Question, 0, req.Total())
	skillIdx := 0
	for _, quota := range req.Quotas {
		for i := 0; i < quota.Count; i++ {
			q := domain.Question{
				Index:            len(out),
				Category:         quota.Category,
				Difficulty:       quota.Difficulty,
				TimeLimitMinutes: quota.TimeLimitMinutes,
				Points:           quota.Points,
				Provider:         Name,
			}
			if quota.Category == domain.CategoryDSA {
				p := g.problem(quota.Difficulty, i)
				q.Prompt = p.Title + ": " + p.Description
				q.ExpectedAnswer = fmt.Sprintf("A correct, tested solution to %s with its time and space complexity explained.", p.Title)
				q.EvaluationCriteria = append([]string(nil), p.Criteria...)
				q.TestCaseRef = p.Ref
			} else {
				tmpls := g.bank.templates(quota.Category)
				t := tmpls[i%len(tmpls)]
				fill := strings.NewReplacer(
					"{skill}", skills[skillIdx%len(skills)],
					"{jobTitle}", orDefault(req.JobTitle, "Software Engineer"),
					"{company}", orDefault(req.CompanyName, "the company"),
				)
				skillIdx++
				q.Prompt = fill.Replace(t.Prompt)
				if round := i / len(tmpls); round > 0 {
					q.Prompt = fmt.Sprintf("%s (Give a different example than before, round %d.)", q.Prompt, round+1)
				}
				q.ExpectedAnswer = fill.Replace(t.Expected)
				for _, c := range t.Criteria {
					q.EvaluationCriteria = append(q.EvaluationCriteria, fill.Replace(c))
				}
			}
			out = append(out, q)
		}
	}
	return out
}

// problem picks the i-th problem matching difficulty, or from the whole list
// when none match.
func (g *Generator) problem(d domain.Difficulty, i int) Problem {
	var pool []Problem
	for _, p := range g.bank.DSA {
		if p.Difficulty == d {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		pool = g.bank.DSA
	}
	return pool[i%len(pool)]
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
