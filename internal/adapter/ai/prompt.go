package ai

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/pkg/textx"
)

// BuildPrompt renders the system and user messages for a generation request.
// The user message lists the exact per-category quotas and the JSON shape
// the decoder expects.
func BuildPrompt(req domain.GenerationRequest) (system, user string) {
	company := orDefault(req.CompanyName, "the company")
	system = fmt.Sprintf("You are an expert interviewer generating %s interview questions for %s. "+
		"Questions must be realistic, specific to the role and appropriate for a %s level candidate. "+
		"Respond with JSON only.", req.InterviewType, company, orDefault(req.ExperienceLevel, domain.LevelMid))

	var b strings.Builder
	fmt.Fprintf(&b, "Generate exactly %d interview questions.\n\n", req.Total())
	fmt.Fprintf(&b, "Position: %s at %s\n", orDefault(req.JobTitle, "Software Engineer"), company)
	fmt.Fprintf(&b, "Experience level: %s\n", orDefault(req.ExperienceLevel, domain.LevelMid))
	if len(req.Skills) > 0 {
		fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(req.Skills, ", "))
	}
	if d := strings.TrimSpace(req.JobDesc); d != "" {
		fmt.Fprintf(&b, "Job description: %s\n", textx.Truncate(d, 2000))
	}
	writeList(&b, "Projects", req.ProjectContext)
	writeList(&b, "Work experience", req.WorkExDetails)

	b.WriteString("\nDistribution (must match exactly):\n")
	for _, q := range req.Quotas {
		fmt.Fprintf(&b, "- %d %s question(s), difficulty %s, %d minutes each", q.Count, q.Category, q.Difficulty, q.TimeLimitMinutes)
		if q.Category == domain.CategoryDSA {
			b.WriteString(", a coding problem with constraints and one worked example")
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Return ONLY a JSON object with this structure:
{"questions":[{"question":"...","category":"technical|behavioral|aptitude|dsa","difficulty":"easy|medium|hard","expectedAnswer":"key points of a strong answer","evaluationCriteria":["..."]}]}
`)
	return system, b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			fmt.Fprintf(b, "- %s\n", textx.Truncate(it, 400))
		}
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
