package conversation

import (
	"fmt"
	"strings"

	"github.com/soyeahso/aide/internal/domain"
)

const (
	// PromptTurns is how many recent turns go into the main prompt.
	PromptTurns = 20

	// SummaryTurns is how many recent turns a summary refresh reads.
	SummaryTurns = 10

	// SummaryWords caps the length of a refreshed summary.
	SummaryWords = 200
)

// PromptInput is everything the main prompt is assembled from.
type PromptInput struct {
	UserInput          string
	Name               string
	Role               string
	Personality        string
	Style              string
	CustomInstructions string
	Skills             []string
	Summary            string
	RecentTurns        []domain.Turn
	Attachments        []domain.Attachment
}

// PersonaInput starts a PromptInput from a persona.
func PersonaInput(p domain.Persona) PromptInput {
	return PromptInput{
		Name:               p.Name,
		Role:               p.Role,
		Personality:        p.Personality,
		Style:              p.Style,
		CustomInstructions: p.CustomInstructions,
		Skills:             p.Skills,
	}
}

// BuildPrompt concatenates persona, summary, recent turns, attachments and
// the user's input into one prompt. The output depends only on the input;
// empty sections are left out entirely.
func BuildPrompt(in PromptInput) string {
	var sections []string

	var persona []string
	if name := strings.TrimSpace(in.Name); name != "" {
		persona = append(persona, fmt.Sprintf("You are %s.", name))
	}
	persona = appendLine(persona, "Role", in.Role)
	persona = appendLine(persona, "Personality", in.Personality)
	persona = appendLine(persona, "Communication style", in.Style)
	persona = appendLine(persona, "Skills", joinNonEmpty(in.Skills))
	persona = appendLine(persona, "Instructions", in.CustomInstructions)
	if len(persona) > 0 {
		sections = append(sections, strings.Join(persona, "\n"))
	}

	if s := strings.TrimSpace(in.Summary); s != "" {
		sections = append(sections, "Conversation summary:\n"+s)
	}

	if t := formatTurns(lastN(in.RecentTurns, PromptTurns)); t != "" {
		sections = append(sections, "Recent conversation:\n"+t)
	}

	if len(in.Attachments) > 0 {
		var b strings.Builder
		b.WriteString("Attached files:")
		for _, a := range in.Attachments {
			fmt.Fprintf(&b, "\n--- %s", a.Name)
			if a.MimeType != "" {
				fmt.Fprintf(&b, " (%s)", a.MimeType)
			}
			b.WriteString(" ---\n")
			b.WriteString(strings.TrimRight(a.Content, "\n"))
		}
		sections = append(sections, b.String())
	}

	if u := strings.TrimSpace(in.UserInput); u != "" {
		sections = append(sections, "User: "+u)
	}

	return strings.Join(sections, "\n\n")
}

func appendLine(lines []string, label, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return lines
	}
	return append(lines, label+": "+value)
}

func joinNonEmpty(items []string) string {
	kept := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

func formatTurns(turns []domain.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "User"
		if t.Role == domain.RoleModel {
			speaker = "Assistant"
		}
		lines = append(lines, speaker+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}
