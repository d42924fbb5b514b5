package chat

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/gamma-omg/manifesto-gpt/docstore"
)

// ContextSeparator marks chunk boundaries inside the context block.
const ContextSeparator = "\n\n---\n\n"

//go:embed templates/system_prompt.md
var systemPromptTemplate string

var systemPrompt = template.Must(template.New("system_prompt").Parse(systemPromptTemplate))

type PromptInput struct {
	Matches   []docstore.Match
	Compare   bool
	PartyName string
	Question  string
}

// BuildSystemPrompt renders the system instruction with the merged context
// embedded in ranking order.
func BuildSystemPrompt(in PromptInput) (string, error) {
	texts := make([]string, 0, len(in.Matches))
	for _, m := range in.Matches {
		if m.Text == "" {
			continue
		}

		texts = append(texts, m.Text)
	}

	data := struct {
		Compare   bool
		PartyName string
		Context   string
		Question  string
	}{
		Compare:   in.Compare,
		PartyName: in.PartyName,
		Context:   strings.Join(texts, ContextSeparator),
		Question:  in.Question,
	}

	var buf bytes.Buffer
	if err := systemPrompt.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
