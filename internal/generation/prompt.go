package generation

import (
	"bytes"
	"text/template"
)

// PromptData fills the default generation prompt.
type PromptData struct {
	ComponentName string
	SourceID      string
	Count         int
	Instructions  string
}

var promptTemplate = template.Must(template.New("prompt").Parse(
	`Create {{.Count}} new iteration{{if gt .Count 1}}s{{end}} of the {{.ComponentName}} component.
{{- if .SourceID}}
Start from the existing iteration {{.SourceID}}.
{{- end}}

Write each iteration to the iterations directory as {{.ComponentName}}.iteration-N.tsx,
using the next free N. Begin every file with a comment block containing:
  @mode Layout or @mode Vibe
  @description one line describing the change
{{- if .SourceID}}
  @source {{.SourceID}}
{{- end}}
{{- if .Instructions}}

{{.Instructions}}
{{- end}}
`))

// BuildPrompt renders the default prompt for d.
func BuildPrompt(d PromptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
