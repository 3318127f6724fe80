package engine

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/dawtools/dawproject"
)

// reportTemplate renders a validation result for humans; the CLI prints it
// verbatim.
const reportTemplate = `{{ .Path | base }}: {{ if .OK }}OK{{ else }}INVALID{{ end }} ({{ len .Errors }} errors, {{ len .Warnings }} warnings)
{{- range .Issues }}
  {{ printf "%-8s" (severity .) }} {{ printf "%-12s" (category .) }} {{ .Path }}: {{ .Msg }}
{{- end }}
`

type reportData struct {
	Path string
	*dawproject.ValidationResult
}

// Report renders the findings of a validation pass as an indented text
// block, one line per issue.
func Report(path string, res *dawproject.ValidationResult) (string, error) {
	funcs := sprig.TxtFuncMap()
	funcs["severity"] = func(i dawproject.Issue) string {
		if i.Severity == dawproject.SeverityError {
			return "error"
		}
		return "warning"
	}
	funcs["category"] = func(i dawproject.Issue) string { return i.Category.String() }
	tmpl, err := template.New("report").Funcs(funcs).Parse(reportTemplate)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, reportData{Path: path, ValidationResult: res}); err != nil {
		return "", err
	}
	return b.String(), nil
}
