package notification

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tphakala/interpro-loader/internal/ingest"
)

const reportTemplate = `Run {{.RunID}} finished {{.Outcome}} in {{duration .Duration}}
{{- if .FailedStage}}
Failed stage: {{.FailedStage}}{{if .Error}} ({{.Error}}){{end}}
{{- end}}
{{range .Stages}}
{{.Stage}}: {{.Status}}{{if eq (print .Status) "completed"}}, {{num .Written}} written{{if .Malformed}}, {{num .Malformed}} malformed{{end}}{{if .Unresolved}}, {{num .Unresolved}} unresolved{{end}}{{end}}
{{- end}}
{{- with .Summary}}

Totals: {{num .Entries}} entries, {{num .ParentLinks}} parent links, {{num .TermLinks}} GO links, {{num .Subjects}} proteins, {{num .Annotations}} annotations
{{- end}}
{{- if .Warnings}}

Warnings:
{{- range .Warnings}}
- {{.}}
{{- end}}
{{- end}}
`

func newBodyTemplate() (*template.Template, error) {
	printer := message.NewPrinter(language.English)
	return template.New("report").Funcs(template.FuncMap{
		"num": func(n int64) string { return printer.Sprintf("%d", n) },
		"duration": func(d time.Duration) string {
			return d.Round(time.Second).String()
		},
	}).Parse(reportTemplate)
}

// formatReport renders the notification title and body for a run.
func formatReport(r *ingest.Report) (title, body string, err error) {
	switch {
	case r.Outcome == ingest.OutcomeSuccess && r.AllAlreadyPopulated():
		title = "InterPro load: nothing to do"
	case r.Outcome == ingest.OutcomeSuccess:
		title = "InterPro load succeeded"
	case r.Outcome == ingest.OutcomePartial:
		title = fmt.Sprintf("InterPro load partially failed at %s", r.FailedStage)
	default:
		title = fmt.Sprintf("InterPro load failed at %s", r.FailedStage)
	}

	tmpl, err := newBodyTemplate()
	if err != nil {
		return "", "", fmt.Errorf("parse run report template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return "", "", fmt.Errorf("render run report: %w", err)
	}
	return title, buf.String(), nil
}
