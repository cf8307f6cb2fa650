package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var proposalTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}

	templateContent, err := templateFS.ReadFile("templates/proposal.html")
	if err != nil {
		// Fallback to built-in template if file not found
		proposalTemplate = template.Must(template.New("proposal").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	proposalTemplate = template.Must(template.New("proposal").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for proposal template rendering
type TemplateData struct {
	Title      string
	ClientName string
	RFPNumber  string
	Deadline   string
	Sections   []TemplateSection
}

// TemplateSection holds one section's rendered entries
type TemplateSection struct {
	Title   string
	Entries []TemplateEntry
}

// TemplateEntry is one piece of content within a section
type TemplateEntry struct {
	Title       string
	ContentHTML template.HTML
}

// RenderProposalHTML renders the proposal template with provided data
func RenderProposalHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := proposalTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .section { margin: 2rem 0; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .ClientName}}<div class="meta">Prepared for {{.ClientName}}{{if .RFPNumber}} | RFP {{.RFPNumber}}{{end}}{{if .Deadline}} | Due {{.Deadline}}{{end}}</div>{{end}}
  {{range .Sections}}
  <div class="section">
    {{if .Title}}<h2>{{.Title}}</h2>{{end}}
    {{range .Entries}}
    {{if .Title}}<h3>{{.Title}}</h3>{{end}}
    <div>{{.ContentHTML | safeHTML}}</div>
    {{end}}
  </div>
  {{end}}
</body>
</html>`
