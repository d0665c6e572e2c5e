package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var minutesTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/minutes.html")
	if err != nil {
		// Fallback to built-in template if file not found
		minutesTemplate = template.Must(template.New("minutes").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	minutesTemplate = template.Must(template.New("minutes").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for minutes template rendering
type TemplateData struct {
	Title       string
	ScheduledAt time.Time
	GeneratedAt time.Time
	Points      []TemplatePoint
}

// TemplatePoint holds one agenda point for the template
type TemplatePoint struct {
	Title       string
	Description string
	Author      string
	Completed   bool
	Notes       string
}

// RenderMinutesHTML renders the minutes template with provided data
func RenderMinutesHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := minutesTemplate.Execute(&buf, data); err != nil {
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
    .point { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{formatDate .ScheduledAt "Jan 2, 2006 15:04"}}</div>
  {{range .Points}}<div class="point"><strong>{{.Title}}</strong> ({{.Author}}){{if .Description}}<p>{{.Description}}</p>{{end}}{{if .Notes}}<p>{{.Notes}}</p>{{end}}</div>{{end}}
</body>
</html>`
