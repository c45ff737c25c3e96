package receipt

import (
	"bytes"
	"fmt"
	"html/template"
)

var pageTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: "DejaVu Sans", "Liberation Sans", Arial, sans-serif; margin: 0; }
p { margin: 0; line-height: 1.4; white-space: pre-wrap; }
.left { text-align: left; }
.center { text-align: center; }
.right { text-align: right; }
.underline { text-decoration: underline; }
</style>
</head>
<body>
{{- range .Lines}}
{{- if .Blank}}
<p style="font-size: {{.FontSize}}pt">&nbsp;</p>
{{- else}}
<p class="{{.Align}}{{if .Underline}} underline{{end}}" style="font-size: {{.FontSize}}pt">{{.Text}}</p>
{{- end}}
{{- end}}
</body>
</html>
`))

// HTML renders the layout as a standalone page. Text is escaped; the first
// line of the layout becomes the page title.
func HTML(layout *Layout) (string, error) {
	data := struct {
		Title string
		Lines []Line
	}{Lines: layout.lines}
	for _, l := range layout.lines {
		if !l.Blank {
			data.Title = l.Text
			break
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute receipt template: %w", err)
	}
	return buf.String(), nil
}
