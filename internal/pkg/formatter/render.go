package formatter

import (
	"bytes"
	"html/template"
)

var blockTemplate = template.Must(template.New("blocks").Parse(`
{{- define "runs"}}{{range .}}{{if .Bold}}<strong>{{end}}{{if .Italic}}<em>{{end}}{{.Text}}{{if .Italic}}</em>{{end}}{{if .Bold}}</strong>{{end}}{{end}}{{end -}}
{{- range .}}
{{- if eq .Type "markdown"}}{{if .Heading}}<p class="hh-heading hh-h{{.Heading}}">{{template "runs" .Runs}}</p>{{else}}<p class="hh-markdown">{{template "runs" .Runs}}</p>{{end}}
{{- else if eq .Type "list"}}{{if .Ordered}}<ol class="hh-list">{{range .Items}}<li>{{.}}</li>{{end}}</ol>{{else}}<ul class="hh-list">{{range .Items}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{- else if eq .Type "step"}}<div class="hh-step"><span class="hh-step-number">Step {{.Number}}</span><p>{{.Text}}</p></div>
{{- else if eq .Type "equation"}}<div class="hh-equation"><code>{{.Text}}</code></div>
{{- else if eq .Type "example"}}<div class="hh-example"><strong>Example:</strong> {{.Text}}</div>
{{- else if eq .Type "note"}}<div class="hh-note"><strong>Note:</strong> {{.Text}}</div>
{{- else if eq .Type "answer"}}<div class="hh-answer"><strong>Answer:</strong> {{.Text}}</div>
{{- else}}<p>{{.Text}}</p>
{{- end}}
{{- end}}`))

// RenderHTML 渲染为 HTML，所有文本经 html/template 转义
func RenderHTML(blocks []Block) (template.HTML, error) {
	var buf bytes.Buffer
	if err := blockTemplate.Execute(&buf, blocks); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
