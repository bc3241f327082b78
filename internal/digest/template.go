package digest

import "html/template"

type sectionView struct {
	Title  string
	Events []eventView
}

type eventView struct {
	Name     string
	When     string
	Where    string
	Notes    string
	URL      string
	Promoted bool
}

var pageTemplate = template.Must(template.New("digest").Parse(
	`<html>` +
		`{{- range . }}<h1>{{ .Title }} Events:</h1>` +
		`{{- range .Events }}` +
		`<div class="event{{ if .Promoted }} promoted{{ end }}">` +
		`<h2>{{ if .Promoted }}&#9733; {{ end }}{{ .Name }}</h2>` +
		`<p class="when">{{ .When }}</p>` +
		`{{- if .Where }}<p class="where">{{ .Where }}</p>{{ end }}` +
		`{{- if .Notes }}<p class="notes">{{ .Notes }}</p>{{ end }}` +
		`{{- if .URL }}<p class="link"><a href="{{ .URL }}">More info</a></p>{{ end }}` +
		`</div>` +
		`{{- end }}` +
		`{{- end }}` +
		`</html>`))
