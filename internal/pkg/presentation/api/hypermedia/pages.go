package hypermedia

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

type pageLink struct {
	Href  string
	Title string
	Rels  string
}

type pageAction struct {
	Name   string
	Method string
	Href   string
	Fields []string
}

type page struct {
	AppTitle string
	Title    string
	Natures  string

	Properties string
	Links      []pageLink
	Children   []pageLink
	Actions    []pageAction

	// the script elements are written verbatim, json.Marshal has already
	// escaped any markup in them
	Document template.HTML
	Problem  template.HTML
	Detail   string
}

func newEntityPage(appTitle string, e hyperstate.Entity, children []hyperstate.EntityRelationship, document []byte) page {
	p := page{
		AppTitle: appTitle,
		Title:    e.Title(),
		Natures:  strings.Join(e.Natures(), ", "),
		Document: template.HTML(document),
	}

	if b, err := json.MarshalIndent(e.Props(), "", "  "); err == nil {
		p.Properties = string(b)
	}

	for _, nr := range e.Links() {
		rels := make([]string, 0, len(nr.Rels()))
		for _, rel := range nr.Rels() {
			rels = append(rels, string(rel))
		}
		p.Links = append(p.Links, pageLink{Href: nr.Link().Path(), Title: nr.Link().Title(), Rels: strings.Join(rels, " ")})
	}

	for _, child := range children {
		p.Children = append(p.Children, pageLink{Href: child.Entity().Path(), Title: child.Entity().Title(), Rels: string(child.Rel())})
	}

	for _, a := range e.Actions() {
		pa := pageAction{Name: a.Name(), Method: string(a.Verb()), Href: a.Href()}
		for _, param := range a.Params() {
			pa.Fields = append(pa.Fields, param.Name)
		}
		p.Actions = append(p.Actions, pa)
	}

	return p
}

func newProblemPage(appTitle string, problem *errors.ProblemDetails, report []byte) page {
	return page{
		AppTitle: appTitle,
		Title:    problem.Title(),
		Problem:  template.HTML(report),
		Detail:   problem.Detail(),
	}
}

func (a *api) writePage(w http.ResponseWriter, status int, p page) {
	var buf bytes.Buffer

	err := pageTemplate.Execute(&buf, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - {{.AppTitle}}</title>
{{- if .Document}}
<script type="application/vnd.siren+json" id="hyperstate-entity">{{.Document}}</script>
{{- end}}
{{- if .Problem}}
<script type="application/problem+json" id="hyperstate-problem">{{.Problem}}</script>
{{- end}}
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .Detail}}
<p>{{.Detail}}</p>
{{- end}}
{{- if .Natures}}
<p class="natures">{{.Natures}}</p>
{{- end}}
{{- if .Properties}}
<pre>{{.Properties}}</pre>
{{- end}}
{{- if .Links}}
<nav><ul>
{{- range .Links}}
<li><a href="{{.Href}}" rel="{{.Rels}}">{{if .Title}}{{.Title}}{{else}}{{.Href}}{{end}}</a></li>
{{- end}}
</ul></nav>
{{- end}}
{{- if .Children}}
<ul class="children">
{{- range .Children}}
<li><a href="{{.Href}}" rel="{{.Rels}}">{{if .Title}}{{.Title}}{{else}}{{.Href}}{{end}}</a></li>
{{- end}}
</ul>
{{- end}}
{{- range .Actions}}
<form name="{{.Name}}" data-method="{{.Method}}" action="{{.Href}}">
{{- range .Fields}}
<label>{{.}} <input name="{{.}}"></label>
{{- end}}
<button type="submit">{{.Name}}</button>
</form>
{{- end}}
</body>
</html>
`))
