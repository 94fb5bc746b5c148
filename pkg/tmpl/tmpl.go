// Package tmpl renders text templates with the helpers shared by generated documents.
package tmpl

import (
	"bytes"
	"strings"
	"text/template"
)

// Funcs are available to every template rendered by Render.
var Funcs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"default": func(d, v string) string {
		if v == "" {
			return d
		}
		return v
	},
}

// Render executes text with data. Referencing a missing map key is an error.
func Render(name, text string, data interface{}) (string, error) {
	tpl := template.New(name).Option("missingkey=error").Funcs(Funcs)
	tpl, err := tpl.Parse(text)
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	if err := tpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
