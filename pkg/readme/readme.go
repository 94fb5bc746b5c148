// Package readme regenerates the package README from the latest installation outcome.
package readme

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/tmpl"
	"k8s.io/klog/v2"
)

const DefaultPath = "README.md"

// DefaultTemplate lists installed items, the alternatives that replaced unavailable ones and
// the items left out. It renders nothing target specific so that targets with identical
// content produce identical READMEs.
const DefaultTemplate = `# {{ .Name | title }}
{{ if .Outcome.Succeeded }}
## Included
{{ range .Outcome.Succeeded }}
- {{ .ID }}{{ if .Category }} ({{ .Category }}){{ end }}
{{- end }}
{{ end }}
{{- if .Outcome.AlternativesUsed }}
## Replaced
{{ range .Outcome.AlternativesUsed }}
- {{ .ID }}: replaced by {{ range $i, $a := .Alternatives }}{{ if $i }}, {{ end }}{{ $a.ID }}{{ end }}
{{- end }}
{{ end }}
{{- if .Outcome.Failed }}
## Unavailable
{{ range .Outcome.Failed }}
- {{ .ID }}
{{- end }}
{{ end -}}
`

// Data is passed to the template.
type Data struct {
	Name    string
	Outcome *content.InstallationOutcome
}

type Generator struct {
	Name string

	fs       vfs.FS
	dir      string
	path     string
	template string

	Logger logr.Logger
}

type Option func(g *Generator)

func Name(n string) Option {
	return func(g *Generator) {
		g.Name = n
	}
}

func FS(fs vfs.FS) Option {
	return func(g *Generator) {
		g.fs = fs
	}
}

func Path(p string) Option {
	return func(g *Generator) {
		if p != "" {
			g.path = p
		}
	}
}

func Template(text string) Option {
	return func(g *Generator) {
		if text != "" {
			g.template = text
		}
	}
}

func Logger(l logr.Logger) Option {
	return func(g *Generator) {
		g.Logger = l
	}
}

func New(dir string, opts ...Option) *Generator {
	g := &Generator{
		Name:     "modpack",
		dir:      dir,
		path:     DefaultPath,
		template: DefaultTemplate,
	}

	for _, o := range opts {
		o(g)
	}

	if g.fs == nil {
		g.fs = vfs.HostOSFS
	}

	if g.Logger.GetSink() == nil {
		g.Logger = klog.NewKlogr()
	}

	return g
}

func (g *Generator) Render(outcome *content.InstallationOutcome) (string, error) {
	return tmpl.Render(g.path, g.template, Data{Name: g.Name, Outcome: outcome.Normalized()})
}

// Regenerate overwrites the README with the rendering of outcome.
func (g *Generator) Regenerate(ctx context.Context, target string, outcome *content.InstallationOutcome) error {
	if outcome == nil {
		outcome = &content.InstallationOutcome{}
	}

	text, err := g.Render(outcome)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", g.path, err)
	}

	p := filepath.Join(g.dir, g.path)
	if err := vfs.MkdirAll(g.fs, filepath.Dir(p), 0o755); err != nil {
		return err
	}

	if err := g.fs.WriteFile(p, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}

	g.Logger.V(1).Info("regenerated readme", "path", p, "target", target)

	return nil
}
