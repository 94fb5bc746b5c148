// Package report renders human readable summaries of runs and builds.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/reconciler"
	"github.com/variantdev/packrel/pkg/releasetag"
)

type styles struct {
	heading lipgloss.Style
	label   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	muted   lipgloss.Style
}

// newStyles binds styles to w so that colors are dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		label:   r.NewStyle().Bold(true),
		good:    r.NewStyle().Foreground(lipgloss.Color("#3FB950")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#D29922")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// Run writes the end-of-run summary of res.
func Run(w io.Writer, res *reconciler.RunResult) error {
	s := newStyles(w)

	var lines []string

	lines = append(lines, s.heading.Render("Summary"))

	version := "-"
	if res.Version != nil {
		version = res.Version.String()
	}
	lines = append(lines,
		fmt.Sprintf("%s %d", s.label.Render("Targets:"), len(res.Outcomes)),
		fmt.Sprintf("%s %s", s.label.Render("Version:"), version),
	)

	if rs := res.Releasable(); len(rs) > 0 {
		lines = append(lines, "", s.heading.Render(fmt.Sprintf("Releasable (%d)", len(rs))))
		for _, o := range rs {
			lines = append(lines, fmt.Sprintf("  %s %s %s", s.good.Render("✓"), o.Target, s.muted.Render(fmt.Sprintf("%s %s", o.Status, tagName(o.NewTag)))))
		}
	}

	var resynced []*reconciler.Outcome
	for _, o := range res.Outcomes {
		if o.ResyncTag != nil {
			resynced = append(resynced, o)
		}
	}
	if len(resynced) > 0 {
		lines = append(lines, "", s.heading.Render(fmt.Sprintf("Resynced (%d)", len(resynced))))
		for _, o := range resynced {
			lines = append(lines, fmt.Sprintf("  %s %s %s", s.warn.Render("↻"), o.Target, s.muted.Render(tagName(o.ResyncTag))))
		}
	}

	if es := res.Errored(); len(es) > 0 {
		lines = append(lines, "", s.heading.Render(fmt.Sprintf("Errors (%d)", len(es))))
		for _, o := range es {
			msg := "unknown error"
			if o.Err != nil {
				msg = o.Err.Error()
			}
			lines = append(lines, fmt.Sprintf("  %s %s: %s", s.bad.Render("✗"), o.Target, msg))
		}
	}

	if !res.ChangesOccurred {
		lines = append(lines, "", s.muted.Render("No changes."))
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// Installation writes what a build of target installed.
func Installation(w io.Writer, target string, variant content.Variant, outcome *content.InstallationOutcome) error {
	s := newStyles(w)

	outcome = outcome.Normalized()
	if outcome == nil {
		outcome = &content.InstallationOutcome{}
	}

	lines := []string{s.heading.Render(fmt.Sprintf("Installation summary for %s (%s)", target, variant))}

	section := func(title string, st lipgloss.Style, items []content.Item, describe func(content.Item) string) {
		lines = append(lines, "", s.label.Render(fmt.Sprintf("%s (%d)", title, len(items))))
		for _, it := range items {
			lines = append(lines, "  "+st.Render(describe(it)))
		}
	}

	id := func(it content.Item) string {
		return it.ID
	}

	section("Installed", s.good, outcome.Succeeded, id)
	section("Alternatives used", s.warn, outcome.AlternativesUsed, func(it content.Item) string {
		var alts []string
		for _, a := range it.Alternatives {
			alts = append(alts, a.ID)
		}
		return fmt.Sprintf("%s -> %s", it.ID, strings.Join(alts, ", "))
	})
	section("Failed", s.bad, outcome.Failed, id)

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// Versions writes a table of targets and their latest release tag. Targets without a release
// are shown with a dash.
func Versions(w io.Writer, targets []string, latest map[string]*releasetag.Tag) error {
	r := lipgloss.NewRenderer(w)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("TARGET", "LATEST TAG", "VERSION")

	for _, target := range targets {
		tag, version := "-", "-"
		if l := latest[target]; l != nil {
			tag, version = l.Name, l.Version.String()
		}
		t.Row(target, tag, version)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func tagName(t *releasetag.Tag) string {
	if t == nil {
		return ""
	}
	return t.String()
}
