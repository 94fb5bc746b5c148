// Package content describes what goes into a package build: the manifest of items, the
// variants built from it and the outcome of installing them.
package content

import (
	"fmt"
	"sort"
)

type Variant string

const (
	// Restricted is the complete manifest minus excluded categories.
	Restricted Variant = "restricted"
	Complete   Variant = "complete"
)

// DefaultExcludedCategories are left out of the restricted variant unless configured otherwise.
var DefaultExcludedCategories = []string{"cheating"}

func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Restricted, Complete:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown variant %q: must be one of %q or %q", s, Restricted, Complete)
}

type Item struct {
	ID           string `yaml:"id"`
	Category     string `yaml:"category,omitempty"`
	Alternatives []Item `yaml:"alternatives,omitempty"`
}

type Manifest struct {
	Mods          []Item `yaml:"mods"`
	ResourcePacks []Item `yaml:"resourcePacks"`

	ExcludeCategories []string `yaml:"-"`
}

// ForVariant returns the manifest to install for v.
func (m Manifest) ForVariant(v Variant) Manifest {
	if v != Restricted {
		return m
	}

	excluded := map[string]bool{}
	for _, c := range m.ExcludeCategories {
		excluded[c] = true
	}

	r := Manifest{ResourcePacks: m.ResourcePacks, ExcludeCategories: m.ExcludeCategories}
	for _, it := range m.Mods {
		if excluded[it.Category] {
			continue
		}
		r.Mods = append(r.Mods, it)
	}

	return r
}

// InstallationOutcome reports what the builder installed for one manifest.
//
// An item whose alternative was installed appears in AlternativesUsed with the installed
// alternative, and in Failed with the alternatives that failed or were skipped.
type InstallationOutcome struct {
	Succeeded        []Item `yaml:"succeeded"`
	Failed           []Item `yaml:"failed"`
	AlternativesUsed []Item `yaml:"alternativesUsed"`
}

// Normalized returns a copy with every list ordered by item ID, so that two outcomes that
// differ only in installation order compare equal.
func (o *InstallationOutcome) Normalized() *InstallationOutcome {
	if o == nil {
		return nil
	}

	return &InstallationOutcome{
		Succeeded:        sortedItems(o.Succeeded),
		Failed:           sortedItems(o.Failed),
		AlternativesUsed: sortedItems(o.AlternativesUsed),
	}
}

func sortedItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	return sorted
}
