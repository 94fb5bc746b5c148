package content

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestForVariant(t *testing.T) {
	m := Manifest{
		Mods: []Item{
			{ID: "sodium", Category: "performance"},
			{ID: "xaeros-minimap", Category: "cheating"},
			{ID: "lithium", Category: "performance"},
		},
		ResourcePacks:     []Item{{ID: "fresh-animations"}},
		ExcludeCategories: DefaultExcludedCategories,
	}

	restricted := m.ForVariant(Restricted)

	expected := []Item{
		{ID: "sodium", Category: "performance"},
		{ID: "lithium", Category: "performance"},
	}
	if d := cmp.Diff(expected, restricted.Mods); d != "" {
		t.Errorf("%s", d)
	}
	if d := cmp.Diff(m.ResourcePacks, restricted.ResourcePacks); d != "" {
		t.Errorf("%s", d)
	}

	if d := cmp.Diff(m, m.ForVariant(Complete)); d != "" {
		t.Errorf("%s", d)
	}
}

func TestParseVariant(t *testing.T) {
	for _, s := range []string{"restricted", "complete"} {
		if _, err := ParseVariant(s); err != nil {
			t.Errorf("%s: %v", s, err)
		}
	}
	if _, err := ParseVariant("full"); err == nil {
		t.Error("expected error")
	}
}

func TestNormalized(t *testing.T) {
	o := &InstallationOutcome{
		Succeeded: []Item{{ID: "b"}, {ID: "a"}},
		Failed: []Item{
			{ID: "z", Alternatives: []Item{{ID: "z2"}, {ID: "z1"}}},
		},
	}

	got := o.Normalized()

	expected := &InstallationOutcome{
		Succeeded: []Item{{ID: "a"}, {ID: "b"}},
		Failed: []Item{
			{ID: "z", Alternatives: []Item{{ID: "z2"}, {ID: "z1"}}},
		},
	}
	if d := cmp.Diff(expected, got); d != "" {
		t.Errorf("%s", d)
	}

	if o.Succeeded[0].ID != "b" {
		t.Error("input was modified")
	}
}
