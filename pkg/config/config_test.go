package config

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/twpayne/go-vfs/vfst"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/discovery"
)

func env(m map[string]string) func(string) string {
	return func(k string) string {
		return m[k]
	}
}

func TestLoad(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/work/packrel.yaml": `
name: sodium-vanilla
branch: release
discovery:
  constraint: ">= 1.16"
content:
  mods:
  - id: sodium
    category: performance
  - id: iris
    category: shaders
    alternatives:
    - id: oculus
  - id: xaeros-minimap
    category: cheating
  resourcePacks:
  - id: fresh-animations
restricted:
  excludeCategories: [cheating, utility]
upstream:
  retries: 0
publish:
  github:
    owner: example
    repo: pack
`,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	c, err := Load(fs, "/work/packrel.yaml", env(map[string]string{
		EnvTargetVersion: " 1.21 ",
		EnvGitHubToken:   "secret",
	}))
	if err != nil {
		t.Fatal(err)
	}

	if c.Name != "sodium-vanilla" || c.Branch != "release" || c.Remote != "origin" {
		t.Errorf("unexpected repository settings: %q %q %q", c.Name, c.Branch, c.Remote)
	}

	expectedDiscovery := discovery.Spec{
		Source:     discovery.DefaultSource,
		Versions:   discovery.DefaultVersions,
		Constraint: ">= 1.16",
	}
	if d := cmp.Diff(expectedDiscovery, c.Discovery); d != "" {
		t.Errorf("%s", d)
	}

	restricted := c.Content.ForVariant(content.Restricted)
	var ids []string
	for _, m := range restricted.Mods {
		ids = append(ids, m.ID)
	}
	if d := cmp.Diff([]string{"sodium", "iris"}, ids); d != "" {
		t.Errorf("%s", d)
	}

	if d := cmp.Diff([]content.Item{{ID: "oculus"}}, c.Content.Mods[1].Alternatives); d != "" {
		t.Errorf("%s", d)
	}

	if *c.Upstream.Retries != 0 {
		t.Errorf("explicit zero retries must be kept, got %d", *c.Upstream.Retries)
	}

	if c.Publish.GitHub == nil || c.Publish.GitHub.Owner != "example" || c.Publish.GitHub.Repo != "pack" {
		t.Errorf("unexpected publish settings: %+v", c.Publish.GitHub)
	}

	if c.TargetVersion != "1.21" || c.GitHubToken != "secret" {
		t.Errorf("unexpected env overrides: %q %q", c.TargetVersion, c.GitHubToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	c, err := Load(fs, "/work/packrel.yaml", env(nil))
	if err != nil {
		t.Fatal(err)
	}

	if d := cmp.Diff(Default(), c); d != "" {
		t.Errorf("%s", d)
	}

	if *c.Upstream.Retries != 1 || *c.Packwiz.Retries != 12 {
		t.Errorf("unexpected retries: %d %d", *c.Upstream.Retries, *c.Packwiz.Retries)
	}

	if d := cmp.Diff([]string{"cheating"}, c.Content.ExcludeCategories); d != "" {
		t.Errorf("%s", d)
	}
}

func TestParse_Invalid(t *testing.T) {
	testcases := []struct {
		name string
		yaml string
	}{
		{"unknown key", "nmae: typo\n"},
		{"item without id", "content:\n  mods:\n  - category: x\n"},
		{"negative retries", "upstream:\n  retries: -1\n"},
		{"github with empty owner", "publish:\n  github:\n    owner: \"\"\n"},
		{"not a mapping", "- a\n- b\n"},
		{"malformed", "name: [\n"},
	}

	for i := range testcases {
		tc := testcases[i]

		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}

	if c.Name != "modpack" {
		t.Errorf("unexpected name: %q", c.Name)
	}
}
