package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/variantdev/packrel/pkg/cmdsite"
	"github.com/variantdev/packrel/pkg/config"
	"github.com/variantdev/packrel/pkg/gitops"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand(testr.New(t), &bytes.Buffer{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"auto-update", "build", "check-and-tag", "versions"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing command %q in %v", want, names)
		}
	}
}

func TestBuild_RequiresTargetVersion(t *testing.T) {
	t.Setenv(config.EnvTargetVersion, "")

	var out bytes.Buffer
	root := NewRootCommand(testr.New(t), &out)
	root.SetArgs([]string{"build", "--dir", t.TempDir()})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), config.EnvTargetVersion) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuild_RejectsUnknownVariant(t *testing.T) {
	root := NewRootCommand(testr.New(t), &bytes.Buffer{})
	root.SetArgs([]string{"build", "--variant", "safe", "--dir", t.TempDir()})

	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "unknown variant") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVersions_StaticTargetsOutsideRepository(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte("targets: [\"1.20.1\", \"1.21\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	root := NewRootCommand(testr.New(t), &out)
	root.SetArgs([]string{"versions", "--dir", dir})

	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"1.20.1", "1.21"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestCheckAndTag_InvalidConfig(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte("nmae: typo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := NewRootCommand(testr.New(t), &bytes.Buffer{})
	root.SetArgs([]string{"check-and-tag", "--dir", dir})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error")
	}
}

func TestGithubRepo(t *testing.T) {
	origin := func(url string) *gitops.Client {
		expectations := map[cmdsite.CommandInput]cmdsite.CommandOutput{}
		if url != "" {
			expectations[cmdsite.NewInput("git", []string{"-C", "/work", "remote", "get-url", "--push", "origin"}, map[string]string{})] = cmdsite.CommandOutput{Stdout: url}
		}
		return gitops.New(gitops.WD("/work"), gitops.Commander(cmdsite.NewTester(expectations)))
	}

	testcases := []struct {
		name  string
		gh    config.GitHub
		url   string
		owner string
		repo  string
		err   string
	}{
		{name: "configured", gh: config.GitHub{Owner: "acme", Repo: "modpack"}, owner: "acme", repo: "modpack"},
		{name: "from ssh remote", url: "git@github.com:example/pack.git\n", owner: "example", repo: "pack"},
		{name: "owner only", gh: config.GitHub{Owner: "acme"}, url: "https://github.com/example/pack.git", owner: "acme", repo: "pack"},
		{name: "repo only", gh: config.GitHub{Repo: "other"}, url: "https://github.com/example/pack", owner: "example", repo: "other"},
		{name: "not github", url: "https://gitlab.com/group/sub/pack.git", err: "not a github repository"},
		{name: "no remote", err: "resolving github repository"},
	}

	for i := range testcases {
		tc := testcases[i]

		t.Run(tc.name, func(t *testing.T) {
			owner, repo, err := githubRepo(tc.gh, origin(tc.url))
			if tc.err != "" {
				if err == nil || !strings.Contains(err.Error(), tc.err) {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if owner != tc.owner || repo != tc.repo {
				t.Errorf("unexpected repository: %s/%s", owner, repo)
			}
		})
	}
}
