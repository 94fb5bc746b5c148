package gitrepo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v62/github"
	"github.com/twpayne/go-vfs/vfst"
	"github.com/variantdev/packrel/pkg/reconciler"
	"github.com/variantdev/packrel/pkg/releasetag"
	"github.com/variantdev/packrel/pkg/semver"
)

type fakeGitHub struct {
	// releases by tag
	releases map[string]*github.RepositoryRelease

	created  []github.RepositoryRelease
	uploaded []string
	bodies   map[string]string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/repos/example/pack/releases"

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, prefix+"/tags/"):
		tag := strings.TrimPrefix(r.URL.Path, prefix+"/tags/")
		rel, ok := f.releases[tag]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		json.NewEncoder(w).Encode(rel)
	case r.Method == http.MethodPost && r.URL.Path == prefix:
		var rel github.RepositoryRelease
		if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.created = append(f.created, rel)
		rel.ID = github.Int64(int64(len(f.created)))
		f.releases[rel.GetTagName()] = &rel
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rel)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/assets"):
		name := r.URL.Query().Get("name")
		bs, _ := io.ReadAll(r.Body)
		f.uploaded = append(f.uploaded, name)
		f.bodies[name] = string(bs)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&github.ReleaseAsset{ID: github.Int64(10), Name: github.String(name)})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newTestClient(t *testing.T, h http.Handler) *github.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}

	c := github.NewClient(nil)
	c.BaseURL = u
	c.UploadURL = u

	return c
}

func TestPublish(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/work/dist/pack-1.20_0.1.6_restricted.mrpack": "restricted",
		"/work/dist/pack-1.20_0.1.6_complete.mrpack":   "complete",
		"/work/dist/pack-1.21_0.1.7_complete.mrpack":   "complete",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	gh := &fakeGitHub{
		releases: map[string]*github.RepositoryRelease{
			"1.21_0.1.7": {
				ID:      github.Int64(7),
				TagName: github.String("1.21_0.1.7"),
				Assets:  []*github.ReleaseAsset{{Name: github.String("pack-1.21_0.1.7_complete.mrpack")}},
			},
		},
		bodies: map[string]string{},
	}

	p := New("example", "pack",
		Client(newTestClient(t, gh)),
		Name("pack"),
		Assets("/work", fs),
		Logger(testr.New(t)),
	)

	v := semver.MustParse("0.1.7")

	res := &reconciler.RunResult{
		Outcomes: []*reconciler.Outcome{
			{
				Target:      "1.20",
				Status:      reconciler.StatusChanged,
				PreviousTag: releasetag.New("1.20", semver.MustParse("0.1.6")),
				NewTag:      releasetag.New("1.20", v),
				Artifacts:   []string{"dist/pack-1.20_0.1.6_restricted.mrpack", "dist/pack-1.20_0.1.6_complete.mrpack"},
			},
			{
				Target:    "1.21",
				Status:    reconciler.StatusNew,
				NewTag:    releasetag.New("1.21", v),
				Artifacts: []string{"dist/pack-1.21_0.1.7_complete.mrpack"},
			},
			{
				Target: "1.19",
				Status: reconciler.StatusUnchanged,
				NewTag: releasetag.New("1.19", v),
			},
		},
	}

	if err := p.Publish(context.Background(), res); err != nil {
		t.Fatal(err)
	}

	if len(gh.created) != 1 {
		t.Fatalf("unexpected releases created: %+v", gh.created)
	}

	created := gh.created[0]
	if created.GetTagName() != "1.20_0.1.7" || created.GetName() != "pack 0.1.7 for 1.20" {
		t.Errorf("unexpected release: %s %q", created.GetTagName(), created.GetName())
	}
	if !strings.Contains(created.GetBody(), "Content changed since 1.20_0.1.6") || !strings.Contains(created.GetBody(), "- pack-1.20_0.1.6_complete.mrpack\n") {
		t.Errorf("unexpected release notes: %q", created.GetBody())
	}

	if d := cmp.Diff([]string{"pack-1.20_0.1.6_restricted.mrpack", "pack-1.20_0.1.6_complete.mrpack"}, gh.uploaded); d != "" {
		t.Errorf("%s", d)
	}

	if gh.bodies["pack-1.20_0.1.6_complete.mrpack"] != "complete" {
		t.Errorf("unexpected asset content: %q", gh.bodies["pack-1.20_0.1.6_complete.mrpack"])
	}
}

func TestPublish_CombinesFailures(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"Bad credentials"}`)
	})

	p := New("example", "pack", Client(newTestClient(t, failing)), Assets("/work", fs), Logger(testr.New(t)))

	v := semver.MustParse("0.1.0")

	res := &reconciler.RunResult{
		Outcomes: []*reconciler.Outcome{
			{Target: "1.20", Status: reconciler.StatusNew, NewTag: releasetag.New("1.20", v)},
			{Target: "1.21", Status: reconciler.StatusNew, NewTag: releasetag.New("1.21", v)},
		},
	}

	err = p.Publish(context.Background(), res)
	if err == nil {
		t.Fatal("expected error")
	}

	for _, tag := range []string{"1.20_0.1.0", "1.21_0.1.0"} {
		if !strings.Contains(err.Error(), tag) {
			t.Errorf("expected %s in %v", tag, err)
		}
	}
}
