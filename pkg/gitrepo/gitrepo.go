// Package gitrepo publishes released tags as GitHub releases.
package gitrepo

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/go-github/v62/github"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/packrel/pkg/reconciler"
	"go.uber.org/multierr"
	"golang.org/x/oauth2"
	"k8s.io/klog/v2"
)

// NewClient returns a GitHub API client authenticated with token. An empty token yields an
// anonymous client.
func NewClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return github.NewClient(tc)
}

type Publisher struct {
	Owner string
	Repo  string

	// Draft creates releases as drafts.
	Draft bool

	// Name is the package name used in release titles.
	Name string

	github *github.Client
	dir    string
	fs     vfs.FS

	Logger logr.Logger
}

type Option func(p *Publisher)

func Client(c *github.Client) Option {
	return func(p *Publisher) {
		p.github = c
	}
}

func Name(n string) Option {
	return func(p *Publisher) {
		p.Name = n
	}
}

func Draft(d bool) Option {
	return func(p *Publisher) {
		p.Draft = d
	}
}

// Assets sets the directory artifacts are uploaded from.
func Assets(dir string, fs vfs.FS) Option {
	return func(p *Publisher) {
		p.dir = dir
		p.fs = fs
	}
}

func Logger(l logr.Logger) Option {
	return func(p *Publisher) {
		p.Logger = l
	}
}

func New(owner, repo string, opts ...Option) *Publisher {
	p := &Publisher{
		Owner: owner,
		Repo:  repo,
		Name:  "modpack",
		dir:   ".",
	}

	for _, o := range opts {
		o(p)
	}

	if p.github == nil {
		p.github = github.NewClient(nil)
	}

	if p.fs == nil {
		p.fs = vfs.HostOSFS
	}

	if p.Logger.GetSink() == nil {
		p.Logger = klog.NewKlogr()
	}

	return p
}

// Publish creates a release for every new or changed target of res. Targets are published
// independently and the failures are combined.
func (p *Publisher) Publish(ctx context.Context, res *reconciler.RunResult) error {
	var errs error

	for _, o := range res.Releasable() {
		if o.NewTag == nil {
			continue
		}

		title := fmt.Sprintf("%s %s for %s", p.Name, o.NewTag.Version, o.Target)

		if _, err := p.PublishRelease(ctx, o.NewTag.Name, title, releaseNotes(o), o.Artifacts); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("publishing %s: %w", o.NewTag.Name, err))
		}
	}

	return errs
}

func releaseNotes(o *reconciler.Outcome) string {
	var b strings.Builder

	switch o.Status {
	case reconciler.StatusNew:
		fmt.Fprintf(&b, "First release for %s.\n", o.Target)
	default:
		if o.PreviousTag != nil {
			fmt.Fprintf(&b, "Content changed since %s.\n", o.PreviousTag.Name)
		} else {
			fmt.Fprintf(&b, "Content changed for %s.\n", o.Target)
		}
	}

	if len(o.Artifacts) > 0 {
		b.WriteString("\nArtifacts:\n")
		for _, a := range o.Artifacts {
			fmt.Fprintf(&b, "- %s\n", filepath.Base(a))
		}
	}

	return b.String()
}

// PublishRelease makes sure a release exists for tag and carries every asset. Assets are paths
// relative to the assets directory and are uploaded under their base name. An existing release
// is reused and assets it already has are not uploaded again.
func (p *Publisher) PublishRelease(ctx context.Context, tag, title, body string, assets []string) (*github.RepositoryRelease, error) {
	rel, resp, err := p.github.Repositories.GetReleaseByTag(ctx, p.Owner, p.Repo, tag)
	switch {
	case err == nil:
		p.Logger.V(1).Info("release exists", "tag", tag, "id", rel.GetID())
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		rel, _, err = p.github.Repositories.CreateRelease(ctx, p.Owner, p.Repo, &github.RepositoryRelease{
			TagName: github.String(tag),
			Name:    github.String(title),
			Body:    github.String(body),
			Draft:   github.Bool(p.Draft),
		})
		if err != nil {
			return nil, fmt.Errorf("creating release: %w", err)
		}
		p.Logger.Info("created release", "tag", tag, "id", rel.GetID())
	default:
		return nil, fmt.Errorf("getting release: %w", err)
	}

	uploaded := map[string]bool{}
	for _, a := range rel.Assets {
		uploaded[a.GetName()] = true
	}

	for _, path := range assets {
		if uploaded[filepath.Base(path)] {
			continue
		}

		if err := p.upload(ctx, rel.GetID(), path); err != nil {
			return rel, err
		}
	}

	return rel, nil
}

func (p *Publisher) upload(ctx context.Context, id int64, path string) error {
	f, err := p.fs.Open(filepath.Join(p.dir, path))
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)

	asset, _, err := p.github.Repositories.UploadReleaseAsset(ctx, p.Owner, p.Repo, id, &github.UploadOptions{Name: name}, f)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}

	p.Logger.Info("uploaded asset", "name", asset.GetName(), "release", id)

	return nil
}
