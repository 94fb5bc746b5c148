// Package installstate persists the installation outcome of the last build into the working
// tree and reads back the outcome recorded at a target's latest release.
package installstate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/releasetag"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// DefaultPath is relative to the working tree root.
const DefaultPath = ".packrel/installed.yaml"

// Marshal encodes outcome in a stable order. The state carries no target, so targets that
// install identical content leave the working tree unchanged.
func Marshal(outcome *content.InstallationOutcome) ([]byte, error) {
	if outcome == nil {
		outcome = &content.InstallationOutcome{}
	}
	return yaml.Marshal(outcome.Normalized())
}

func Unmarshal(bs []byte) (*content.InstallationOutcome, error) {
	var o content.InstallationOutcome
	if err := yaml.Unmarshal(bs, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Writer saves states under a working tree directory.
type Writer struct {
	fs   vfs.FS
	dir  string
	path string

	Logger logr.Logger
}

type Option func(w *Writer)

func FS(fs vfs.FS) Option {
	return func(w *Writer) {
		w.fs = fs
	}
}

func Path(p string) Option {
	return func(w *Writer) {
		w.path = p
	}
}

func Logger(l logr.Logger) Option {
	return func(w *Writer) {
		w.Logger = l
	}
}

func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir, path: DefaultPath}

	for _, o := range opts {
		o(w)
	}

	if w.fs == nil {
		w.fs = vfs.HostOSFS
	}

	if w.Logger.GetSink() == nil {
		w.Logger = klog.NewKlogr()
	}

	return w
}

// Save overwrites the state file with outcome.
func (w *Writer) Save(ctx context.Context, target string, outcome *content.InstallationOutcome) error {
	bs, err := Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding installation state: %w", err)
	}

	p := filepath.Join(w.dir, w.path)
	if err := vfs.MkdirAll(w.fs, filepath.Dir(p), 0755); err != nil {
		return err
	}

	if err := w.fs.WriteFile(p, bs, 0644); err != nil {
		return fmt.Errorf("writing installation state: %w", err)
	}

	w.Logger.V(1).Info("saved installation state", "target", target, "path", p)

	return nil
}

// History reads states recorded in release tags.
type History struct {
	repo *git.Repository
	tags releasetag.Store
	path string

	Logger logr.Logger
}

func NewHistory(repo *git.Repository, tags releasetag.Store, path string, logger logr.Logger) *History {
	if path == "" {
		path = DefaultPath
	}
	if logger.GetSink() == nil {
		logger = klog.NewKlogr()
	}
	return &History{repo: repo, tags: tags, path: filepath.ToSlash(path), Logger: logger}
}

// Previous returns the state recorded at target's latest release tag, or nil when target has
// never been released or the release carries no state file.
func (h *History) Previous(ctx context.Context, target string) (*content.InstallationOutcome, error) {
	latest, err := h.tags.FindLatest(ctx, target)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	commit, err := h.tags.Commit(ctx, latest.Name)
	if err != nil {
		return nil, err
	}

	c, err := h.repo.CommitObject(plumbing.NewHash(commit))
	if err != nil {
		return nil, fmt.Errorf("reading commit %s of %s: %w", commit, latest.Name, err)
	}

	f, err := c.File(h.path)
	if errors.Is(err, object.ErrFileNotFound) {
		h.Logger.V(1).Info("release has no installation state", "tag", latest.Name, "path", h.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", h.path, latest.Name, err)
	}

	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", h.path, latest.Name, err)
	}

	o, err := Unmarshal([]byte(contents))
	if err != nil {
		return nil, fmt.Errorf("decoding %s at %s: %w", h.path, latest.Name, err)
	}

	return o, nil
}
