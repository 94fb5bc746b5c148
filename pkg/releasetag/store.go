package releasetag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-logr/logr"
	"github.com/variantdev/packrel/pkg/semver"
	"k8s.io/klog/v2"
)

// Store is the durable tag history. The caller is assumed to be its only writer for the
// duration of a run.
type Store interface {
	// FindLatest returns the highest-versioned tag of target, or nil when it has none.
	FindLatest(ctx context.Context, target string) (*Tag, error)

	// FindHighestGlobal returns the highest version across all targets, or 0.0.0.
	FindHighestGlobal(ctx context.Context) (*semver.Version, error)

	// Create binds a new tag to an existing commit. It fails with ErrTagConflict when the name is taken.
	Create(ctx context.Context, name, message, commit string) error

	// Commit resolves a tag to the commit it points at. It fails with ErrNotFound when absent.
	Commit(ctx context.Context, name string) (string, error)

	// Push publishes a single tag to the remote.
	Push(ctx context.Context, name string) error

	// PushAll publishes every local tag in one batch.
	PushAll(ctx context.Context) error
}

// Pusher publishes tags. gitops.Client implements it.
type Pusher interface {
	PushTag(name string) error
	PushTags() error
}

// GitStore is a Store over the tags of a git repository.
type GitStore struct {
	repo   *git.Repository
	pusher Pusher

	Logger logr.Logger

	Tagger object.Signature

	now func() time.Time
}

var _ Store = &GitStore{}

type Option interface {
	SetOption(s *GitStore) error
}

type optionFunc func(s *GitStore) error

func (f optionFunc) SetOption(s *GitStore) error {
	return f(s)
}

func Logger(logger logr.Logger) Option {
	return optionFunc(func(s *GitStore) error {
		s.Logger = logger
		return nil
	})
}

func Tagger(name, email string) Option {
	return optionFunc(func(s *GitStore) error {
		s.Tagger = object.Signature{Name: name, Email: email}
		return nil
	})
}

func Clock(now func() time.Time) Option {
	return optionFunc(func(s *GitStore) error {
		s.now = now
		return nil
	})
}

// NewGitStore returns a store over repo that publishes tags through pusher.
func NewGitStore(repo *git.Repository, pusher Pusher, opts ...Option) (*GitStore, error) {
	s := &GitStore{
		repo:   repo,
		pusher: pusher,
		Tagger: object.Signature{Name: "packrel", Email: "packrel@localhost"},
		now:    time.Now,
	}

	for _, o := range opts {
		if err := o.SetOption(s); err != nil {
			return nil, err
		}
	}

	if s.Logger.GetSink() == nil {
		s.Logger = klog.NewKlogr()
	}

	if s.repo == nil {
		return nil, errors.New("releasetag: repository is required")
	}

	return s, nil
}

// Open opens the repository at dir.
func Open(dir string, pusher Pusher, opts ...Option) (*GitStore, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", dir, err)
	}
	return NewGitStore(repo, pusher, opts...)
}

// Repository exposes the underlying repository for readers of tagged trees.
func (s *GitStore) Repository() *git.Repository {
	return s.repo
}

func (s *GitStore) all() ([]*Tag, error) {
	iter, err := s.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var tags []*Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		t, ok := Parse(name)
		if !ok {
			s.Logger.V(2).Info("ignoring tag", "name", name)
			return nil
		}
		tags = append(tags, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}

	return tags, nil
}

func (s *GitStore) FindLatest(ctx context.Context, target string) (*Tag, error) {
	tags, err := s.all()
	if err != nil {
		return nil, err
	}

	var ofTarget []*Tag
	for _, t := range tags {
		if t.Target == target {
			ofTarget = append(ofTarget, t)
		}
	}

	return Latest(ofTarget), nil
}

func (s *GitStore) FindHighestGlobal(ctx context.Context) (*semver.Version, error) {
	tags, err := s.all()
	if err != nil {
		return nil, err
	}

	highest := semver.Zero()
	for _, t := range tags {
		highest = semver.Max(highest, t.Version)
	}

	return highest, nil
}

func (s *GitStore) Create(ctx context.Context, name, message, commit string) error {
	refName := plumbing.NewTagReferenceName(name)
	if _, err := s.repo.Reference(refName, false); err == nil {
		return fmt.Errorf("%s: %w", name, ErrTagConflict)
	}

	hash := plumbing.NewHash(commit)
	if _, err := s.repo.CommitObject(hash); err != nil {
		return fmt.Errorf("tag %s: resolving commit %s: %w", name, commit, err)
	}

	tagger := s.Tagger
	tagger.When = s.now()

	_, err := s.repo.CreateTag(name, hash, &git.CreateTagOptions{
		Tagger:  &tagger,
		Message: message,
	})
	if errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("%s: %w", name, ErrTagConflict)
	}
	if err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}

	s.Logger.V(1).Info("created tag", "name", name, "commit", commit)

	return nil
}

func (s *GitStore) Commit(ctx context.Context, name string) (string, error) {
	ref, err := s.repo.Tag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolving tag %s: %w", name, err)
	}

	tagObj, err := s.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		c, err := tagObj.Commit()
		if err != nil {
			return "", fmt.Errorf("resolving tag %s: %w", name, err)
		}
		return c.Hash.String(), nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		// lightweight tag
		return ref.Hash().String(), nil
	default:
		return "", fmt.Errorf("resolving tag %s: %w", name, err)
	}
}

func (s *GitStore) Push(ctx context.Context, name string) error {
	if s.pusher == nil {
		return errors.New("releasetag: no pusher configured")
	}
	return s.pusher.PushTag(name)
}

func (s *GitStore) PushAll(ctx context.Context) error {
	if s.pusher == nil {
		return errors.New("releasetag: no pusher configured")
	}
	return s.pusher.PushTags()
}
