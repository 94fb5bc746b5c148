package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/releasetag"
	"github.com/variantdev/packrel/pkg/semver"
	"go.uber.org/multierr"
)

var (
	// ErrBuildExport marks a target whose restricted or complete artifact could not be exported.
	ErrBuildExport = errors.New("build export failed")

	// ErrVCSCommand marks a target whose commit or push failed.
	ErrVCSCommand = errors.New("version control command failed")

	// ErrRunFailed is returned by RunResult.Err when at least one target failed.
	ErrRunFailed = errors.New("release run failed")
)

type Status string

const (
	StatusNew       Status = "new"
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusError     Status = "error"
)

// Releasable reports whether a target with this status is eligible for publishing.
func (s Status) Releasable() bool {
	return s == StatusNew || s == StatusChanged
}

// Outcome is the result of reconciling one target. It is not modified once returned.
type Outcome struct {
	Target string
	Status Status

	PreviousTag *releasetag.Tag

	// NewTag is the tag created for a new or changed target. For an unchanged target it names
	// the previous release.
	NewTag *releasetag.Tag

	// ResyncTag is the tag created for an unchanged target to align it with the run's version.
	ResyncTag *releasetag.Tag

	// Commit is the commit NewTag points at.
	Commit string

	// Artifacts are the exported archives, as paths relative to the workspace directory.
	Artifacts []string

	Err error

	Started  time.Time
	Finished time.Time
}

func (o *Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

func (o *Outcome) withError(err error) *Outcome {
	failed := *o
	failed.Status = StatusError
	failed.Err = err
	return &failed
}

type RunResult struct {
	Outcomes []*Outcome

	// Seed is the version assigned to targets released for the first time.
	Seed *semver.Version

	// Version is the package version shared by every target tagged in this run. It is nil when
	// nothing changed.
	Version *semver.Version

	ChangesOccurred bool
}

func (r *RunResult) filter(f func(o *Outcome) bool) []*Outcome {
	var matched []*Outcome
	for _, o := range r.Outcomes {
		if f(o) {
			matched = append(matched, o)
		}
	}
	return matched
}

// Releasable returns the new and changed targets, the only ones to publish.
func (r *RunResult) Releasable() []*Outcome {
	return r.filter(func(o *Outcome) bool { return o.Status.Releasable() })
}

func (r *RunResult) Unchanged() []*Outcome {
	return r.filter(func(o *Outcome) bool { return o.Status == StatusUnchanged })
}

func (r *RunResult) Errored() []*Outcome {
	return r.filter(func(o *Outcome) bool { return o.Status == StatusError })
}

// Err aggregates the errors of failed targets. It wraps ErrRunFailed.
func (r *RunResult) Err() error {
	var err error
	errored := r.Errored()
	for _, o := range errored {
		err = multierr.Append(err, fmt.Errorf("%s: %w", o.Target, o.Err))
	}
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %d target(s) failed: %w", ErrRunFailed, len(errored), err)
}

// VCS is the version control checkout shared by all targets.
type VCS interface {
	IsDirty() (bool, error)
	AddAll() error
	Commit(msg string) error
	Push() error
	Head() (string, error)
	RemoteHead() (string, error)
}

// Workspace is the working tree every target is built in. Targets must hold it exclusively
// for the whole of their build, commit and tag sequence.
type Workspace struct {
	Dir string
	VCS VCS

	mu sync.Mutex
}

func NewWorkspace(dir string, vcs VCS) *Workspace {
	return &Workspace{Dir: dir, VCS: vcs}
}

func (w *Workspace) acquire() func() {
	w.mu.Lock()
	return w.mu.Unlock
}

type Discovery interface {
	TargetVersions(ctx context.Context) ([]string, error)
}

// StaticTargets discovers a fixed list of targets.
type StaticTargets []string

func (s StaticTargets) TargetVersions(ctx context.Context) ([]string, error) {
	return s, nil
}

type Builder interface {
	Install(ctx context.Context, target string, manifest content.Manifest) (*content.InstallationOutcome, error)

	// Export packages the installed content and returns the artifact name.
	Export(ctx context.Context, target string, variant content.Variant, version *semver.Version) (string, error)
}

type StatePersistence interface {
	Save(ctx context.Context, target string, outcome *content.InstallationOutcome) error
}

type DocGenerator interface {
	Regenerate(ctx context.Context, target string, outcome *content.InstallationOutcome) error
}

type ChangeDetector interface {
	NeedsUpdate(ctx context.Context, target string, outcome *content.InstallationOutcome) (bool, error)
}

type Gate interface {
	Check(ctx context.Context) error
}
