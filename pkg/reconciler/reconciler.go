// Package reconciler decides, for every target version, whether a new release is needed and
// records the decision as release tags that share one package version per run.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/releasetag"
	"github.com/variantdev/packrel/pkg/semver"
	"k8s.io/klog/v2"
)

type Reconciler struct {
	// Name is the package name used in commit and tag messages.
	Name     string
	Manifest content.Manifest

	ws   *Workspace
	tags releasetag.Store

	discovery Discovery
	builder   Builder
	detector  ChangeDetector
	state     StatePersistence
	docs      DocGenerator
	gate      Gate

	observers []func(o *Outcome)

	Logger logr.Logger

	now func() time.Time
}

type Option interface {
	SetOption(r *Reconciler) error
}

type optionFunc func(r *Reconciler) error

func (f optionFunc) SetOption(r *Reconciler) error {
	return f(r)
}

func Name(name string) Option {
	return optionFunc(func(r *Reconciler) error {
		r.Name = name
		return nil
	})
}

func Manifest(m content.Manifest) Option {
	return optionFunc(func(r *Reconciler) error {
		r.Manifest = m
		return nil
	})
}

func WithDiscovery(d Discovery) Option {
	return optionFunc(func(r *Reconciler) error {
		r.discovery = d
		return nil
	})
}

func WithBuilder(b Builder) Option {
	return optionFunc(func(r *Reconciler) error {
		r.builder = b
		return nil
	})
}

func WithChangeDetector(d ChangeDetector) Option {
	return optionFunc(func(r *Reconciler) error {
		r.detector = d
		return nil
	})
}

func WithStatePersistence(s StatePersistence) Option {
	return optionFunc(func(r *Reconciler) error {
		r.state = s
		return nil
	})
}

func WithDocGenerator(d DocGenerator) Option {
	return optionFunc(func(r *Reconciler) error {
		r.docs = d
		return nil
	})
}

func WithGate(g Gate) Option {
	return optionFunc(func(r *Reconciler) error {
		r.gate = g
		return nil
	})
}

// Observe registers f to be called with the final outcome of every target.
func Observe(f func(o *Outcome)) Option {
	return optionFunc(func(r *Reconciler) error {
		r.observers = append(r.observers, f)
		return nil
	})
}

func Logger(l logr.Logger) Option {
	return optionFunc(func(r *Reconciler) error {
		r.Logger = l
		return nil
	})
}

func Clock(now func() time.Time) Option {
	return optionFunc(func(r *Reconciler) error {
		r.now = now
		return nil
	})
}

func New(ws *Workspace, tags releasetag.Store, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		Name: "modpack",
		ws:   ws,
		tags: tags,
		now:  time.Now,
	}

	for _, o := range opts {
		if err := o.SetOption(r); err != nil {
			return nil, err
		}
	}

	if r.Logger.GetSink() == nil {
		r.Logger = klog.NewKlogr()
	}

	switch {
	case r.ws == nil || r.ws.VCS == nil:
		return nil, errors.New("reconciler: workspace with a version control client is required")
	case r.tags == nil:
		return nil, errors.New("reconciler: tag store is required")
	case r.discovery == nil:
		return nil, errors.New("reconciler: discovery is required")
	case r.builder == nil:
		return nil, errors.New("reconciler: builder is required")
	case r.detector == nil:
		return nil, errors.New("reconciler: change detector is required")
	}

	return r, nil
}

// Run reconciles every discovered target in discovery order.
//
// The returned error is non-nil only for failures that abort the whole run: the upstream
// gate, discovery, reading the tag store and a malformed tag created by this run. Failures
// of individual targets are reported through RunResult.Err.
func (r *Reconciler) Run(ctx context.Context) (*RunResult, error) {
	if r.gate != nil {
		if err := r.gate.Check(ctx); err != nil {
			return nil, err
		}
	}

	discovered, err := r.discovery.TargetVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering target versions: %w", err)
	}

	targets := dedupe(discovered)

	r.Logger.Info("discovered target versions", "count", len(targets))

	previous := map[string]*releasetag.Tag{}
	var newTargets []string
	for _, t := range targets {
		latest, err := r.tags.FindLatest(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("finding latest tag of %s: %w", t, err)
		}
		if latest == nil {
			newTargets = append(newTargets, t)
			continue
		}
		previous[t] = latest
	}

	highest, err := r.tags.FindHighestGlobal(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding highest release: %w", err)
	}

	var seed *semver.Version
	switch {
	case semver.Compare(highest, semver.Zero()) == 0:
		seed = semver.Seed()
		r.Logger.Info("no releases yet", "version", seed.String())
	case len(newTargets) > 0:
		seed = semver.IncrementPatch(highest)
		r.Logger.Info("new target versions", "targets", newTargets, "from", highest.String(), "version", seed.String())
	default:
		seed = highest
		r.Logger.Info("no new target versions", "version", seed.String())
	}

	res := &RunResult{Seed: seed}

	for i, t := range targets {
		r.Logger.Info("checking target", "target", t, "index", i+1, "total", len(targets))

		o := r.reconcile(ctx, t, previous[t], seed)
		if o.Status == StatusError {
			r.Logger.Error(o.Err, "target failed", "target", t)
		} else {
			r.Logger.Info("checked target", "target", t, "status", string(o.Status), "tag", tagName(o.NewTag))
		}

		res.Outcomes = append(res.Outcomes, o)
	}

	for _, o := range res.Outcomes {
		if o.Status.Releasable() {
			res.ChangesOccurred = true
		}
	}

	if !res.ChangesOccurred {
		r.Logger.Info("no changes in any target version, no tags created")
		r.observe(res)
		return res, nil
	}

	actual := seed
	for _, o := range res.Releasable() {
		tag, err := releasetag.ParseStrict(o.NewTag.Name)
		if err != nil {
			r.observe(res)
			return res, fmt.Errorf("reading tag created in this run: %w", err)
		}
		actual = semver.Max(actual, tag.Version)
	}
	res.Version = actual

	r.resync(ctx, res)

	r.observe(res)

	return res, nil
}

func (r *Reconciler) observe(res *RunResult) {
	for _, o := range res.Outcomes {
		for _, f := range r.observers {
			f(o)
		}
	}
}

// reconcile runs the build, change detection, commit and tag sequence of a single target.
// Errors never escape; they become an outcome with StatusError.
func (r *Reconciler) reconcile(ctx context.Context, target string, prev *releasetag.Tag, seed *semver.Version) *Outcome {
	release := r.ws.acquire()
	defer release()

	o := &Outcome{Target: target, PreviousTag: prev, Started: r.now()}

	fail := func(err error) *Outcome {
		o.Status = StatusError
		o.Err = err
		o.Finished = r.now()
		return o
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	version := seed
	if prev != nil {
		version = prev.Version
	}

	var complete *content.InstallationOutcome
	for _, v := range []content.Variant{content.Restricted, content.Complete} {
		installed, err := r.builder.Install(ctx, target, r.Manifest.ForVariant(v))
		if err != nil {
			return fail(fmt.Errorf("installing %s variant: %w", v, err))
		}

		if n := len(installed.Failed); n > 0 {
			r.Logger.Info("some items failed to install", "target", target, "variant", string(v), "failed", n)
		}

		artifact, err := r.builder.Export(ctx, target, v, version)
		if err != nil {
			return fail(fmt.Errorf("%w: %s variant: %w", ErrBuildExport, v, err))
		}
		if artifact == "" {
			return fail(fmt.Errorf("%w: %s variant: no artifact produced", ErrBuildExport, v))
		}

		r.Logger.V(1).Info("exported", "target", target, "variant", string(v), "artifact", artifact)

		o.Artifacts = append(o.Artifacts, artifact)
		complete = installed
	}

	if r.state != nil {
		if err := r.state.Save(ctx, target, complete); err != nil {
			r.Logger.Error(err, "saving installation state", "target", target)
		}
	}

	if r.docs != nil {
		if err := r.docs.Regenerate(ctx, target, complete); err != nil {
			r.Logger.Error(err, "regenerating documentation", "target", target)
		}
	}

	needed, err := r.detector.NeedsUpdate(ctx, target, complete)
	if err != nil {
		return fail(fmt.Errorf("detecting changes: %w", err))
	}

	if !needed {
		o.Status = StatusUnchanged
		o.NewTag = releasetag.New(target, version)

		if prev != nil {
			commit, err := r.tags.Commit(ctx, prev.Name)
			if err != nil {
				return fail(fmt.Errorf("resolving %s: %w", prev.Name, err))
			}
			o.Commit = commit
		}

		o.Finished = r.now()
		return o
	}

	next := version
	o.Status = StatusNew
	if prev != nil {
		next = semver.IncrementPatch(version)
		o.Status = StatusChanged
	}

	commit, err := r.publishHead(target)
	if err != nil {
		return fail(err)
	}

	tag := releasetag.New(target, next)

	if err := r.tags.Create(ctx, tag.Name, r.tagMessage(target, next, false), commit); err != nil {
		return fail(err)
	}

	if err := r.tags.Push(ctx, tag.Name); err != nil {
		return fail(fmt.Errorf("%w: pushing tag %s: %w", ErrVCSCommand, tag.Name, err))
	}

	r.Logger.Info("tagged", "target", target, "tag", tag.Name, "commit", commit)

	o.NewTag = tag
	o.Commit = commit
	o.Finished = r.now()

	return o
}

// publishHead commits pending changes and makes sure HEAD is on the remote, so that tags
// never reference history other clones cannot see. It returns the commit to tag.
func (r *Reconciler) publishHead(target string) (string, error) {
	vcs := r.ws.VCS

	dirty, err := vcs.IsDirty()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVCSCommand, err)
	}

	if dirty {
		if err := vcs.AddAll(); err != nil {
			return "", fmt.Errorf("%w: staging: %w", ErrVCSCommand, err)
		}
		if err := vcs.Commit(r.commitMessage(target)); err != nil {
			return "", fmt.Errorf("%w: committing: %w", ErrVCSCommand, err)
		}
		if err := vcs.Push(); err != nil {
			return "", fmt.Errorf("%w: pushing: %w", ErrVCSCommand, err)
		}

		head, err := vcs.Head()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrVCSCommand, err)
		}

		r.Logger.V(1).Info("committed and pushed", "target", target, "commit", head)

		return head, nil
	}

	head, err := vcs.Head()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVCSCommand, err)
	}

	remote, err := vcs.RemoteHead()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVCSCommand, err)
	}

	if head != remote {
		r.Logger.V(1).Info("HEAD is not on the remote, pushing", "target", target, "head", head, "remote", remote)
		if err := vcs.Push(); err != nil {
			return "", fmt.Errorf("%w: pushing: %w", ErrVCSCommand, err)
		}
	}

	return head, nil
}

// resync tags every unchanged target at the run's version, bound to the commit of its
// previous release, and publishes those tags in one batch.
func (r *Reconciler) resync(ctx context.Context, res *RunResult) {
	var created []int

	for i, o := range res.Outcomes {
		if o.Status != StatusUnchanged {
			continue
		}

		if o.Commit == "" {
			r.Logger.Info("cannot resync target without a previous commit", "target", o.Target)
			continue
		}

		if o.PreviousTag != nil && semver.Compare(o.PreviousTag.Version, res.Version) >= 0 {
			r.Logger.V(1).Info("target already at run version", "target", o.Target, "tag", o.PreviousTag.Name)
			continue
		}

		tag := releasetag.New(o.Target, res.Version)
		if err := r.tags.Create(ctx, tag.Name, r.tagMessage(o.Target, res.Version, true), o.Commit); err != nil {
			res.Outcomes[i] = o.withError(fmt.Errorf("resync: %w", err))
			continue
		}

		r.Logger.Info("created resync tag", "target", o.Target, "tag", tag.Name, "previous", tagName(o.PreviousTag))

		resynced := *o
		resynced.ResyncTag = tag
		res.Outcomes[i] = &resynced

		created = append(created, i)
	}

	if len(created) == 0 {
		return
	}

	if err := r.tags.PushAll(ctx); err != nil {
		for _, i := range created {
			res.Outcomes[i] = res.Outcomes[i].withError(fmt.Errorf("%w: pushing resync tags: %w", ErrVCSCommand, err))
		}
		return
	}

	r.Logger.Info("pushed resync tags", "count", len(created))
}

func (r *Reconciler) commitMessage(target string) string {
	return fmt.Sprintf("Update %s for %s", r.Name, target)
}

func (r *Reconciler) tagMessage(target string, version *semver.Version, resync bool) string {
	msg := fmt.Sprintf("Release %s v%s for %s", r.Name, version, target)
	if resync {
		msg += " (no changes from previous version)"
	}
	return msg
}

func tagName(t *releasetag.Tag) string {
	if t == nil {
		return ""
	}
	return t.Name
}

func dedupe(targets []string) []string {
	seen := map[string]bool{}
	var ts []string
	for _, t := range targets {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		ts = append(ts, t)
	}
	return ts
}
