package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/releasetag"
	"github.com/variantdev/packrel/pkg/semver"
)

type createdTag struct {
	Name    string
	Message string
	Commit  string
}

type memStore struct {
	commits map[string]string

	created    []createdTag
	pushed     []string
	pushAll    int
	pushAllErr error
}

var _ releasetag.Store = &memStore{}

func newMemStore(tags map[string]string) *memStore {
	s := &memStore{commits: map[string]string{}}
	for name, commit := range tags {
		s.commits[name] = commit
	}
	return s
}

func (s *memStore) all() []*releasetag.Tag {
	var tags []*releasetag.Tag
	for name := range s.commits {
		if t, ok := releasetag.Parse(name); ok {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *memStore) FindLatest(ctx context.Context, target string) (*releasetag.Tag, error) {
	var tags []*releasetag.Tag
	for _, t := range s.all() {
		if t.Target == target {
			tags = append(tags, t)
		}
	}
	return releasetag.Latest(tags), nil
}

func (s *memStore) FindHighestGlobal(ctx context.Context) (*semver.Version, error) {
	highest := semver.Zero()
	for _, t := range s.all() {
		highest = semver.Max(highest, t.Version)
	}
	return highest, nil
}

func (s *memStore) Create(ctx context.Context, name, message, commit string) error {
	if _, ok := s.commits[name]; ok {
		return fmt.Errorf("%s: %w", name, releasetag.ErrTagConflict)
	}
	s.commits[name] = commit
	s.created = append(s.created, createdTag{Name: name, Message: message, Commit: commit})
	return nil
}

func (s *memStore) Commit(ctx context.Context, name string) (string, error) {
	c, ok := s.commits[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, releasetag.ErrNotFound)
	}
	return c, nil
}

func (s *memStore) Push(ctx context.Context, name string) error {
	s.pushed = append(s.pushed, name)
	return nil
}

func (s *memStore) PushAll(ctx context.Context) error {
	s.pushAll++
	return s.pushAllErr
}

// createdNames returns the names of created tags in sorted order.
func (s *memStore) createdNames() []string {
	var names []string
	for _, c := range s.created {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func (s *memStore) createdCommits() map[string]string {
	m := map[string]string{}
	for _, c := range s.created {
		m[c.Name] = c.Commit
	}
	return m
}

// fakeVCS models a checkout whose content is a single string. Saving different content makes
// it dirty, committing creates commits named c1, c2 and so on.
type fakeVCS struct {
	tree      string
	committed string
	head      string
	remote    string
	commits   int

	messages []string
	pushes   int

	commitErr error
}

func newFakeVCS(tree, head string) *fakeVCS {
	return &fakeVCS{tree: tree, committed: tree, head: head, remote: head}
}

func (v *fakeVCS) write(tree string) {
	v.tree = tree
}

func (v *fakeVCS) IsDirty() (bool, error) {
	return v.tree != v.committed, nil
}

func (v *fakeVCS) AddAll() error {
	return nil
}

func (v *fakeVCS) Commit(msg string) error {
	if v.commitErr != nil {
		return v.commitErr
	}
	v.commits++
	v.head = fmt.Sprintf("c%d", v.commits)
	v.committed = v.tree
	v.messages = append(v.messages, msg)
	return nil
}

func (v *fakeVCS) Push() error {
	v.pushes++
	v.remote = v.head
	return nil
}

func (v *fakeVCS) Head() (string, error) {
	return v.head, nil
}

func (v *fakeVCS) RemoteHead() (string, error) {
	return v.remote, nil
}

type fakeBuilder struct {
	outcomes  map[string]*content.InstallationOutcome
	exportErr map[string]error

	installed []string
	exported  []string
}

var base = &content.InstallationOutcome{
	Succeeded: []content.Item{{ID: "sodium"}, {ID: "lithium"}},
}

// changedOutcome is an outcome unique to target.
func changedOutcome(target string) *content.InstallationOutcome {
	return &content.InstallationOutcome{
		Succeeded: []content.Item{{ID: "sodium"}, {ID: "lithium"}},
		Failed:    []content.Item{{ID: "only-" + target}},
	}
}

func (b *fakeBuilder) Install(ctx context.Context, target string, manifest content.Manifest) (*content.InstallationOutcome, error) {
	b.installed = append(b.installed, target)
	if o, ok := b.outcomes[target]; ok {
		return o, nil
	}
	return base, nil
}

func (b *fakeBuilder) Export(ctx context.Context, target string, variant content.Variant, version *semver.Version) (string, error) {
	if err := b.exportErr[target+"/"+string(variant)]; err != nil {
		return "", err
	}
	name := fmt.Sprintf("pack-%s_%s_%s.mrpack", target, version, variant)
	b.exported = append(b.exported, name)
	return name, nil
}

type fakeState struct {
	vcs *fakeVCS
	err error
}

func (s *fakeState) Save(ctx context.Context, target string, outcome *content.InstallationOutcome) error {
	if s.err != nil {
		return s.err
	}
	s.vcs.write(fmt.Sprint(outcome.Normalized()))
	return nil
}

type fakeDocs struct {
	targets []string
}

func (d *fakeDocs) Regenerate(ctx context.Context, target string, outcome *content.InstallationOutcome) error {
	d.targets = append(d.targets, target)
	return errors.New("readme template is broken")
}

type fakeDetector map[string]bool

func (d fakeDetector) NeedsUpdate(ctx context.Context, target string, outcome *content.InstallationOutcome) (bool, error) {
	return d[target], nil
}

type gateFunc func(ctx context.Context) error

func (f gateFunc) Check(ctx context.Context) error {
	return f(ctx)
}
