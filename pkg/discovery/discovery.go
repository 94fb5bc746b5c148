// Package discovery lists the target platform versions a package is built for.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/go-logr/logr"
	"github.com/variantdev/packrel/pkg/cmdsite"
	"github.com/variantdev/packrel/pkg/semver"
	"github.com/variantdev/packrel/pkg/vhttpget"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

const (
	// DefaultSource lists the game versions known to Modrinth.
	DefaultSource = "https://api.modrinth.com/v2/tag/game_version"

	DefaultVersions = `$[?(@.version_type == "release")].version`

	DefaultConstraint = ">= 1.14"
)

type Spec struct {
	// Source is fetched over HTTP and decoded as JSON or YAML.
	Source string `yaml:"source"`

	// Versions is a JSONPath expression selecting version strings in the decoded source.
	Versions string `yaml:"versions"`

	Constraint string `yaml:"constraint"`

	// Exec, when set, lists versions one per line on stdout instead of Source.
	Exec *Exec `yaml:"exec,omitempty"`
}

type Exec struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Release struct {
	// Semver is the parsed form of Version, with "1.14" read as "1.14.0".
	Semver *semver.Version

	// Version is the string as published by the source, with any "v" prefix removed.
	Version string
}

type Tracker struct {
	Spec Spec

	httpGetter vhttpget.Getter
	cmdSite    *cmdsite.CommandSite

	Logger logr.Logger
}

type Option interface {
	SetOption(t *Tracker) error
}

type optionFunc func(t *Tracker) error

func (f optionFunc) SetOption(t *Tracker) error {
	return f(t)
}

func HTTPGetter(g vhttpget.Getter) Option {
	return optionFunc(func(t *Tracker) error {
		t.httpGetter = g
		return nil
	})
}

func Commander(cmdr cmdsite.RunCommand) Option {
	return optionFunc(func(t *Tracker) error {
		t.cmdSite = cmdsite.New(cmdsite.RunCmd(cmdr))
		return nil
	})
}

func Logger(l logr.Logger) Option {
	return optionFunc(func(t *Tracker) error {
		t.Logger = l
		return nil
	})
}

func New(spec Spec, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		cmdSite: cmdsite.New(),
	}

	for _, o := range opts {
		if err := o.SetOption(t); err != nil {
			return nil, err
		}
	}

	if t.Logger.GetSink() == nil {
		t.Logger = klog.NewKlogr()
	}

	if t.httpGetter == nil {
		t.httpGetter = vhttpget.New(vhttpget.Logger(t.Logger))
	}

	if spec.Source == "" {
		spec.Source = DefaultSource
	}
	if spec.Versions == "" {
		spec.Versions = DefaultVersions
	}
	if spec.Constraint == "" {
		spec.Constraint = DefaultConstraint
	}

	if _, err := semver.NewConstraint(spec.Constraint); err != nil {
		return nil, fmt.Errorf("parsing constraint %q: %w", spec.Constraint, err)
	}

	t.Spec = spec

	return t, nil
}

// TargetVersions returns the versions satisfying the constraint, oldest first.
func (t *Tracker) TargetVersions(ctx context.Context) ([]string, error) {
	all, err := t.Releases(ctx)
	if err != nil {
		return nil, err
	}

	cons, err := semver.NewConstraint(t.Spec.Constraint)
	if err != nil {
		return nil, err
	}

	var vs []string
	for _, r := range all {
		if cons.Check(r.Semver) {
			vs = append(vs, r.Version)
		}
	}

	if len(vs) == 0 {
		return nil, fmt.Errorf("no version matching %q found among %d", t.Spec.Constraint, len(all))
	}

	return vs, nil
}

// Releases returns every version the source lists that parses as a version, oldest first.
func (t *Tracker) Releases(ctx context.Context) ([]*Release, error) {
	var vs []string
	var err error

	if t.Spec.Exec != nil {
		vs, err = t.exec(t.Spec.Exec.Command, t.Spec.Exec.Args)
	} else {
		vs, err = t.fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	return t.versionStringsToReleases(vs), nil
}

func (t *Tracker) fetch(ctx context.Context) ([]string, error) {
	res, err := t.httpGetter.DoRequest(ctx, t.Spec.Source, vhttpget.Header("Accept", "application/json"), vhttpget.Retries(2))
	if err != nil {
		return nil, err
	}

	t.Logger.V(2).Info("http response", "url", t.Spec.Source, "body", res)

	var tmp interface{}
	if err := yaml.Unmarshal([]byte(res), &tmp); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t.Spec.Source, err)
	}

	return extractVersionStrings(tmp, t.Spec.Versions)
}

func (t *Tracker) exec(cmd string, args []string) ([]string, error) {
	stdout, stderr, err := t.cmdSite.CaptureStrings(cmd, args)
	if len(stderr) > 0 {
		t.Logger.V(1).Info(stderr)
	}
	if err != nil {
		return nil, err
	}

	var vs []string
	for _, e := range strings.Split(stdout, "\n") {
		if e = strings.TrimSpace(e); e != "" {
			vs = append(vs, e)
		}
	}

	return vs, nil
}

func extractVersionStrings(tmp interface{}, jpath string) ([]string, error) {
	got, err := jsonpath.Get(jpath, tmp)
	if err != nil {
		return nil, fmt.Errorf("jsonpath %q: %w", jpath, err)
	}

	var raw []interface{}
	switch typed := got.(type) {
	case []interface{}:
		raw = typed
	case string:
		raw = append(raw, typed)
	default:
		return nil, fmt.Errorf("unexpected type of result from jsonpath %q: %T", jpath, typed)
	}

	vs := []string{}
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("jsonpath %q: unexpected type of result: %T=%v", jpath, r, r)
		}
		vs = append(vs, s)
	}

	return vs, nil
}

func (t *Tracker) versionStringsToReleases(vs []string) []*Release {
	rs := []*Release{}
	seen := map[string]bool{}

	for i, s := range vs {
		s = strings.TrimPrefix(strings.TrimSpace(s), "v")
		if seen[s] {
			continue
		}
		seen[s] = true

		v, err := semver.ParseLenient(s)
		if err != nil {
			t.Logger.V(1).Info("ignoring version", "index", i, "version", s, "err", err.Error())
			continue
		}

		rs = append(rs, &Release{Semver: v, Version: s})
	}

	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Semver.LessThan(rs[j].Semver)
	})

	return rs
}
