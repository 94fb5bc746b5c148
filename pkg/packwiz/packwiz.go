// Package packwiz builds a target by driving the packwiz package manager in the working tree.
package packwiz

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/semver"
	"github.com/variantdev/packrel/pkg/shell"
	"k8s.io/klog/v2"
)

const (
	DefaultBinary = "packwiz"

	// DefaultRetries bounds the attempts made after packwiz reports rate limiting.
	DefaultRetries = 12

	DefaultInitialInterval = time.Second

	// DefaultOutputDir receives exported archives. It is relative to the pack directory and
	// survives clean, so every archive of a run is still there when it is published.
	DefaultOutputDir = "dist"

	archiveExt = ".mrpack"
)

var rateLimitMarkers = []string{"rate limit", "ratelimit", "too many requests", "429"}

var exportedFileRegex = regexp.MustCompile(`(?i)to\s+(.+\.mrpack)`)

// RunError is a failed packwiz invocation. Output combines stdout and stderr since packwiz
// reports most errors on stdout.
type RunError struct {
	Args       []string
	Output     string
	ExitStatus int
	Err        error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("packwiz %s: exit status %d", strings.Join(e.Args, " "), e.ExitStatus)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the output indicates the remote API throttled the request.
func (e *RunError) RateLimited() bool {
	out := strings.ToLower(e.Output)
	for _, m := range rateLimitMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

type Builder struct {
	// Name prefixes exported archive names.
	Name string

	dir    string
	outDir string
	binary string

	sh *shell.Shell
	fs vfs.FS

	retries         int
	initialInterval time.Duration

	Logger logr.Logger
}

type Option func(b *Builder)

func Name(n string) Option {
	return func(b *Builder) {
		b.Name = n
	}
}

func Binary(path string) Option {
	return func(b *Builder) {
		b.binary = path
	}
}

// OutputDir sets the directory, relative to the pack directory, that exported archives are moved to.
func OutputDir(d string) Option {
	return func(b *Builder) {
		b.outDir = d
	}
}

func Exec(e shell.Exec) Option {
	return func(b *Builder) {
		b.sh = &shell.Shell{Exec: e}
	}
}

func FS(fs vfs.FS) Option {
	return func(b *Builder) {
		b.fs = fs
	}
}

func Retries(n int, initial time.Duration) Option {
	return func(b *Builder) {
		b.retries = n
		b.initialInterval = initial
	}
}

func Logger(l logr.Logger) Option {
	return func(b *Builder) {
		b.Logger = l
	}
}

// New returns a builder for the pack rooted at dir.
func New(dir string, opts ...Option) *Builder {
	b := &Builder{
		Name:            "modpack",
		dir:             dir,
		outDir:          DefaultOutputDir,
		binary:          DefaultBinary,
		retries:         DefaultRetries,
		initialInterval: DefaultInitialInterval,
	}

	for _, o := range opts {
		o(b)
	}

	if b.sh == nil {
		b.sh = &shell.Shell{Exec: shell.DefaultExec}
	}

	if b.fs == nil {
		b.fs = vfs.HostOSFS
	}

	if b.Logger.GetSink() == nil {
		b.Logger = klog.NewKlogr()
	}

	return b
}

// run invokes packwiz, retrying with exponential backoff for as long as it reports rate limiting.
func (b *Builder) run(ctx context.Context, args ...string) (string, error) {
	var out string

	op := func() error {
		var res shell.Result
		out, res = b.sh.Combined(&shell.Command{Name: b.binary, Args: args, Dir: b.dir})
		if !res.Failed() {
			return nil
		}

		err := &RunError{Args: args, Output: out, ExitStatus: res.ExitStatus, Err: res.Error}
		if !err.RateLimited() {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.initialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = b.initialInterval << 12
	bo.MaxElapsedTime = 0

	notify := func(err error, d time.Duration) {
		b.Logger.Info("rate limited, retrying", "args", strings.Join(args, " "), "after", d)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(b.retries)), ctx), notify)

	b.Logger.V(1).Info("packwiz", "args", strings.Join(args, " "), "output", out)

	return out, err
}

// clean removes everything a previous build installed, along with raw exports left in the pack
// directory. Renamed archives in the output directory are kept.
func (b *Builder) clean() error {
	for _, d := range []string{"mods", "resourcepacks"} {
		if err := b.fs.RemoveAll(filepath.Join(b.dir, d)); err != nil {
			return fmt.Errorf("clearing %s: %w", d, err)
		}
	}

	entries, err := b.fs.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", b.dir, err)
	}

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), archiveExt) {
			continue
		}
		if err := b.fs.Remove(filepath.Join(b.dir, e.Name())); err != nil {
			return err
		}
		b.Logger.V(1).Info("deleted stale archive", "name", e.Name())
	}

	return nil
}

func (b *Builder) add(ctx context.Context, id string) error {
	_, err := b.run(ctx, "modrinth", "add", id, "-y")
	return err
}

// Install installs manifest for target from a clean tree. Items that fail are reported in
// the outcome rather than as an error; only a failure to prepare the tree is an error.
func (b *Builder) Install(ctx context.Context, target string, manifest content.Manifest) (*content.InstallationOutcome, error) {
	if err := b.clean(); err != nil {
		return nil, err
	}

	if _, err := b.run(ctx, "refresh"); err != nil {
		return nil, err
	}

	if _, err := b.run(ctx, "migrate", "minecraft", target, "-y"); err != nil {
		return nil, fmt.Errorf("migrating to %s: %w", target, err)
	}

	outcome := &content.InstallationOutcome{}

	for _, it := range manifest.Mods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := b.add(ctx, it.ID)
		if err == nil {
			outcome.Succeeded = append(outcome.Succeeded, it)
			continue
		}

		b.Logger.Info("failed to install", "id", it.ID, "target", target, "err", err.Error())

		var installed *content.Item
		var failedAlts []content.Item

		for i, alt := range it.Alternatives {
			if err := b.add(ctx, alt.ID); err != nil {
				b.Logger.Info("alternative also failed", "id", it.ID, "alternative", alt.ID)
				failedAlts = append(failedAlts, alt)
				continue
			}

			b.Logger.Info("installed alternative", "id", it.ID, "alternative", alt.ID)
			installed = &it.Alternatives[i]
			failedAlts = append(failedAlts, it.Alternatives[i+1:]...)
			break
		}

		if installed != nil {
			outcome.AlternativesUsed = append(outcome.AlternativesUsed, content.Item{
				ID:           it.ID,
				Category:     it.Category,
				Alternatives: []content.Item{*installed},
			})
		}

		outcome.Failed = append(outcome.Failed, content.Item{
			ID:           it.ID,
			Category:     it.Category,
			Alternatives: failedAlts,
		})
	}

	for _, rp := range manifest.ResourcePacks {
		if err := b.add(ctx, rp.ID); err != nil {
			b.Logger.Info("failed to install resource pack", "id", rp.ID, "target", target, "err", err.Error())
		}
	}

	return outcome, nil
}

// Export packages the installed pack and moves the archive to
// "{outdir}/{name}-{target}_{version}_{variant}.mrpack". It returns that path relative to the
// pack directory.
func (b *Builder) Export(ctx context.Context, target string, variant content.Variant, version *semver.Version) (string, error) {
	out, err := b.run(ctx, "modrinth", "export")
	if err != nil {
		return "", err
	}

	m := exportedFileRegex.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("could not determine exported file from output: %q", out)
	}

	exported := filepath.Join(b.dir, strings.TrimSpace(m[1]))
	if _, err := b.fs.Stat(exported); err != nil {
		return "", fmt.Errorf("exported file: %w", err)
	}

	if err := vfs.MkdirAll(b.fs, filepath.Join(b.dir, b.outDir), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	name := filepath.Join(b.outDir, ArchiveName(b.Name, target, version, variant))
	if err := b.fs.Rename(exported, filepath.Join(b.dir, name)); err != nil {
		return "", fmt.Errorf("renaming exported file: %w", err)
	}

	b.Logger.Info("exported", "archive", name)

	return name, nil
}

func ArchiveName(name, target string, version *semver.Version, variant content.Variant) string {
	return fmt.Sprintf("%s-%s_%s_%s%s", name, target, version, variant, archiveExt)
}

// IsRateLimited reports whether err is a packwiz failure caused by rate limiting.
func IsRateLimited(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.RateLimited()
}
