package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/packrel/pkg/changedetect"
	"github.com/variantdev/packrel/pkg/config"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/discovery"
	"github.com/variantdev/packrel/pkg/gitops"
	"github.com/variantdev/packrel/pkg/gitrepo"
	"github.com/variantdev/packrel/pkg/installstate"
	"github.com/variantdev/packrel/pkg/loginfra"
	"github.com/variantdev/packrel/pkg/packwiz"
	"github.com/variantdev/packrel/pkg/readme"
	"github.com/variantdev/packrel/pkg/reconciler"
	"github.com/variantdev/packrel/pkg/releasetag"
	"github.com/variantdev/packrel/pkg/report"
	"github.com/variantdev/packrel/pkg/semver"
	"github.com/variantdev/packrel/pkg/syncgate"
	"github.com/variantdev/packrel/pkg/telemetry"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

const appName = "packrel"

type options struct {
	configFile string
	dir        string
}

func Execute() {
	log := klog.NewKlogr()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := NewRootCommand(log, os.Stdout).ExecuteContext(ctx)
	stop()

	if err != nil {
		log.Error(err, err.Error())
		klog.Flush()
		os.Exit(1)
	}

	klog.Flush()
}

func NewRootCommand(log logr.Logger, out io.Writer) *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Builds, tags and publishes a package for every supported target version",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVarP(&o.configFile, "config", "c", config.DefaultFile, "configuration file, relative to --dir unless absolute")
	root.PersistentFlags().StringVarP(&o.dir, "dir", "C", ".", "working tree of the package")

	addKlogFlags(root.PersistentFlags(), log)

	root.AddCommand(
		newCheckAndTagCommand(o, log, out),
		newAutoUpdateCommand(o, log, out),
		newBuildCommand(o, log, out),
		newVersionsCommand(o, log, out),
	)

	return root
}

// addKlogFlags hands parsing of klog flags to pflags and cobra.
func addKlogFlags(flags *pflag.FlagSet, log logr.Logger) {
	fs, err := loginfra.AddKlogFlags(loginfra.NewFlagSet(appName), os.Getenv)
	if err != nil {
		log.Error(err, "ignoring log settings")
		return
	}

	flags.AddGoFlagSet(fs)
}

func newCheckAndTagCommand(o *options, log logr.Logger, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check-and-tag",
		Short: "Rebuild every target version and tag the ones whose content changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o, log, out)
			if err != nil {
				return err
			}
			_, err = a.checkAndTag(cmd.Context())
			return err
		},
	}
}

func newAutoUpdateCommand(o *options, log logr.Logger, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-update",
		Short: "Run check-and-tag, then publish the releases it created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o, log, out)
			if err != nil {
				return err
			}
			return a.autoUpdate(cmd.Context())
		},
	}
}

func newBuildCommand(o *options, log logr.Logger, out io.Writer) *cobra.Command {
	var variant, version string

	cmd := &cobra.Command{
		Use:   "build",
		Short: fmt.Sprintf("Install and export the target version set in %s", config.EnvTargetVersion),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := content.ParseVariant(variant)
			if err != nil {
				return err
			}

			a, err := newApp(o, log, out)
			if err != nil {
				return err
			}

			return a.build(cmd.Context(), v, version)
		},
	}

	cmd.Flags().StringVar(&variant, "variant", string(content.Complete), fmt.Sprintf("variant to build: %s or %s", content.Restricted, content.Complete))
	cmd.Flags().StringVar(&version, "version", "", "package version used in the archive name (default: the target's latest release, or the first version)")

	return cmd
}

func newVersionsCommand(o *options, log logr.Logger, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List the discovered target versions and their latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o, log, out)
			if err != nil {
				return err
			}
			return a.versions(cmd.Context())
		},
	}
}

type app struct {
	cfg *config.Config
	dir string
	fs  vfs.FS

	log logr.Logger
	out io.Writer
}

func newApp(o *options, log logr.Logger, out io.Writer) (*app, error) {
	dir, err := filepath.Abs(o.dir)
	if err != nil {
		return nil, err
	}

	path := o.configFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	cfg, err := config.Load(vfs.HostOSFS, path, os.Getenv)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, dir: dir, fs: vfs.HostOSFS, log: log, out: out}, nil
}

func (a *app) discovery() (reconciler.Discovery, error) {
	if len(a.cfg.Targets) > 0 {
		return reconciler.StaticTargets(a.cfg.Targets), nil
	}
	return discovery.New(a.cfg.Discovery, discovery.Logger(a.log))
}

func (a *app) builder() *packwiz.Builder {
	return packwiz.New(a.dir,
		packwiz.Name(a.cfg.Name),
		packwiz.Binary(a.cfg.Packwiz.Binary),
		packwiz.Retries(*a.cfg.Packwiz.Retries, packwiz.DefaultInitialInterval),
		packwiz.FS(a.fs),
		packwiz.Logger(a.log),
	)
}

func (a *app) readmeTemplate() (string, error) {
	if a.cfg.Readme.Template == "" {
		return "", nil
	}

	p := a.cfg.Readme.Template
	if !filepath.IsAbs(p) {
		p = filepath.Join(a.dir, p)
	}

	bs, err := a.fs.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("reading readme template: %w", err)
	}

	return string(bs), nil
}

func (a *app) newReconciler(metrics *telemetry.Metrics) (*reconciler.Reconciler, error) {
	cfg := a.cfg

	vcs := gitops.New(gitops.WD(a.dir), gitops.Remote(cfg.Remote), gitops.Branch(cfg.Branch))

	tags, err := releasetag.Open(a.dir, vcs, releasetag.Logger(a.log))
	if err != nil {
		return nil, err
	}

	disc, err := a.discovery()
	if err != nil {
		return nil, err
	}

	tpl, err := a.readmeTemplate()
	if err != nil {
		return nil, err
	}

	history := installstate.NewHistory(tags.Repository(), tags, cfg.State.Path, a.log)

	opts := []reconciler.Option{
		reconciler.Name(cfg.Name),
		reconciler.Manifest(cfg.Content),
		reconciler.WithDiscovery(disc),
		reconciler.WithBuilder(a.builder()),
		reconciler.WithChangeDetector(changedetect.New(history, a.log)),
		reconciler.WithStatePersistence(installstate.NewWriter(a.dir,
			installstate.FS(a.fs),
			installstate.Path(cfg.State.Path),
			installstate.Logger(a.log),
		)),
		reconciler.WithDocGenerator(readme.New(a.dir,
			readme.Name(cfg.Name),
			readme.FS(a.fs),
			readme.Path(cfg.Readme.Path),
			readme.Template(tpl),
			readme.Logger(a.log),
		)),
		reconciler.Observe(func(o *reconciler.Outcome) {
			metrics.ObserveTarget(o.Target, string(o.Status), o.Started, o.Finished)
		}),
		reconciler.Logger(a.log),
	}

	if cfg.Upstream.Disabled {
		a.log.Info("upstream availability check disabled")
	} else {
		opts = append(opts, reconciler.WithGate(syncgate.New(
			syncgate.URL(cfg.Upstream.URL),
			syncgate.Retries(*cfg.Upstream.Retries),
			syncgate.Logger(a.log),
		)))
	}

	return reconciler.New(reconciler.NewWorkspace(a.dir, vcs), tags, opts...)
}

// checkAndTag is the first phase of a release. The result is non-nil whenever targets were
// reconciled, even if some of them failed.
func (a *app) checkAndTag(ctx context.Context) (*reconciler.RunResult, error) {
	metrics := telemetry.NewMetrics(appName)

	r, err := a.newReconciler(metrics)
	if err != nil {
		return nil, err
	}

	res, err := r.Run(ctx)
	if res != nil {
		if rerr := report.Run(a.out, res); rerr != nil {
			a.log.Error(rerr, "writing summary")
		}
	}

	switch {
	case err != nil:
		metrics.ObserveRun("aborted")
	case res.Err() != nil:
		err = res.Err()
		metrics.ObserveRun("failed")
	case res.ChangesOccurred:
		metrics.ObserveRun("released")
	default:
		metrics.ObserveRun("unchanged")
	}

	a.pushMetrics(metrics)

	return res, err
}

func (a *app) pushMetrics(m *telemetry.Metrics) {
	if a.cfg.Metrics.PushGateway == "" {
		return
	}

	if err := m.Push(a.cfg.Metrics.PushGateway, a.cfg.Metrics.Job); err != nil {
		a.log.Error(err, "pushing metrics", "url", a.cfg.Metrics.PushGateway)
	}
}

// autoUpdate publishes what check-and-tag released. Releasable targets are published even when
// other targets failed, since their tags are already pushed.
func (a *app) autoUpdate(ctx context.Context) error {
	a.log.Info("phase 1: check and tag")

	res, err := a.checkAndTag(ctx)
	if res == nil {
		return err
	}

	if !res.ChangesOccurred {
		a.log.Info("no changes detected, skipping publishing")
		return err
	}

	gh := a.cfg.Publish.GitHub
	if gh == nil {
		a.log.Info("no publisher configured, skipping publishing")
		return err
	}

	owner, repo, rerr := githubRepo(*gh, gitops.New(gitops.WD(a.dir), gitops.Remote(a.cfg.Remote)))
	if rerr != nil {
		return multierr.Combine(err, rerr)
	}

	a.log.Info("phase 2: publish", "owner", owner, "repo", repo)

	client := gitrepo.NewClient(ctx, a.cfg.GitHubToken)
	if gh.BaseURL != "" {
		var cerr error
		if client, cerr = client.WithEnterpriseURLs(gh.BaseURL, gh.BaseURL); cerr != nil {
			return multierr.Combine(err, cerr)
		}
	}

	pub := gitrepo.New(owner, repo,
		gitrepo.Client(client),
		gitrepo.Name(a.cfg.Name),
		gitrepo.Draft(gh.Draft),
		gitrepo.Assets(a.dir, a.fs),
		gitrepo.Logger(a.log),
	)

	return multierr.Combine(err, pub.Publish(ctx, res))
}

type originRepo interface {
	Repo() (string, error)
}

// githubRepo fills in the owner and repository left empty in gh from the push URL of the remote.
func githubRepo(gh config.GitHub, origin originRepo) (string, string, error) {
	if gh.Owner != "" && gh.Repo != "" {
		return gh.Owner, gh.Repo, nil
	}

	r, err := origin.Repo()
	if err != nil {
		return "", "", fmt.Errorf("resolving github repository from remote: %w", err)
	}

	parts := strings.Split(r, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote %q is not a github repository: set publish.github.owner and publish.github.repo", r)
	}

	owner, repo := gh.Owner, gh.Repo
	if owner == "" {
		owner = parts[0]
	}
	if repo == "" {
		repo = parts[1]
	}

	return owner, repo, nil
}

func (a *app) build(ctx context.Context, variant content.Variant, version string) error {
	target := a.cfg.TargetVersion
	if target == "" {
		return fmt.Errorf("%s must be set to the target version to build", config.EnvTargetVersion)
	}

	v, err := a.buildVersion(ctx, target, version)
	if err != nil {
		return err
	}

	a.log.Info("building", "target", target, "variant", string(variant), "version", v.String())

	b := a.builder()

	outcome, err := b.Install(ctx, target, a.cfg.Content.ForVariant(variant))
	if err != nil {
		return err
	}

	if err := report.Installation(a.out, target, variant, outcome); err != nil {
		return err
	}

	name, err := b.Export(ctx, target, variant, v)
	if err != nil {
		return fmt.Errorf("%w: %w", reconciler.ErrBuildExport, err)
	}

	fmt.Fprintf(a.out, "\nExported %s\n", filepath.Join(a.dir, name))

	return nil
}

func (a *app) buildVersion(ctx context.Context, target, version string) (*semver.Version, error) {
	if version != "" {
		v, ok := semver.Parse(version)
		if !ok {
			return nil, fmt.Errorf("invalid version %q", version)
		}
		return v, nil
	}

	tags, err := releasetag.Open(a.dir, nil, releasetag.Logger(a.log))
	if err != nil {
		a.log.V(1).Info("no repository, using the first version", "err", err.Error())
		return semver.Seed(), nil
	}

	latest, err := tags.FindLatest(ctx, target)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return semver.Seed(), nil
	}

	return latest.Version, nil
}

func (a *app) versions(ctx context.Context) error {
	disc, err := a.discovery()
	if err != nil {
		return err
	}

	targets, err := disc.TargetVersions(ctx)
	if err != nil {
		return err
	}

	latest := map[string]*releasetag.Tag{}

	tags, err := releasetag.Open(a.dir, nil, releasetag.Logger(a.log))
	if err != nil {
		a.log.V(1).Info("no repository, listing targets only", "err", err.Error())
		return report.Versions(a.out, targets, latest)
	}

	for _, t := range targets {
		l, err := tags.FindLatest(ctx, t)
		if err != nil {
			return err
		}
		latest[t] = l
	}

	return report.Versions(a.out, targets, latest)
}
