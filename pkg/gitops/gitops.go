// Package gitops drives the git CLI in a single working tree: staging, committing and
// pushing branches and tags, and resolving the local and remote heads.
package gitops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/variantdev/packrel/pkg/cmdsite"
)

// ErrGitCommand is wrapped by every error caused by a failing git invocation.
var ErrGitCommand = errors.New("git command failed")

const (
	DefaultRemote = "origin"
	DefaultBranch = "main"
)

type Client struct {
	cmdr    cmdsite.RunCommand
	sh      *cmdsite.CommandSite
	wd      string
	gitPath string

	remote string
	branch string

	stdout, stderr io.Writer
}

type Option func(*Client)

func WD(wd string) Option {
	return func(c *Client) {
		c.wd = wd
	}
}

func Commander(cmdr cmdsite.RunCommand) Option {
	return func(c *Client) {
		c.cmdr = cmdr
	}
}

func Remote(remote string) Option {
	return func(c *Client) {
		c.remote = remote
	}
}

func Branch(branch string) Option {
	return func(c *Client) {
		c.branch = branch
	}
}

// Output sets where the output of non-capturing commands like push goes.
func Output(stdout, stderr io.Writer) Option {
	return func(c *Client) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

func New(opt ...Option) *Client {
	c := &Client{
		remote: DefaultRemote,
		branch: DefaultBranch,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	for _, o := range opt {
		o(c)
	}

	c.sh = cmdsite.New(cmdsite.RunCmd(c.cmdr))
	c.gitPath = "git"

	return c
}

// IsDirty reports whether the working tree has uncommitted modifications, untracked files included.
func (c *Client) IsDirty() (bool, error) {
	out, err := c.capture("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// AddAll stages every modification in the working tree.
func (c *Client) AddAll() error {
	return c.git("add", "-A")
}

func (c *Client) Commit(msg string) error {
	return c.git("commit", "-m", msg)
}

// Push pushes the configured branch to the configured remote.
func (c *Client) Push() error {
	return c.git("push", c.remote, c.branch)
}

// PushTag pushes the single named tag.
func (c *Client) PushTag(name string) error {
	return c.git("push", c.remote, "refs/tags/"+name)
}

// PushTags pushes every local tag in one round trip.
func (c *Client) PushTags() error {
	return c.git("push", c.remote, "--tags")
}

// Head resolves HEAD to a full commit hash.
func (c *Client) Head() (string, error) {
	return c.revParse("HEAD")
}

// RemoteHead resolves the remote-tracking ref of the configured branch.
func (c *Client) RemoteHead() (string, error) {
	return c.revParse(c.remote + "/" + c.branch)
}

// Repo returns the "owner/repo" part of the push URL of the configured remote.
func (c *Client) Repo() (string, error) {
	push, err := c.capture("remote", "get-url", "--push", c.remote)
	if err != nil {
		return "", err
	}
	p := strings.TrimSpace(push)
	p = strings.TrimSuffix(p, ".git")
	p = strings.TrimPrefix(p, "git@github.com:")
	p = strings.TrimPrefix(p, "https://github.com/")
	return p, nil
}

func (c *Client) revParse(rev string) (string, error) {
	out, err := c.capture("rev-parse", rev)
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", fmt.Errorf("git rev-parse %s: empty output: %w", rev, ErrGitCommand)
	}
	return hash, nil
}

func (c *Client) args(cmd string, args []string) []string {
	var all []string
	if c.wd != "" {
		all = append(all, "-C", c.wd)
	}
	all = append(all, cmd)
	return append(all, args...)
}

func (c *Client) capture(cmd string, args ...string) (string, error) {
	stdout, stderr, err := c.sh.CaptureStrings(c.gitPath, c.args(cmd, args))
	if err != nil {
		return "", fmt.Errorf("git %s: %v: %s: %w", cmd, err, strings.TrimSpace(stderr), ErrGitCommand)
	}
	return stdout, nil
}

func (c *Client) git(cmd string, args ...string) error {
	if err := c.sh.RunCommand(c.gitPath, c.args(cmd, args), c.stdout, c.stderr); err != nil {
		return fmt.Errorf("git %s: %v: %w", cmd, err, ErrGitCommand)
	}
	return nil
}
