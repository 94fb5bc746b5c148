// Package config loads packrel.yaml.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/twpayne/go-vfs"
	"github.com/variantdev/packrel/pkg/content"
	"github.com/variantdev/packrel/pkg/discovery"
	"github.com/variantdev/packrel/pkg/installstate"
	"github.com/variantdev/packrel/pkg/packwiz"
	"github.com/variantdev/packrel/pkg/readme"
	"github.com/variantdev/packrel/pkg/syncgate"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile = "packrel.yaml"

	EnvTargetVersion = "PACKREL_TARGET_VERSION"
	EnvGitHubToken   = "GITHUB_TOKEN"
)

//go:embed schema.json
var schema string

// ErrInvalid is wrapped by errors reporting a configuration that does not match the schema.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// Name is used in archive names, commit and tag messages.
	Name string `yaml:"name"`

	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`

	// Targets, when set, replaces discovery with a fixed list of target versions.
	Targets []string `yaml:"targets"`

	Upstream   Upstream         `yaml:"upstream"`
	Discovery  discovery.Spec   `yaml:"discovery"`
	Content    content.Manifest `yaml:"content"`
	Restricted Restricted       `yaml:"restricted"`
	Packwiz    Packwiz          `yaml:"packwiz"`
	State      State            `yaml:"state"`
	Readme     Readme           `yaml:"readme"`
	Metrics    Metrics          `yaml:"metrics"`
	Publish    Publish          `yaml:"publish"`

	// TargetVersion is the single target built by the build command.
	TargetVersion string `yaml:"-"`
	GitHubToken   string `yaml:"-"`
}

type Upstream struct {
	URL      string `yaml:"url"`
	Retries  *int   `yaml:"retries"`
	Disabled bool   `yaml:"disabled"`
}

type Restricted struct {
	ExcludeCategories []string `yaml:"excludeCategories"`
}

type Packwiz struct {
	Binary  string `yaml:"binary"`
	Retries *int   `yaml:"retries"`
}

type State struct {
	Path string `yaml:"path"`
}

type Readme struct {
	Path     string `yaml:"path"`
	Template string `yaml:"template"`
}

type Metrics struct {
	PushGateway string `yaml:"pushGateway"`
	Job         string `yaml:"job"`
}

type Publish struct {
	GitHub *GitHub `yaml:"github"`
}

// GitHub names the repository releases are published to. Owner and Repo default to the
// GitHub repository of the push URL of Remote.
type GitHub struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	BaseURL string `yaml:"baseURL"`
	Draft   bool   `yaml:"draft"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "modpack"
	}
	if c.Remote == "" {
		c.Remote = "origin"
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Upstream.URL == "" {
		c.Upstream.URL = syncgate.DefaultURL
	}
	if c.Upstream.Retries == nil {
		n := syncgate.DefaultRetries
		c.Upstream.Retries = &n
	}
	if c.Discovery.Source == "" {
		c.Discovery.Source = discovery.DefaultSource
	}
	if c.Discovery.Versions == "" {
		c.Discovery.Versions = discovery.DefaultVersions
	}
	if c.Discovery.Constraint == "" {
		c.Discovery.Constraint = discovery.DefaultConstraint
	}
	if c.Restricted.ExcludeCategories == nil {
		c.Restricted.ExcludeCategories = append([]string{}, content.DefaultExcludedCategories...)
	}
	c.Content.ExcludeCategories = c.Restricted.ExcludeCategories
	if c.Packwiz.Binary == "" {
		c.Packwiz.Binary = packwiz.DefaultBinary
	}
	if c.Packwiz.Retries == nil {
		n := packwiz.DefaultRetries
		c.Packwiz.Retries = &n
	}
	if c.State.Path == "" {
		c.State.Path = installstate.DefaultPath
	}
	if c.Readme.Path == "" {
		c.Readme.Path = readme.DefaultPath
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "packrel"
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvTargetVersion)); v != "" {
		c.TargetVersion = v
	}
	if v := getenv(EnvGitHubToken); v != "" {
		c.GitHubToken = v
	}
}

// Parse validates bs against the configuration schema and decodes it with defaults applied.
func Parse(bs []byte) (*Config, error) {
	var doc interface{}
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}

	c := &Config{}
	if err := yaml.Unmarshal(bs, c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	c.setDefaults()

	return c, nil
}

// Load reads path from fs. A missing file yields the defaults. Environment overrides are
// applied last.
func Load(fs vfs.FS, path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var c *Config

	bs, err := fs.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c = Default()
	case err != nil:
		return nil, err
	default:
		c, err = Parse(bs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	c.applyEnv(getenv)

	return c, nil
}
