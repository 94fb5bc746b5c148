// Package releasetag binds (target version, package version) pairs to commits through
// tags named "{target}_{version}".
package releasetag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/variantdev/packrel/pkg/semver"
)

// Delimiter separates the target version from the package version in a tag name.
const Delimiter = "_"

var (
	// ErrTagParse is returned when a tag name is not "{target}_{major.minor.patch}".
	ErrTagParse = errors.New("malformed release tag")

	// ErrTagConflict is returned when creating a tag whose name already exists.
	ErrTagConflict = errors.New("release tag already exists")

	// ErrNotFound is returned when resolving a tag that does not exist.
	ErrNotFound = errors.New("release tag not found")
)

type Tag struct {
	Name    string
	Target  string
	Version *semver.Version
}

func (t *Tag) String() string {
	return t.Name
}

// Format returns the tag name for target at version.
func Format(target string, version *semver.Version) string {
	return target + Delimiter + version.String()
}

// New returns the tag for target at version.
func New(target string, version *semver.Version) *Tag {
	return &Tag{Name: Format(target, version), Target: target, Version: version}
}

// Parse splits name at its last delimiter. The boolean is false for anything that is not a
// release tag, which lets callers treat unrelated tags in the same repository as absent.
func Parse(name string) (*Tag, bool) {
	i := strings.LastIndex(name, Delimiter)
	if i <= 0 || i == len(name)-1 {
		return nil, false
	}

	v, ok := semver.Parse(name[i+1:])
	if !ok {
		return nil, false
	}

	return &Tag{Name: name, Target: name[:i], Version: v}, true
}

// ParseStrict is Parse for names that must be well-formed, such as tags created earlier in
// the same run.
func ParseStrict(name string) (*Tag, error) {
	t, ok := Parse(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrTagParse)
	}
	return t, nil
}

// Latest returns the tag with the highest version among tags, or nil for none. Tags with
// equal versions resolve to the lexicographically greatest name.
func Latest(tags []*Tag) *Tag {
	var latest *Tag
	for _, t := range tags {
		if latest == nil {
			latest = t
			continue
		}
		c := semver.Compare(t.Version, latest.Version)
		if c > 0 || (c == 0 && t.Name > latest.Name) {
			latest = t
		}
	}
	return latest
}
