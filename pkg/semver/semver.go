// Package semver implements the three-component package version used by release tags.
//
// Only plain "major.minor.patch" strings are accepted. Pre-release and build metadata are
// rejected so that the ordering of release tags is always numeric, component by component.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	sv "github.com/Masterminds/semver/v3"
)

type Version = sv.Version

var NewConstraint = sv.NewConstraint

var strictRegex = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

// Zero is returned by stores that hold no tags at all.
func Zero() *Version {
	return sv.New(0, 0, 0, "", "")
}

// Seed is the package version of the very first release.
func Seed() *Version {
	return sv.New(0, 1, 0, "", "")
}

// Parse parses a package version. The boolean is false for anything that is not exactly
// three dot-separated non-negative integers.
func Parse(s string) (*Version, bool) {
	s = strings.TrimSpace(s)
	if !strictRegex.MatchString(s) {
		return nil, false
	}

	v, err := sv.StrictNewVersion(s)
	if err != nil {
		return nil, false
	}

	return v, true
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) *Version {
	v, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("semver: invalid package version %q", s))
	}
	return v
}

// Compare returns -1, 0 or 1 comparing a and b component-wise, left to right.
func Compare(a, b *Version) int {
	return a.Compare(b)
}

// IncrementPatch returns v with its patch component increased by one.
func IncrementPatch(v *Version) *Version {
	next := v.IncPatch()
	return &next
}

// Max returns the greater of a and b, preferring a when they are equal.
func Max(a, b *Version) *Version {
	if Compare(b, a) > 0 {
		return b
	}
	return a
}

// ParseLenient parses versions that are not strictly three-component, such as "1.14" or
// "1.20.10", the way target platform versions are usually written.
func ParseLenient(s string) (*Version, error) {
	return sv.NewVersion(nonSemverWorkaround(strings.TrimSpace(s)))
}

var versionRegex *regexp.Regexp

func init() {
	versionRegex = regexp.MustCompile(`v?([0-9]+)(\.[0-9]+)?(\.[0-9]+)?` + `(.*)`)
}

func nonSemverWorkaround(s string) string {
	matches := versionRegex.FindStringSubmatch(s)

	var preLike string

	if len(matches) > 3 {
		preLike = matches[4]
	}

	if preLike != "" && preLike[0] == '.' {
		s = ""
		ss := matches[1:4]
		for i := range ss {
			if ss[i] != "" {
				s += ss[i]
			}
		}

		s += "-" + preLike[1:]
	}

	return s
}
