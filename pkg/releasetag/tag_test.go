package releasetag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/variantdev/packrel/pkg/semver"
)

func TestParse(t *testing.T) {
	testcases := []struct {
		name    string
		ok      bool
		target  string
		version string
	}{
		{name: "1.21_0.1.0", ok: true, target: "1.21", version: "0.1.0"},
		{name: "1.20.4_0.1.12", ok: true, target: "1.20.4", version: "0.1.12"},
		{name: "1.21-pre_1_0.2.0", ok: true, target: "1.21-pre_1", version: "0.2.0"},
		{name: "v0.1.0", ok: false},
		{name: "1.21_", ok: false},
		{name: "_0.1.0", ok: false},
		{name: "1.21_0.1", ok: false},
		{name: "1.21_0.1.0-rc1", ok: false},
	}

	for i := range testcases {
		tc := testcases[i]

		t.Run(tc.name, func(t *testing.T) {
			tag, ok := Parse(tc.name)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.target, tag.Target)
			assert.Equal(t, tc.version, tag.Version.String())
			assert.Equal(t, tc.name, tag.Name)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	name := Format("1.20.1", semver.MustParse("0.1.7"))
	assert.Equal(t, "1.20.1_0.1.7", name)

	tag, err := ParseStrict(name)
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", tag.Target)
	assert.Equal(t, "0.1.7", tag.Version.String())
}

func TestParseStrict(t *testing.T) {
	_, err := ParseStrict("not-a-tag")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTagParse))
}

func TestLatest(t *testing.T) {
	assert.Nil(t, Latest(nil))

	tags := []*Tag{
		New("1.21", semver.MustParse("0.1.2")),
		New("1.21", semver.MustParse("0.1.10")),
		New("1.21", semver.MustParse("0.1.9")),
	}
	assert.Equal(t, "1.21_0.1.10", Latest(tags).Name)

	tie := []*Tag{
		{Name: "b_0.1.0", Target: "b", Version: semver.MustParse("0.1.0")},
		{Name: "a_0.1.0", Target: "a", Version: semver.MustParse("0.1.0")},
	}
	assert.Equal(t, "b_0.1.0", Latest(tie).Name)
}
