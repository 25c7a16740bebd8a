package refspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
)

func mustParse(t *testing.T, s string) Refspec {
	t.Helper()
	idx := -1
	for i, c := range s {
		if c == ':' {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "test fixture %q must contain a colon", s)
	return Refspec{Remote: s[:idx], Ref: s[idx+1:]}
}

func TestParsePartial_BareRemote(t *testing.T) {
	base := mustParse(t, "foo:bar")
	got, err := ParsePartial("baz:", base)
	require.NoError(t, err)
	assert.Equal(t, "baz:bar", got.String())
}

func TestParsePartial_LocalBranch(t *testing.T) {
	base := mustParse(t, "foo:bar")
	got, err := ParsePartial(":baz", base)
	require.NoError(t, err)
	assert.Equal(t, "baz", got.String())
	assert.False(t, got.HasRemote())
}

func TestParsePartial_LocalBranchIgnoresBaseRemote(t *testing.T) {
	base := mustParse(t, "foo:bar")
	got, err := ParsePartial(":bar2", base)
	require.NoError(t, err)
	assert.Empty(t, got.Remote)
	assert.Equal(t, "bar2", got.Ref)
}

func TestParsePartial_RejectEquality(t *testing.T) {
	base := mustParse(t, "foo:bar")
	_, err := ParsePartial("foo:bar", base)
	require.Error(t, err)
	assert.True(t, ostreeerr.Is(err, ostreeerr.InvalidRefspec))
}

func TestParsePartial_FullRefspec(t *testing.T) {
	base := mustParse(t, "foo:bar")
	got, err := ParsePartial("other:branch", base)
	require.NoError(t, err)
	assert.Equal(t, "other:branch", got.String())
}

func TestParsePartial_MalformedNoColon(t *testing.T) {
	base := mustParse(t, "foo:bar")
	_, err := ParsePartial("nocolon", base)
	require.Error(t, err)
	assert.True(t, ostreeerr.Is(err, ostreeerr.InvalidRefspec))
}

func TestParsePartial_Idempotent(t *testing.T) {
	// (P5) parse(render(parse(x, b)), b) == parse(x, b)
	base := mustParse(t, "foo:bar")
	inputs := []string{"baz:", ":qux", "other:branch"}
	for _, in := range inputs {
		first, err := ParsePartial(in, base)
		require.NoError(t, err)
		second, err := ParsePartial(first.String(), base)
		require.NoError(t, err)
		assert.Equal(t, first, second, "input %q", in)
	}
}

func TestParsePartial_EqualityAlwaysRejected(t *testing.T) {
	// (P6) parse(render(b), b) always errors.
	bases := []Refspec{
		{Remote: "foo", Ref: "bar"},
		{Remote: "", Ref: "local"},
	}
	for _, b := range bases {
		_, err := ParsePartial(b.String(), b)
		require.Error(t, err, "base %v", b)
	}
}
