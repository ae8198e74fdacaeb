package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
)

const sumA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestParseManifest(t *testing.T) {
	t.Parallel()

	text := "\ufeff# patch list\n" +
		"\n" +
		"2024-01-01data.beam " + sumA + "\n" +
		"  2024-01-02.thor  \n" +
		"sub/2024-01-03.rgz\tmd5:d41d8cd98f00b204e9800998ecf8427e\r\n" +
		"# trailing comment\n"

	m, err := ParseManifest(strings.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	assert.Equal(t, "2024-01-01data.beam", m.Entries[0].Filename)
	assert.Equal(t, integrity.SHA256, m.Entries[0].Digest.Algorithm)
	assert.Equal(t, sumA, m.Entries[0].Digest.Hex())
	assert.Equal(t, 3, m.Entries[0].Line)

	assert.Equal(t, "2024-01-02.thor", m.Entries[1].Filename)
	assert.True(t, m.Entries[1].Digest.IsZero())

	assert.Equal(t, "sub/2024-01-03.rgz", m.Entries[2].Filename)
	assert.Equal(t, integrity.MD5, m.Entries[2].Digest.Algorithm)

	assert.Equal(t, 1, m.Index("2024-01-02.THOR"))
	assert.Equal(t, -1, m.Index("missing.beam"))
}

func TestParseManifestEmpty(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest(strings.NewReader("# nothing yet\n\n"))
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestParseManifestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		line int
	}{
		{name: "lone digest", text: "a.beam\n" + sumA + "\n", line: 2},
		{name: "lone tagged digest", text: "sha256:" + sumA + "\n", line: 1},
		{name: "traversal", text: "# x\n../evil.beam\n", line: 2},
		{name: "nested traversal", text: "ok/../../evil.beam\n", line: 1},
		{name: "backslash traversal", text: "..\\evil.beam\n", line: 1},
		{name: "absolute", text: "/etc/passwd\n", line: 1},
		{name: "drive letter", text: "C:\\patch.beam\n", line: 1},
		{name: "too many fields", text: "a.beam " + sumA + " extra\n", line: 1},
		{name: "bad digest", text: "a.beam xyz\n", line: 1},
		{name: "short hex digest", text: "a.beam abcd\n", line: 1},
		{name: "duplicate", text: "a.beam\nb.beam\nA.BEAM\n", line: 3},
		{name: "dot", text: ".\n", line: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseManifest(strings.NewReader(tt.text))
			require.Error(t, err)
			assert.ErrorIs(t, err, beamtype.ErrManifest)

			var merr *beamtype.ManifestError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tt.line, merr.Line)
		})
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	var m machine
	require.NoError(t, m.reset())
	for _, next := range []State{Discovering, Downloading, Verifying, Applying, Downloading, Verifying, Applying, Completed} {
		require.NoError(t, m.to(next), "to %s", next)
	}
	state, err := m.current()
	assert.Equal(t, Completed, state)
	assert.NoError(t, err)

	assert.ErrorIs(t, m.to(Applying), ErrInvalidTransition)
	m.fail(assert.AnError)
	state, err = m.current()
	assert.Equal(t, Completed, state, "terminal states do not fail")
	assert.NoError(t, err)

	require.NoError(t, m.reset())
	assert.ErrorIs(t, m.to(Applying), ErrInvalidTransition)
	assert.ErrorIs(t, m.to(Completed), ErrInvalidTransition)
	require.NoError(t, m.to(Discovering))
	assert.ErrorIs(t, m.reset(), ErrInvalidTransition, "reset while active")

	m.fail(assert.AnError)
	state, err = m.current()
	assert.Equal(t, Failed, state)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []State{Idle, Discovering, Failed}, m.trace())
	assert.True(t, Failed.Terminal())
	assert.Equal(t, "verifying", Verifying.String())
}
