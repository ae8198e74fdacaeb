package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeRawContainer writes a container from explicit table rows so tests
// can build layouts the Store would never produce.
func writeRawContainer(t *testing.T, version Version, data []byte, rows []rawEntry) string {
	t.Helper()

	codec, err := codecFor(version)
	require.NoError(t, err)
	table, err := codec.encodeTable(rows)
	require.NoError(t, err)

	hdr := newHeader(version, uint32(len(data)), len(rows))
	buf := append(hdr.encode(), data...)
	buf = append(buf, table...)

	path := filepath.Join(t.TempDir(), "raw.grf")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func newTestStore(t *testing.T, version Version, opts ...Option) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.grf")
	s, err := Create(path, version, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}
