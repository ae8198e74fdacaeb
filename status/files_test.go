package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sha256Empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestParseFileManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseFileManifest([]byte(`{
		"generated": "2024-05-01",
		"files": [
			{"path": "Ragnarok.exe", "checksum": "` + sha256Empty + `", "size": 0},
			{"path": "data\\clientinfo.xml", "checksum": "md5:d41d8cd98f00b204e9800998ecf8427e"},
			{"path": "System/iteminfo.lub", "checksum": "sha256:` + sha256Empty + `", "size": null}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, m.Files, 3)
	assert.Equal(t, "Ragnarok.exe", m.Files[0].Path)
	assert.Equal(t, "data\\clientinfo.xml", m.Files[1].Path)
	assert.Zero(t, m.Files[2].Size)
	assert.Equal(t, filepath.Join("data", "clientinfo.xml"), LocalPath(m.Files[1].Path))

	m, err = ParseFileManifest([]byte(`{"files": []}`))
	require.NoError(t, err)
	assert.Empty(t, m.Files)
}

func TestParseFileManifestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"no files", `{}`, "files"},
		{"files not array", `{"files": {"a": 1}}`, "files"},
		{"missing path", `{"files": [{"checksum": "` + sha256Empty + `"}]}`, "path"},
		{"escaping path", `{"files": [{"path": "..\\..\\boot.ini", "checksum": "` + sha256Empty + `"}]}`, "path"},
		{"absolute path", `{"files": [{"path": "/etc/passwd", "checksum": "` + sha256Empty + `"}]}`, "path"},
		{"missing checksum", `{"files": [{"path": "a"}]}`, "checksum"},
		{"bad checksum", `{"files": [{"path": "a", "checksum": "abc"}]}`, "checksum"},
		{"negative size", `{"files": [{"path": "a", "checksum": "` + sha256Empty + `", "size": -1}]}`, "size"},
		{"size as string", `{"files": [{"path": "a", "checksum": "` + sha256Empty + `", "size": "12"}]}`, "size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseFileManifest([]byte(tt.doc))
			require.ErrorIs(t, err, ErrMalformed)
			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.field, ferr.Field)
		})
	}

	_, err := ParseFileManifest([]byte(`{"files": [42]}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFetchFileManifest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files": [{"path": "a.txt", "checksum": "` + sha256Empty + `"}]}`))
	}))
	t.Cleanup(srv.Close)

	m, err := FetchFileManifest(context.Background(), srv.Client(), srv.URL+"/files.json")
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "a.txt", m.Files[0].Path)
}
