package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	info, err := ParseVersion([]byte(`{
		"version": "1.2.0",
		"download_url": "https://patch.example.com/updates/1.2.0",
		"changelog": "fixes",
		"required": true,
		"extra": {"ignored": [1, 2]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "https://patch.example.com/updates/1.2.0", info.DownloadURL)
	assert.True(t, info.Required)

	info, err = ParseVersion([]byte(`{"version": "2", "changelog": null}`))
	require.NoError(t, err)
	assert.Empty(t, info.Changelog)
	assert.False(t, info.Required)
}

func TestParseVersionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing version", `{"changelog": "x"}`, "version"},
		{"null version", `{"version": null}`, "version"},
		{"numeric version", `{"version": 12}`, "version"},
		{"empty version", `{"version": ""}`, "version"},
		{"bool as string", `{"version": "1", "required": "yes"}`, "required"},
		{"url as number", `{"version": "1", "download_url": 3}`, "download_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseVersion([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.field, ferr.Field)
		})
	}

	for _, doc := range []string{"", "null", "[1]", "{", `"1.0"`} {
		_, err := ParseVersion([]byte(doc))
		assert.ErrorIs(t, err, ErrMalformed, "document %q", doc)
	}
}

func TestNewerThan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		remote, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"1.10", "1.9", true},
		{"1.2", "1.2.0", false},
		{"v2.0.0", "2.0.0", false},
		{"1.0.0", "1.0.1", false},
		{"2024-06-build", "2024-05-build", true},
		{"same", "same", false},
	}
	for _, tt := range tests {
		info := &VersionInfo{Version: tt.remote}
		assert.Equal(t, tt.want, info.NewerThan(tt.current), "%s vs %s", tt.remote, tt.current)
	}
}

func TestParseServerStatus(t *testing.T) {
	t.Parallel()

	st, err := ParseServerStatus([]byte(`{
		"login_online": true, "char_online": true, "map_online": false,
		"players": 42, "message": "maintenance at 5", "checked_at": "2024-01-02T03:04:05Z"
	}`))
	require.NoError(t, err)
	assert.True(t, st.LoginOnline)
	assert.False(t, st.Online())
	assert.Equal(t, 42, st.Players)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), st.CheckedAt)

	st, err = ParseServerStatus([]byte(`{"login_online": true, "char_online": true, "map_online": true}`))
	require.NoError(t, err)
	assert.True(t, st.Online())
	assert.Zero(t, st.Players)
	assert.True(t, st.CheckedAt.IsZero())

	_, err = ParseServerStatus([]byte(`{"login_online": true, "char_online": true}`))
	var ferr *FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "map_online", ferr.Field)

	_, err = ParseServerStatus([]byte(`{"login_online": 1, "char_online": true, "map_online": true}`))
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "login_online", ferr.Field)

	_, err = ParseServerStatus([]byte(`{"login_online": true, "char_online": true, "map_online": true, "players": 1.5}`))
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "players", ferr.Field)

	_, err = ParseServerStatus([]byte(`{"login_online": true, "char_online": true, "map_online": true, "checked_at": "yesterday"}`))
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "checked_at", ferr.Field)
}

func TestFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version.json":
			_, _ = w.Write([]byte(`{"version": "3.1"}`))
		case "/status.json":
			_, _ = w.Write([]byte(`{"login_online": true, "char_online": false, "map_online": true}`))
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	info, err := FetchVersion(ctx, srv.Client(), srv.URL+"/version.json")
	require.NoError(t, err)
	assert.Equal(t, "3.1", info.Version)

	st, err := FetchServerStatus(ctx, srv.Client(), srv.URL+"/status.json")
	require.NoError(t, err)
	assert.False(t, st.CharOnline)

	_, err = FetchVersion(ctx, srv.Client(), srv.URL+"/down")
	var netErr *beamtype.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusBadGateway, netErr.Status)
	assert.True(t, netErr.Retryable)

	_, err = FetchServerStatus(ctx, srv.Client(), srv.URL+"/missing")
	require.ErrorAs(t, err, &netErr)
	assert.False(t, netErr.Retryable)
}
