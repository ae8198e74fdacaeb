package integrity

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	sha := Compute(SHA256, []byte("hello")).Hex()
	md := Compute(MD5, []byte("hello")).Hex()
	b3 := Compute(BLAKE3, []byte("hello")).Hex()
	sha512 := Compute(SHA512, []byte("hello")).Hex()

	tests := []struct {
		name    string
		in      string
		want    Algorithm
		wantErr bool
	}{
		{name: "bare sha256", in: sha, want: SHA256},
		{name: "bare md5", in: md, want: MD5},
		{name: "bare sha512", in: sha512, want: SHA512},
		{name: "tagged sha256", in: "sha256:" + sha, want: SHA256},
		{name: "tagged upper case", in: "SHA256:" + strings.ToUpper(sha), want: SHA256},
		{name: "tagged blake3", in: "blake3:" + b3, want: BLAKE3},
		{name: "tagged md5", in: "md5:" + md, want: MD5},
		{name: "empty", in: "", wantErr: true},
		{name: "odd length", in: "abc", wantErr: true},
		{name: "not hex", in: strings.Repeat("z", 64), wantErr: true},
		{name: "unknown algorithm", in: "crc32:deadbeef", wantErr: true},
		{name: "short blake3", in: "blake3:" + md, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDigest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Algorithm)
			assert.Len(t, d.Sum, tt.want.Size())
		})
	}
}

func TestVerify_OwnDigestAlwaysMatches(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		{},
		[]byte("a"),
		bytes.Repeat([]byte{0xAB}, 4096),
		[]byte("data\\texture\\유저인터페이스\\basic.bmp"),
	}
	for _, algo := range []Algorithm{MD5, SHA256, SHA384, SHA512, BLAKE3} {
		for _, data := range inputs {
			d := Compute(algo, data)
			assert.True(t, Verify(data, d.String()), "%s tagged", algo)
			if algo != BLAKE3 {
				assert.True(t, Verify(data, d.Hex()), "%s bare", algo)
			}
		}
	}
}

func TestVerify_SingleByteFlipFails(t *testing.T) {
	t.Parallel()

	data := []byte("the quick brown fox jumps over the lazy dog")
	for _, algo := range []Algorithm{MD5, SHA256, BLAKE3} {
		expected := Compute(algo, data).String()
		for i := range data {
			flipped := bytes.Clone(data)
			flipped[i] ^= 0x01
			assert.False(t, Verify(flipped, expected), "%s flip at %d", algo, i)
		}
	}
}

func TestVerify_InvalidDigestNeverMatches(t *testing.T) {
	t.Parallel()

	assert.False(t, Verify([]byte("x"), "not-a-digest"))
	assert.False(t, Verify(nil, ""))
}

func TestVerifyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "patch.bin")
	data := bytes.Repeat([]byte("0123456789"), 20000)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	ok, err := VerifyFile(path, Compute(SHA256, data).Hex())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyFile(path, Compute(SHA256, data[1:]).Hex())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyFile(path, "bogus")
	require.ErrorIs(t, err, ErrInvalidDigest)

	_, err = VerifyFile(filepath.Join(dir, "missing"), Compute(SHA256, data).Hex())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerifier_Streaming(t *testing.T) {
	t.Parallel()

	data := []byte("streamed content")
	v := NewVerifier(Compute(SHA256, data))
	_, err := v.Write(data[:5])
	require.NoError(t, err)
	assert.False(t, v.Verified())
	_, err = v.Write(data[5:])
	require.NoError(t, err)
	assert.True(t, v.Verified())
	assert.Equal(t, int64(len(data)), v.Written())
}
