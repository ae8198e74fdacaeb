package compress

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSkip(t *testing.T) {
	t.Parallel()

	skip := DefaultSkip(1024)
	assert.True(t, skip("data/a.txt", 10))
	assert.True(t, skip("data/a.txt", 1024))
	assert.False(t, skip("data/a.txt", 1025))
	assert.True(t, skip("data\\texture\\bg.JPG", 1<<20))
	assert.True(t, skip("bgm/01.mp3", 1<<20))
	assert.False(t, skip("data/sprite/a.spr", 1<<20))
}

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	never := func(string, int) bool { return false }
	always := func(string, int) bool { return true }
	assert.False(t, ShouldSkip("a", 1, nil))
	assert.False(t, ShouldSkip("a", 1, []SkipFunc{nil, never}))
	assert.True(t, ShouldSkip("a", 1, []SkipFunc{never, always}))
}

func TestDeflateInflate(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("lorem ipsum "), 500)
	packed, err := Deflate(data, zlib.DefaultCompression)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data))

	out, err := Inflate(packed, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = Inflate(packed, len(data)+1)
	require.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Inflate(packed, len(data)-1)
	require.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Inflate([]byte("not zlib"), 4)
	require.Error(t, err)
}

func TestInflate_IgnoresPadding(t *testing.T) {
	t.Parallel()

	data := []byte("padded payload padded payload")
	packed, err := Deflate(data, zlib.BestCompression)
	require.NoError(t, err)
	packed = append(packed, 0, 0, 0, 0, 0, 0, 0)

	out, err := Inflate(packed, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

// Not parallel: reads process-wide allocation counters.
func TestInflate_OversizedClaim(t *testing.T) {
	packed, err := Deflate([]byte("tiny"), zlib.DefaultCompression)
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = Inflate(packed, 0xF0000000)
	runtime.ReadMemStats(&after)
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))

	// A claim the ratio allows but the stream does not back.
	claim := len(packed) * maxInflateRatio
	runtime.ReadMemStats(&before)
	_, err = Inflate(packed, claim)
	runtime.ReadMemStats(&after)
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(claim))

	_, err = Inflate(packed, -1)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestZstd(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("zstd frame "), 300)
	packed, err := ZstdEncode(data, zstd.SpeedDefault)
	require.NoError(t, err)

	pool := NewDecoderPool(0)
	for range 3 {
		out, err := pool.Decode(packed, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, out)
	}

	_, err = pool.Decode(packed, len(data)-1)
	require.ErrorIs(t, err, ErrSizeMismatch)

	var nilPool *DecoderPool
	out, err := nilPool.Decode(packed, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestLZ4(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("lz4 block "), 300)
	packed, err := LZ4Encode(data)
	require.NoError(t, err)
	require.NotNil(t, packed)

	out, err := LZ4Decode(packed, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = LZ4Decode(packed, len(data)+10)
	require.Error(t, err)
}
