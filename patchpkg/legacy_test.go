package patchpkg

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func shortName(name []byte) []byte {
	return append([]byte{byte(len(name))}, name...)
}

func sized(data []byte) []byte {
	return append(binary.LittleEndian.AppendUint32(nil, uint32(len(data))), data...)
}

func buildTHOR(t *testing.T, body []byte) []byte {
	t.Helper()
	return append(bytes.Clone(thorMagic), gzipBytes(t, body)...)
}

func TestDecodeTHOR(t *testing.T) {
	t.Parallel()

	eucName, err := korean.EUCKR.NewEncoder().Bytes([]byte("data\\유저.txt"))
	require.NoError(t, err)

	var body []byte
	body = append(body, thorAdd)
	body = append(body, shortName([]byte("data\\a.txt"))...)
	body = append(body, sized([]byte("alpha"))...)
	body = append(body, thorRemove)
	body = append(body, shortName([]byte("data\\old.spr"))...)
	body = append(body, thorAdd)
	body = append(body, shortName(eucName)...)
	body = append(body, sized([]byte{})...)

	pkg, err := DecodeTHOR(buildTHOR(t, body))
	require.NoError(t, err)
	assert.Equal(t, FormatTHOR, pkg.Format)
	require.Len(t, pkg.Records, 3)

	assert.Equal(t, "data\\a.txt", pkg.Records[0].Path)
	assert.Equal(t, []byte("alpha"), pkg.Records[0].Data)
	assert.False(t, pkg.Records[0].Digest.IsZero())

	assert.True(t, pkg.Records[1].Remove)
	assert.Equal(t, "data\\old.spr", pkg.Records[1].Path)
	assert.Nil(t, pkg.Records[1].Data)

	assert.Equal(t, "data\\유저.txt", pkg.Records[2].Path)
	assert.Empty(t, pkg.Records[2].Data)
}

func TestDecodeTHOR_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeTHOR([]byte("not a thor file at all, really"))
	require.ErrorIs(t, err, beamtype.ErrFormat)

	var body []byte
	body = append(body, 0x07)
	body = append(body, shortName([]byte("x"))...)
	_, err = DecodeTHOR(buildTHOR(t, body))
	require.ErrorIs(t, err, beamtype.ErrFormat)

	body = append([]byte{thorAdd}, shortName([]byte("x"))...)
	body = append(body, binary.LittleEndian.AppendUint32(nil, 100)...)
	body = append(body, []byte("short")...)
	_, err = DecodeTHOR(buildTHOR(t, body))
	require.ErrorIs(t, err, beamtype.ErrFormat)

	good := buildTHOR(t, append(append([]byte{thorAdd}, shortName([]byte("x"))...), sized([]byte("payload"))...))
	damaged := bytes.Clone(good)
	damaged[len(damaged)-6] ^= 0xFF // gzip crc32 trailer
	_, err = DecodeTHOR(damaged)
	require.ErrorIs(t, err, beamtype.ErrCorrupt)
}

func TestDecodeRGZ(t *testing.T) {
	t.Parallel()

	var body []byte
	body = append(body, rgzDir)
	body = append(body, shortName([]byte("data"))...)
	body = append(body, rgzFile)
	body = append(body, shortName([]byte("data\\a.txt"))...)
	body = append(body, sized([]byte("alpha"))...)
	body = append(body, rgzFile)
	body = append(body, shortName([]byte("data\\b.txt"))...)
	body = append(body, sized([]byte("beta"))...)
	body = append(body, rgzEnd)
	body = append(body, []byte("ignored after end")...)

	pkg, err := DecodeRGZ(gzipBytes(t, body))
	require.NoError(t, err)
	assert.Equal(t, FormatRGZ, pkg.Format)
	require.Len(t, pkg.Records, 2)
	assert.Equal(t, "data\\a.txt", pkg.Records[0].Path)
	assert.Equal(t, []byte("beta"), pkg.Records[1].Data)
	assert.Equal(t, int64(9), pkg.Size())
}

func TestDecodeRGZ_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeRGZ([]byte("plain bytes"))
	require.ErrorIs(t, err, beamtype.ErrFormat)

	_, err = DecodeRGZ(gzipBytes(t, []byte{'z'}))
	require.ErrorIs(t, err, beamtype.ErrFormat)

	_, err = DecodeRGZ(gzipBytes(t, []byte{rgzFile, 0}))
	require.ErrorIs(t, err, beamtype.ErrFormat)

	body := append([]byte{rgzFile}, shortName([]byte("a"))...)
	body = append(body, sized(bytes.Repeat([]byte("a"), 64))...)
	_, err = DecodeRGZ(gzipBytes(t, body), WithMaxRecordSize(10))
	require.ErrorIs(t, err, beamtype.ErrFormat)
}
