package integrity

import (
	"fmt"
	"hash"
	"io"
	"os"
)

// copyBufferSize matches the streaming buffer used for archive-sized inputs.
const copyBufferSize = 64 << 10

// Compute returns the digest of data using algorithm a.
func Compute(a Algorithm, data []byte) Digest {
	h := a.New()
	_, _ = h.Write(data) //nolint:errcheck // hash.Hash writes never fail
	return Digest{Algorithm: a, Sum: h.Sum(nil)}
}

// ComputeReader streams r through algorithm a and returns the digest and
// the number of bytes read.
func ComputeReader(a Algorithm, r io.Reader) (Digest, int64, error) {
	h := a.New()
	buf := make([]byte, copyBufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return Digest{}, n, err
	}
	return Digest{Algorithm: a, Sum: h.Sum(nil)}, n, nil
}

// ComputeFile streams the file at path through algorithm a.
func ComputeFile(a Algorithm, path string) (Digest, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	d, _, err := ComputeReader(a, f)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return d, nil
}

// Verify reports whether data matches the expected digest string.
// An unparsable expected digest never matches.
func Verify(data []byte, expected string) bool {
	d, err := Parse(expected)
	if err != nil {
		return false
	}
	return d.Matches(Compute(d.Algorithm, data).Sum)
}

// VerifyFile streams the file at path and reports whether it matches the
// expected digest. The error is non-nil only when the digest string is
// invalid or the file cannot be read.
func VerifyFile(path, expected string) (bool, error) {
	d, err := Parse(expected)
	if err != nil {
		return false, err
	}
	actual, err := ComputeFile(d.Algorithm, path)
	if err != nil {
		return false, err
	}
	return d.Matches(actual.Sum), nil
}

// Verifier hashes content as it is written and checks it against a digest.
// It is used to verify streams without buffering them.
type Verifier struct {
	want Digest
	h    hash.Hash
	n    int64
}

// NewVerifier returns a Verifier for d.
func NewVerifier(d Digest) *Verifier {
	return &Verifier{want: d, h: d.Algorithm.New()}
}

// Write implements io.Writer.
func (v *Verifier) Write(p []byte) (int, error) {
	n, err := v.h.Write(p)
	v.n += int64(n)
	return n, err
}

// Written returns the number of bytes hashed so far.
func (v *Verifier) Written() int64 { return v.n }

// Verified reports whether the bytes written so far match the digest.
func (v *Verifier) Verified() bool {
	return v.want.Matches(v.h.Sum(nil))
}
