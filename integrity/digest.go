// Package integrity computes and validates content digests.
//
// Digest strings come in two shapes:
//   - bare hex, where the length selects the algorithm
//     (32 → md5, 64 → sha256, 96 → sha384, 128 → sha512)
//   - tagged "algorithm:hex", e.g. "sha256:…", "blake3:…", "md5:…"
//
// md5 exists for legacy patch lists and packages. New content should use
// sha256 or blake3.
package integrity

import (
	"crypto/md5" //nolint:gosec // legacy digest format
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/zeebo/blake3"
)

// Algorithm identifies a digest algorithm.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = Algorithm(digest.SHA256)
	SHA384 Algorithm = Algorithm(digest.SHA384)
	SHA512 Algorithm = Algorithm(digest.SHA512)
	BLAKE3 Algorithm = "blake3"
)

// ErrInvalidDigest is returned when a digest string cannot be parsed.
var ErrInvalidDigest = errors.New("integrity: invalid digest")

// Available reports whether a is a supported algorithm.
func (a Algorithm) Available() bool {
	switch a {
	case MD5, BLAKE3:
		return true
	case SHA256, SHA384, SHA512:
		return digest.Algorithm(a).Available()
	default:
		return false
	}
}

// New returns a fresh hash for the algorithm. It panics on an unavailable
// algorithm; callers obtain algorithms from Parse or the constants.
func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New() //nolint:gosec // see import
	case BLAKE3:
		return blake3.New()
	case SHA256, SHA384, SHA512:
		return digest.Algorithm(a).Hash()
	default:
		panic(fmt.Sprintf("integrity: unavailable algorithm %q", string(a)))
	}
}

// Size returns the digest size in bytes.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return md5.Size
	case BLAKE3:
		return 32
	case SHA256, SHA384, SHA512:
		return digest.Algorithm(a).Size()
	default:
		return 0
	}
}

// String returns the algorithm name.
func (a Algorithm) String() string { return string(a) }

// Digest is a parsed digest value.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
}

// String returns the tagged form "algorithm:hex".
func (d Digest) String() string {
	if d.Algorithm == "" {
		return ""
	}
	return string(d.Algorithm) + ":" + hex.EncodeToString(d.Sum)
}

// Hex returns the lower-case hex encoding of the sum.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Sum)
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d.Algorithm == "" && len(d.Sum) == 0
}

// Matches reports whether sum equals the digest, in constant time.
func (d Digest) Matches(sum []byte) bool {
	if len(sum) != len(d.Sum) || len(sum) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(sum, d.Sum) == 1
}

// Equal reports whether two digests use the same algorithm and sum.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Matches(other.Sum)
}

// Parse parses a bare-hex or tagged digest string.
func Parse(s string) (Digest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Digest{}, fmt.Errorf("%w: empty", ErrInvalidDigest)
	}

	algo, encoded, tagged := strings.Cut(s, ":")
	if !tagged {
		encoded = algo
		a, ok := algorithmForHexLen(len(encoded))
		if !ok {
			return Digest{}, fmt.Errorf("%w: unrecognized length %d", ErrInvalidDigest, len(encoded))
		}
		algo = string(a)
	}

	a := Algorithm(algo)
	switch a {
	case SHA256, SHA384, SHA512:
		// go-digest owns validation of the registered algorithms.
		d, err := digest.Parse(algo + ":" + encoded)
		if err != nil {
			return Digest{}, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
		}
		sum, err := hex.DecodeString(d.Encoded())
		if err != nil {
			return Digest{}, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
		}
		return Digest{Algorithm: a, Sum: sum}, nil
	case MD5, BLAKE3:
		sum, err := hex.DecodeString(encoded)
		if err != nil {
			return Digest{}, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
		}
		if len(sum) != a.Size() {
			return Digest{}, fmt.Errorf("%w: %s sum has %d bytes, want %d", ErrInvalidDigest, a, len(sum), a.Size())
		}
		return Digest{Algorithm: a, Sum: sum}, nil
	default:
		return Digest{}, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidDigest, algo)
	}
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Digest {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func algorithmForHexLen(n int) (Algorithm, bool) {
	switch n {
	case 2 * md5.Size:
		return MD5, true
	case 64:
		return SHA256, true
	case 96:
		return SHA384, true
	case 128:
		return SHA512, true
	default:
		return "", false
	}
}
