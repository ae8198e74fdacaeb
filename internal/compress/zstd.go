package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DecoderPool manages reusable zstd decoders to reduce allocation overhead.
type DecoderPool struct {
	pool             sync.Pool
	maxDecoderMemory uint64
}

// NewDecoderPool creates a pool of zstd decoders.
// If maxMemory is 0, no memory limit is applied to decoders.
func NewDecoderPool(maxMemory uint64) *DecoderPool {
	return &DecoderPool{maxDecoderMemory: maxMemory}
}

// Decode decodes a complete zstd frame that must expand to exactly rawSize
// bytes.
func (p *DecoderPool) Decode(data []byte, rawSize int) ([]byte, error) {
	dec, release, err := p.get()
	if err != nil {
		return nil, err
	}
	defer release()

	out, err := dec.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, err
	}
	if len(out) != rawSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrSizeMismatch, len(out), rawSize)
	}
	return out, nil
}

func (p *DecoderPool) get() (*zstd.Decoder, func(), error) {
	if p == nil {
		dec, err := newDecoder(0)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}
	if v, ok := p.pool.Get().(*zstd.Decoder); ok {
		return v, func() { p.pool.Put(v) }, nil
	}
	dec, err := newDecoder(p.maxDecoderMemory)
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { p.pool.Put(dec) }, nil
}

func newDecoder(maxMemory uint64) (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if maxMemory > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(maxMemory))
	}
	return zstd.NewReader(nil, opts...)
}

var (
	encoderMu sync.Mutex
	encoders  = map[zstd.EncoderLevel]*zstd.Encoder{}
)

// ZstdEncode compresses data as a single zstd frame.
func ZstdEncode(data []byte, level zstd.EncoderLevel) ([]byte, error) {
	enc, err := encoderFor(level)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
}

// encoderFor returns a shared encoder; EncodeAll is safe for concurrent use.
func encoderFor(level zstd.EncoderLevel) (*zstd.Encoder, error) {
	encoderMu.Lock()
	defer encoderMu.Unlock()
	if enc, ok := encoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	encoders[level] = enc
	return enc, nil
}
