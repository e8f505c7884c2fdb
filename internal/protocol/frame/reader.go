package frame

import (
	"bytes"
	"io"
)

const DefaultChunkSize = 4096

// Observer receives reader-side framing notifications. Either field may be nil.
type Observer struct {
	// Resync is called when bytes are discarded to recover frame alignment.
	Resync func(discarded int, found bool)
	// Frame is called once per decoded payload with its byte length.
	Frame func(length int)
}

// Reader reassembles frames from a byte stream. It tolerates fragmentation
// and resynchronizes on the magic sentinel after corruption.
//
// A Reader is not safe for concurrent use; one receive loop owns it.
type Reader struct {
	src      io.Reader
	buf      []byte
	chunk    []byte
	limits   Limits
	observer Observer
}

type ReaderOption func(*Reader)

func WithChunkSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.chunk = make([]byte, n)
		}
	}
}

func WithLimits(l Limits) ReaderOption {
	return func(r *Reader) {
		r.limits = l
	}
}

func WithObserver(o Observer) ReaderOption {
	return func(r *Reader) {
		r.observer = o
	}
}

func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:    src,
		chunk:  make([]byte, DefaultChunkSize),
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadMessages performs one read from the source and returns every payload
// completed by it. A closed peer yields io.EOF. Transport errors are
// returned with no messages; already buffered bytes are kept.
func (r *Reader) ReadMessages() ([]string, error) {
	n, err := r.src.Read(r.chunk)
	var msgs []string
	if n > 0 {
		msgs = r.Feed(r.chunk[:n])
	}
	if err != nil {
		if len(msgs) > 0 {
			// Deliver what completed; the error surfaces on the next read.
			return msgs, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return msgs, nil
}

// Feed appends p to the buffer and drains every complete frame.
func (r *Reader) Feed(p []byte) []string {
	r.buf = append(r.buf, p...)
	return r.drain()
}

// Buffered returns the number of unconsumed bytes.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Reset drops any buffered bytes.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
}

func (r *Reader) drain() []string {
	var out []string
	for len(r.buf) >= HeaderLen {
		h, _ := DecodeHeader(r.buf)
		if !h.Valid() || r.tooLarge(h.Length) {
			if !r.resync() {
				break
			}
			continue
		}
		total := HeaderLen + int(h.Length)
		if len(r.buf) < total {
			break
		}
		out = append(out, DecodePayload(r.buf[HeaderLen:total]))
		if r.observer.Frame != nil {
			r.observer.Frame(int(h.Length))
		}
		r.consume(total)
	}
	return out
}

func (r *Reader) tooLarge(length uint32) bool {
	return r.limits.MaxPayloadBytes > 0 && length > r.limits.MaxPayloadBytes
}

// resync drops bytes up to the next magic window after offset 0. When no
// window exists the buffer is cleared except for a trailing partial
// sentinel, and resync reports false.
func (r *Reader) resync() bool {
	k := nextMagic(r.buf)
	if k < 0 {
		keep := partialMagicSuffix(r.buf)
		discarded := len(r.buf) - keep
		r.consume(discarded)
		if r.observer.Resync != nil {
			r.observer.Resync(discarded, false)
		}
		return false
	}
	r.consume(k)
	if r.observer.Resync != nil {
		r.observer.Resync(k, true)
	}
	return true
}

func (r *Reader) consume(n int) {
	rest := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
}

func nextMagic(b []byte) int {
	if len(b) < 2 {
		return -1
	}
	i := bytes.Index(b[1:], magicBytes[:])
	if i < 0 {
		return -1
	}
	return i + 1
}

// partialMagicSuffix returns how many trailing bytes of b (at most 3) form
// a prefix of the sentinel.
func partialMagicSuffix(b []byte) int {
	for n := len(magicBytes) - 1; n > 0; n-- {
		if len(b) > n && bytes.Equal(b[len(b)-n:], magicBytes[:n]) {
			return n
		}
	}
	return 0
}
