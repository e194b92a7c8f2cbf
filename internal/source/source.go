// Package source implements DecryptingByteSource and EncryptingObjSource:
// stateful cursors over a SegmentsReader/
// SegmentsWriter pair, the way gocryptfs's own file handle keeps a current
// offset across successive Read calls instead of making every caller pass
// one explicitly.
package source

import (
	"context"
	"io"
	"sync"

	"github.com/3nsoft/xsp-files-sub000/internal/segments"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// DecryptingByteSource is a stateful, seekable, random-access decrypting
// cursor over one SegmentsReader.
type DecryptingByteSource struct {
	r   *segments.SegmentsReader
	mu  sync.Mutex
	pos int64
}

// New wraps r as a byte source starting at position 0.
func New(r *segments.SegmentsReader) *DecryptingByteSource {
	return &DecryptingByteSource{r: r}
}

// GetPosition returns the cursor's current content offset.
func (s *DecryptingByteSource) GetPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Seek moves the cursor to an absolute content offset. Negative offsets
// and offsets past a finite file's length are rejected; an endless file
// accepts any non-negative offset.
func (s *DecryptingByteSource) Seek(off int64) error {
	if off < 0 {
		return xsperrors.New(xsperrors.ArgsOutOfBounds, "source: negative seek offset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, finite := s.r.ContentLength(); finite && off > n {
		return xsperrors.Newf(xsperrors.ArgsOutOfBounds, "source: seek past content length %d", n)
	}
	s.pos = off
	return nil
}

// GetSize returns the total plaintext length, and false if the file is
// endless.
func (s *DecryptingByteSource) GetSize() (int64, bool) {
	return s.r.ContentLength()
}

// ReadNext reads up to len(p) bytes starting at the cursor, advancing it,
// and returns io.EOF once a finite file's end is reached (matching
// io.Reader's contract).
func (s *DecryptingByteSource) ReadNext(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	off := s.pos
	s.mu.Unlock()

	n, err := s.ReadAt(ctx, p, off)
	if n > 0 {
		s.mu.Lock()
		s.pos = off + int64(n)
		s.mu.Unlock()
	}
	return n, err
}

// ReadAt decrypts len(p) bytes at content offset off without moving the
// cursor, trimming short at a finite file's end and returning io.EOF only
// when off is already at or past that end.
func (s *DecryptingByteSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	total, finite := s.r.ContentLength()
	if finite {
		if off >= total {
			return 0, io.EOF
		}
		if off+int64(len(p)) > total {
			p = p[:total-off]
		}
	}
	n, err := s.r.ReadAt(ctx, p, off)
	if err != nil {
		return n, err
	}
	if finite && off+int64(n) >= total && n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Destroy releases the source's held references.
func (s *DecryptingByteSource) Destroy() {
	s.r = nil
}

// EncryptingObjSource is a forward-seek-only cursor over a
// SegmentsWriter's packed output, used to stream a new/updated object to a
// destination that itself only supports appending (e.g. a content-addressed
// object store). Unlike DecryptingByteSource, its cursor can only move
// forward: once bytes are yielded they are considered committed.
type EncryptingObjSource struct {
	w         *segments.SegmentsWriter
	version   int
	it        *segments.SegmentInfoIterator
	headerOut []byte // pending header bytes not yet yielded
	mu        sync.Mutex
}

// NewObjSource wraps w, with header bytes already produced via
// w.PackHeader (header is always the logical first output of an object),
// tagged with the header-nonce version that produced them.
func NewObjSource(w *segments.SegmentsWriter, headerCiphertext []byte, version int) *EncryptingObjSource {
	return &EncryptingObjSource{w: w, headerOut: append([]byte(nil), headerCiphertext...), version: version, it: w.SegmentInfos(nil)}
}

// Version reports the header-nonce version this object was packed under.
func (s *EncryptingObjSource) Version() int { return s.version }

// ReadHeader yields the pending header ciphertext exactly once, then
// returns (nil, false) on every subsequent call.
func (s *EncryptingObjSource) ReadHeader() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headerOut == nil {
		return nil, false
	}
	out := s.headerOut
	s.headerOut = nil
	return out, true
}

// SegSrc provides plaintext for the next not-yet-packed segment via fill,
// packs it, and returns the resulting ciphertext — or (nil, false) once
// every chain has been exhausted. Base-chain segments and segments already
// packed are skipped over (their ciphertext is unchanged from the base
// stream, or already yielded); fill is called with exactly the
// caller-supplied plaintext length the next segment needs, which for a
// headBytes edge segment is its content length less the borrowed prefix
// PackSeg itself re-supplies.
func (s *EncryptingObjSource) SegSrc(fill func(chain, seg int, buf []byte) error) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		info, ok, err := s.it.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if info.IsBase || !info.NeedsPacking {
			continue
		}
		buf := make([]byte, info.ContentLen-int64(info.HeadBytesLen))
		if err := fill(info.Chain, info.Seg, buf); err != nil {
			return nil, false, err
		}
		ct, err := s.w.PackSeg(info.Chain, info.Seg, buf)
		if err != nil {
			return nil, false, err
		}
		return ct, true, nil
	}
}

// Destroy releases the source's held references.
func (s *EncryptingObjSource) Destroy() {
	s.w = nil
}
