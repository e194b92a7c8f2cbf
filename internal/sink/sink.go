// Package sink implements EncryptingByteSink: a
// random-access plaintext write surface that buffers incoming bytes per
// content offset, packs whole segments as soon as they are complete, and
// dispatches the resulting ciphertext to a single subscriber in the order
// segments become complete, which need not be packed-offset order; the
// header is dispatched by FreezeLayout. The buffering strategy is adapted from
// writecoalescing.WriteBuffer: instead of coalescing small writes before a
// single flush callback, chunks are coalesced per-segment and flushed the
// moment a segment's full plaintext is available.
package sink

import (
	"sort"
	"sync"

	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/segments"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// Observer receives each packed segment and the header as they are sealed.
// Segments arrive in the order they are packed, not sorted by packedOfs;
// the header arrives with packedOfs 0, counted separately from segment
// offsets. data is a freshly allocated slice the sink does not touch again.
type Observer func(packedOfs int64, data []byte) error

// chunk is one still-unpacked run of plaintext bytes the caller has
// written, keyed by content offset.
type chunk struct {
	ofs  int64
	data []byte
}

// ChunksBuffer coalesces random-access plaintext writes until a full
// segment's worth of bytes accumulates at a given content offset.
type ChunksBuffer struct {
	mu     sync.Mutex
	chunks []chunk
}

// NewChunksBuffer returns an empty buffer.
func NewChunksBuffer() *ChunksBuffer { return &ChunksBuffer{} }

// Add records data at content offset ofs, merging it with any adjacent or
// overlapping chunk already buffered.
func (b *ChunksBuffer) Add(ofs int64, data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	b.chunks = append(b.chunks, chunk{ofs: ofs, data: cp})
	sort.Slice(b.chunks, func(i, j int) bool { return b.chunks[i].ofs < b.chunks[j].ofs })

	merged := b.chunks[:0]
	for _, c := range b.chunks {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			lastEnd := last.ofs + int64(len(last.data))
			if c.ofs <= lastEnd {
				overlapEnd := c.ofs + int64(len(c.data))
				if overlapEnd > lastEnd {
					last.data = append(last.data, c.data[lastEnd-c.ofs:]...)
				}
				continue
			}
		}
		merged = append(merged, c)
	}
	b.chunks = merged
}

// Extract returns the full plaintext for [ofs, ofs+n) if fully covered by
// buffered chunks, and true; otherwise (nil, false). A zero-length request
// is trivially satisfied regardless of buffer state.
func (b *ChunksBuffer) Extract(ofs int64, n int) ([]byte, bool) {
	if n == 0 {
		return []byte{}, true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	want := ofs + int64(n)
	for _, c := range b.chunks {
		cEnd := c.ofs + int64(len(c.data))
		if c.ofs <= ofs && cEnd >= want {
			return append([]byte(nil), c.data[ofs-c.ofs:want-c.ofs]...), true
		}
	}
	return nil, false
}

// Drop discards buffered bytes in [ofs, ofs+n), called once those bytes
// have been packed and no longer need to be held.
func (b *ChunksBuffer) Drop(ofs int64, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := ofs + int64(n)
	out := b.chunks[:0]
	for _, c := range b.chunks {
		cEnd := c.ofs + int64(len(c.data))
		switch {
		case cEnd <= ofs || c.ofs >= end:
			out = append(out, c)
		case c.ofs < ofs && cEnd > end:
			out = append(out, chunk{ofs: c.ofs, data: c.data[:ofs-c.ofs]})
			out = append(out, chunk{ofs: end, data: c.data[end-c.ofs:]})
		case c.ofs < ofs:
			out = append(out, chunk{ofs: c.ofs, data: c.data[:ofs-c.ofs]})
		case cEnd > end:
			out = append(out, chunk{ofs: end, data: c.data[end-c.ofs:]})
		}
	}
	b.chunks = out
}

// EncryptingByteSink is the random-access plaintext write surface.
type EncryptingByteSink struct {
	w                 *segments.SegmentsWriter
	buf               *ChunksBuffer
	observer          Observer
	mu                sync.Mutex // serializes packing/dispatch, single-slot in-order
	biggestContentOfs int64      // high-water mark of off+len across all Write calls
}

// New wraps w (an already-constructed SegmentsWriter) as a byte sink
// feeding obs with packed output.
func New(w *segments.SegmentsWriter, obs Observer) *EncryptingByteSink {
	return &EncryptingByteSink{w: w, buf: NewChunksBuffer(), observer: obs}
}

// SetSize grows or truncates the target length; see
// packing.PackingInfo.SetContentLength.
func (s *EncryptingByteSink) SetSize(n int64, infinite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.SetContentLength(n, infinite)
}

// ShowContentLayout returns the current plaintext chain geometry.
func (s *EncryptingByteSink) ShowContentLayout() []header.ChainInfo {
	return s.w.ShowContentLayout()
}

// ShowPackedLayout returns the current packed-byte splice manifest.
func (s *EncryptingByteSink) ShowPackedLayout() []segments.LayoutEntry {
	return s.w.ShowPackedLayout()
}

// SpliceLayout applies a pos/del/ins geometry edit.
func (s *EncryptingByteSink) SpliceLayout(pos, del, ins int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Splice(pos, del, ins)
}

// FreezeLayout packs the header under header nonce zerothHeaderNonce and
// version, and emits it to the observer at packed offset 0. After this
// call, geometry can never change again.
func (s *EncryptingByteSink) FreezeLayout(zerothHeaderNonce [24]byte, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct := s.w.PackHeader(zerothHeaderNonce, version)
	return s.observer(0, ct)
}

// Write buffers plaintext data at content offset off, packing and
// dispatching every segment that becomes fully covered as a result.
func (s *EncryptingByteSink) Write(off int64, data []byte) error {
	s.buf.Add(off, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if end := off + int64(len(data)); end > s.biggestContentOfs {
		s.biggestContentOfs = end
	}
	return s.packReadyLocked(off, len(data))
}

// packReadyLocked scans the segments overlapping [off, off+n) and packs
// every one whose full plaintext is now buffered, having first force-packed
// any headBytes edge segment that needs no caller-supplied bytes at all
// (see forcePackZeroNeedEdgesLocked). s.mu must already be held.
func (s *EncryptingByteSink) packReadyLocked(off int64, n int) error {
	if err := s.forcePackZeroNeedEdgesLocked(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	first, err := s.w.LocateContentOfs(off)
	if err != nil {
		return err
	}
	last, err := s.w.LocateContentOfs(off + int64(n) - 1)
	if err != nil {
		return err
	}

	it := s.w.SegmentInfos(&first)
	for {
		info, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if info.IsBase || !info.NeedsPacking {
			if info.Chain == last.Chain && info.Seg == last.Seg {
				break
			}
			continue
		}
		need := info.ContentLen - int64(info.HeadBytesLen)
		wantOfs := info.ContentOfs + int64(info.HeadBytesLen)
		pt, have := s.buf.Extract(wantOfs, int(need))
		if have {
			ct, err := s.w.PackSeg(info.Chain, info.Seg, pt)
			if err != nil {
				return xsperrors.Wrap(xsperrors.InputParsing, "sink: packing segment", err)
			}
			if err := s.observer(info.PackedOfs, ct); err != nil {
				return err
			}
			if need > 0 {
				s.buf.Drop(wantOfs, int(need))
			}
			tlog.Debug.Printf("sink: dispatched chain=%d seg=%d packedOfs=%d", info.Chain, info.Seg, info.PackedOfs)
		}
		if info.Chain == last.Chain && info.Seg == last.Seg {
			break
		}
	}
	return nil
}

// forcePackZeroNeedEdgesLocked packs any headBytes edge chain whose
// borrowed prefix is the entirety of its segment's content (e.g. a pure
// truncation edge). Such a segment's caller-required byte count is zero,
// so no Write call's range will ever naturally cover it — it must be
// packed proactively instead of waiting on Extract. s.mu must already be
// held.
func (s *EncryptingByteSink) forcePackZeroNeedEdgesLocked() error {
	it := s.w.SegmentInfos(nil)
	for {
		info, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if info.IsBase || !info.NeedsPacking || info.HeadBytesLen == 0 {
			continue
		}
		if info.ContentLen-int64(info.HeadBytesLen) > 0 {
			continue
		}
		ct, err := s.w.PackSeg(info.Chain, info.Seg, nil)
		if err != nil {
			return xsperrors.Wrap(xsperrors.InputParsing, "sink: force-packing headBytes edge", err)
		}
		if err := s.observer(info.PackedOfs, ct); err != nil {
			return err
		}
		tlog.Debug.Printf("sink: force-packed headBytes edge chain=%d seg=%d packedOfs=%d", info.Chain, info.Seg, info.PackedOfs)
	}
	return nil
}

// Done finalizes the sink. If the file is still endless and its header has
// not been packed yet, its content length is pinned to the highest offset
// ever written; any headBytes edge chain still waiting only on its
// zero-length caller requirement is force-packed; and the header must
// already have been packed via FreezeLayout.
func (s *EncryptingByteSink) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.w.IsHeaderPacked() && s.w.IsEndlessFile() {
		if err := s.w.SetContentLength(s.biggestContentOfs, false); err != nil {
			return err
		}
	}
	limit := s.biggestContentOfs
	if n, finite := s.w.Locations().ContentLength(); finite && n < limit {
		limit = n
	}
	if err := s.packReadyLocked(0, int(limit)); err != nil {
		return err
	}
	if !s.w.IsHeaderPacked() {
		return xsperrors.New(xsperrors.HeaderPacked, "sink: Done called before FreezeLayout packed a header")
	}
	return nil
}

// Destroy releases the sink's held references.
func (s *EncryptingByteSink) Destroy() {
	s.w.Destroy()
	s.buf = nil
	s.observer = nil
}
