package segments

import (
	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/locations"
	"github.com/3nsoft/xsp-files-sub000/internal/memprotect"
	"github.com/3nsoft/xsp-files-sub000/internal/packing"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// writerWorkLabel is this writer's own work-budget identity, distinct from
// any reader sharing the same Cryptor.
const writerWorkLabel = 2

// SegmentsWriter drives a packing.PackingInfo to produce packed bytes: new
// segments are sealed from caller-supplied plaintext (or, for a headBytes
// edge chain, from plaintext borrowed out of the base version's
// ciphertext), base segments are never re-encrypted and are instead copied
// by the caller straight from the base packed stream per ShowPackedLayout.
type SegmentsWriter struct {
	pi      *packing.PackingInfo
	key     []byte
	cryptor cryptocore.Cryptor
	baseSrc ByteSource // nil if there is no base version
}

// NewWriter starts a brand-new, baseless SegmentsWriter.
func NewWriter(segSizeIn256B, formatVersion, payloadFormatVersion int, key []byte, cryptor cryptocore.Cryptor, rng cryptocore.RNG) (*SegmentsWriter, error) {
	pi, err := packing.New(segSizeIn256B, formatVersion, payloadFormatVersion, rng)
	if err != nil {
		return nil, err
	}
	return &SegmentsWriter{pi: pi, key: key, cryptor: cryptor}, nil
}

// RestartWriter rebuilds a SegmentsWriter that must re-seal every segment
// of an existing header under fresh bookkeeping (no base version is
// referenced; every chain is "new" and fully unpacked).
func RestartWriter(segSize, formatVersion, payloadFormatVersion int, si header.SegsInfo, key []byte, cryptor cryptocore.Cryptor, rng cryptocore.RNG) *SegmentsWriter {
	pi := packing.Restart(segSize, formatVersion, payloadFormatVersion, si, rng)
	return &SegmentsWriter{pi: pi, key: key, cryptor: cryptor}
}

// UpdateWriter starts a SegmentsWriter layered on top of a base version
// described by baseSi/basePackedLen, read from baseSrc.
func UpdateWriter(segSize, formatVersion, payloadFormatVersion int, baseSi header.SegsInfo, basePackedLen int64, baseSrc ByteSource, key []byte, cryptor cryptocore.Cryptor, rng cryptocore.RNG) (*SegmentsWriter, error) {
	pi, err := packing.Update(segSize, formatVersion, payloadFormatVersion, baseSi, basePackedLen, rng)
	if err != nil {
		return nil, err
	}
	return &SegmentsWriter{pi: pi, key: key, cryptor: cryptor, baseSrc: baseSrc}, nil
}

// Locations exposes the writer's current Locations index.
func (w *SegmentsWriter) Locations() *locations.Locations { return w.pi.Locations() }

// LocateContentOfs delegates to the current Locations index.
func (w *SegmentsWriter) LocateContentOfs(p int64) (locations.Pos, error) {
	return w.pi.Locations().LocateContentOfs(p)
}

// LocateSegsOfs delegates to the current Locations index.
func (w *SegmentsWriter) LocateSegsOfs(p int64) (locations.Pos, error) {
	return w.pi.Locations().LocateSegsOfs(p)
}

// SegmentInfos returns an iterator over this writer's segments starting at
// from (nil for the beginning), enriched beyond the bare Locations geometry
// with the writer-only bookkeeping a caller packing/dispatching segments
// needs: whether a segment's bytes are copied unchanged from the base
// stream, whether it still needs PackSeg, and, for a headBytes edge
// segment, how many of its leading content bytes are borrowed rather than
// caller-supplied.
func (w *SegmentsWriter) SegmentInfos(from *locations.Pos) *SegmentInfoIterator {
	return &SegmentInfoIterator{pi: w.pi, it: w.pi.Locations().SegmentInfos(from)}
}

// IsEndlessFile reports whether the trailing chain is unbounded.
func (w *SegmentsWriter) IsEndlessFile() bool { return w.pi.IsEndlessFile() }

// SetContentLength grows or cuts the file to exactly n bytes, or (if
// infinite) reopens/keeps an endless trailing chain.
func (w *SegmentsWriter) SetContentLength(n int64, infinite bool) error {
	return w.pi.SetContentLength(n, infinite)
}

// ContentLength returns the writer's current logical content length: the
// exact length for a finite file, or the content end of the rightmost
// packed segment so far for an endless one.
func (w *SegmentsWriter) ContentLength() int64 {
	return w.pi.PackedSoFar()
}

// Splice adjusts geometry for a pos/del/ins edit; see packing.Splice.
func (w *SegmentsWriter) Splice(pos, del, ins int64) error {
	return w.pi.Splice(pos, del, ins)
}

// ShowContentLayout returns the writer's chains as header-level geometry,
// useful for a caller wanting to show plaintext layout without touching
// packing internals.
func (w *SegmentsWriter) ShowContentLayout() []header.ChainInfo {
	si := w.pi.ToSegsInfo()
	return si.SegChains
}

// ShowPackedLayout returns the packed-byte splice manifest: which byte
// ranges to copy from the base stream unchanged, and which still need
// PackSeg.
func (w *SegmentsWriter) ShowPackedLayout() []LayoutEntry {
	return ShowPackedLayout(w.pi)
}

// PackSeg seals one segment of a new chain. plaintext must be exactly that
// segment's own new content: for most segments that is the whole segment,
// but for a headBytes edge segment (chain's segment 0 re-encrypting a
// borrowed base run) plaintext is only the caller-supplied tail written
// after the borrowed prefix — PackSeg reads and prepends that prefix
// itself, so plaintext may be empty/nil for a pure-truncation edge whose
// entire content is borrowed.
func (w *SegmentsWriter) PackSeg(chain, seg int, plaintext []byte) ([]byte, error) {
	if chain < 0 || chain >= len(w.pi.Chains()) {
		return nil, xsperrors.Newf(xsperrors.UnknownSeg, "segments: unknown chain %d", chain)
	}
	c := w.pi.Chains()[chain]
	if c.Kind != packing.KindNew {
		return nil, xsperrors.New(xsperrors.SegsPacked, "segments: base chain segments are never packed")
	}
	if c.New.Unpacked.IsPacked(uint32(seg)) {
		return nil, xsperrors.Newf(xsperrors.SegsPacked, "segments: segment %d of chain %d already packed", seg, chain)
	}

	n, err := w.pi.Locations().SegmentNonce(chain, seg)
	if err != nil {
		return nil, err
	}

	pt := plaintext
	if seg == 0 && c.New.HeadBytes != nil {
		if w.baseSrc == nil {
			return nil, xsperrors.New(xsperrors.InputParsing, "segments: headBytes chain needs a base source")
		}
		hb := c.New.HeadBytes
		ct := make([]byte, hb.BaseSegPackedLen)
		if _, err := w.baseSrc.ReadAt(ct, hb.BaseSegPackedOfs); err != nil {
			return nil, xsperrors.Wrap(xsperrors.InputParsing, "segments: reading base bytes for headBytes edge", err)
		}
		borrowed, err := w.cryptor.Open(ct, hb.BaseSegNonce.Bytes(), w.key)
		if err != nil {
			return nil, err
		}
		if len(borrowed) < hb.Offset+hb.Len {
			return nil, xsperrors.New(xsperrors.InputParsing, "segments: base segment shorter than headBytes offset+len")
		}
		prefix := borrowed[hb.Offset : hb.Offset+hb.Len]
		pt = make([]byte, 0, len(prefix)+len(plaintext))
		pt = append(pt, prefix...)
		pt = append(pt, plaintext...)
	}

	info, err := w.pi.Locations().SegmentInfo(chain, seg)
	if err != nil {
		return nil, err
	}
	if int64(len(pt)) != info.ContentLen {
		return nil, xsperrors.Newf(xsperrors.InputParsing,
			"segments: wrong plaintext length for chain %d seg %d: got %d want %d", chain, seg, len(pt), info.ContentLen)
	}

	ct := w.cryptor.Pack(pt, n.Bytes(), w.key)
	if !c.New.Unpacked.MarkPacked(uint32(seg)) {
		return nil, xsperrors.Newf(xsperrors.SegsPacked, "segments: concurrent pack of chain %d seg %d", chain, seg)
	}
	tlog.Debug.Printf("segments: packed chain=%d seg=%d content=%d packed=%d", chain, seg, len(pt), len(ct))
	return ct, nil
}

// PackHeader seals the header plaintext under
// packing.HeaderNonce(zerothHeaderNonce, version), the zeroth header nonce
// advanced by version. It also freezes the writer's geometry.
func (w *SegmentsWriter) PackHeader(zerothHeaderNonce [24]byte, version int) []byte {
	n := packing.HeaderNonce(zerothHeaderNonce, version)
	plain := header.Encode(w.pi.ToSegsInfo())
	ct := w.cryptor.Pack(plain, n.Bytes(), w.key)
	w.pi.FreezeHeader()
	return ct
}

// IsHeaderPacked reports whether PackHeader has run since the last
// geometry change.
func (w *SegmentsWriter) IsHeaderPacked() bool { return w.pi.IsHeaderPacked() }

// UnpackedReencryptChainSegs reports, for chain, which segment indices
// still need PackSeg (used by a caller replaying a restart/update to know
// what work remains).
func (w *SegmentsWriter) UnpackedReencryptChainSegs(chain int) ([]uint32, error) {
	if chain < 0 || chain >= len(w.pi.Chains()) {
		return nil, xsperrors.Newf(xsperrors.UnknownSeg, "segments: unknown chain %d", chain)
	}
	c := w.pi.Chains()[chain]
	if c.Kind != packing.KindNew {
		return nil, nil
	}
	max := c.MaxSegIdx()
	var out []uint32
	for seg := uint32(0); seg <= max && seg < packing.MaxSegIndex; seg++ {
		if !c.New.Unpacked.IsPacked(seg) {
			out = append(out, seg)
		}
		if c.New.IsEndless && seg > 1<<20 {
			break // endless tail: caller drives packing incrementally, not by full enumeration
		}
	}
	return out, nil
}

// Destroy zeroes this writer's key and releases its held references.
func (w *SegmentsWriter) Destroy() {
	memprotect.Wipe(w.key)
	w.pi = nil
	w.key = nil
	w.baseSrc = nil
}
