package segments

import (
	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/locations"
	"github.com/3nsoft/xsp-files-sub000/internal/packing"
)

// WritableSegmentInfo is a locations.SegmentInfo enriched with the
// chain-kind and headBytes bookkeeping a SegmentsWriter's caller needs:
// whether a segment's ciphertext is copied unchanged from the base stream,
// whether PackSeg still needs to run for it, and how many of a headBytes
// edge segment's leading content bytes are borrowed rather than
// caller-supplied.
type WritableSegmentInfo struct {
	locations.SegmentInfo
	// IsBase is true for a segment whose ciphertext already exists,
	// unchanged, in the base version; PackSeg must never be called for it —
	// the caller instead copies BaseOfs..BaseOfs+PackedLen from the base
	// packed stream (see ShowPackedLayout).
	IsBase bool
	// NeedsPacking is true for a new-chain segment PackSeg has not yet
	// produced ciphertext for.
	NeedsPacking bool
	// HeadBytesLen is >0 only for a headBytes edge chain's segment 0: that
	// many of ContentLen's leading bytes are borrowed from the base version,
	// so a caller buffering plaintext before calling PackSeg only needs to
	// wait for ContentLen-HeadBytesLen caller-supplied bytes, starting at
	// ContentOfs+HeadBytesLen.
	HeadBytesLen int
	// BaseOfs/BaseContentOfs are meaningful only when IsBase: the base
	// version's packed/content offset this segment's bytes live at.
	BaseOfs, BaseContentOfs int64
}

// SegmentInfoIterator walks a SegmentsWriter's segments in chain order,
// enriching each locations.SegmentInfo with writer-only bookkeeping.
type SegmentInfoIterator struct {
	pi *packing.PackingInfo
	it *locations.Iterator
}

// Next returns the next segment, or ok=false at end of the file. It returns
// ConcurrentIteration if the underlying Locations index was rebuilt since
// the iterator was created.
func (it *SegmentInfoIterator) Next() (WritableSegmentInfo, bool, error) {
	info, ok, err := it.it.Next()
	if err != nil || !ok {
		return WritableSegmentInfo{}, ok, err
	}
	wi := WritableSegmentInfo{SegmentInfo: info}
	c := it.pi.Chains()[info.Chain]
	if c.Kind == packing.KindBase {
		wi.IsBase = true
		wi.BaseOfs = c.Base.BaseOfs + int64(info.Seg)*int64(it.pi.SegSize()+cryptocore.Poly)
		wi.BaseContentOfs = c.Base.BaseContentOfs + int64(info.Seg)*int64(it.pi.SegSize())
		return wi, true, nil
	}
	wi.NeedsPacking = !c.New.Unpacked.IsPacked(uint32(info.Seg))
	if info.Seg == 0 && c.New.HeadBytes != nil {
		wi.HeadBytesLen = c.New.HeadBytes.Len
	}
	return wi, true, nil
}
