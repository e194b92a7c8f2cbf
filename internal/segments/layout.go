package segments

import (
	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/packing"
)

// EntryKind tags one packed-layout entry as bytes to be copied unchanged
// from the base version, or bytes that must be freshly packed this
// version.
type EntryKind int

const (
	// FromBase means the packed bytes already exist, unchanged, at BaseOfs
	// in the base version's packed stream (or, for a new chain's
	// already-packed segments, at PackedOfs in this version's own output
	// stream).
	FromBase EntryKind = iota
	// ToPack means the packed bytes for this segment must still be
	// produced by PackSeg before the layout is complete.
	ToPack
)

// LayoutEntry is one contiguous run of a chain's segments as seen from the
// packed-byte perspective, used to replay a splice without redoing any
// PackingInfo bookkeeping.
type LayoutEntry struct {
	Kind EntryKind
	// Chain and SegFrom..SegTo (inclusive) identify which segments this
	// entry covers.
	Chain, SegFrom, SegTo int
	// BaseOfs is the base-version packed offset to copy from, valid only
	// when Kind==FromBase and the owning chain is a base chain.
	BaseOfs int64
	// PackedOfs/PackedLen is this entry's placement in the new version's
	// packed output stream.
	PackedOfs, PackedLen int64
}

// ShowPackedLayout walks pi's chains and returns the packed-byte layout an
// EncryptingByteSink would need to splice: one entry per maximal run of
// same-kind, contiguous segments.
func ShowPackedLayout(pi *packing.PackingInfo) []LayoutEntry {
	var out []LayoutEntry
	loc := pi.Locations()
	for ci, c := range pi.Chains() {
		segCount, finite := c.NumOfSegs()
		if !finite {
			h, any := c.New.Unpacked.HighestPacked(packing.MaxSegIndex)
			if any {
				segCount = h + 1
			} else {
				segCount = 0
			}
		}

		for seg := uint32(0); seg < segCount; seg++ {
			info, err := loc.SegmentInfo(ci, int(seg))
			if err != nil {
				continue
			}
			entry := LayoutEntry{
				Chain:     ci,
				SegFrom:   int(seg),
				SegTo:     int(seg),
				PackedOfs: info.PackedOfs,
				PackedLen: info.PackedLen,
			}
			switch c.Kind {
			case packing.KindBase:
				entry.Kind = FromBase
				entry.BaseOfs = c.Base.BaseOfs + int64(seg)*int64(pi.SegSize()+cryptocore.Poly)
			case packing.KindNew:
				if c.New.Unpacked.IsPacked(seg) {
					entry.Kind = FromBase // stable: already packed under this version's own nonce
					entry.BaseOfs = info.PackedOfs
				} else {
					entry.Kind = ToPack
				}
			}

			if n := len(out); n > 0 {
				prev := &out[n-1]
				if prev.Kind == entry.Kind && prev.Chain == entry.Chain && prev.SegTo+1 == entry.SegFrom &&
					(entry.Kind == ToPack || prev.BaseOfs+prev.PackedLen == entry.BaseOfs) {
					prev.SegTo = entry.SegFrom
					prev.PackedLen += entry.PackedLen
					continue
				}
			}
			out = append(out, entry)
		}
	}
	return out
}
