// Package locations implements the Locations index: a recomputable,
// in-memory map from (chain, segment) to content offset and
// packed offset, built once after every geometry mutation the same way
// gocryptfs's contentenc computes block/nonce geometry from a fixed
// segment size — except here each chain can have its own segment count,
// its own first-nonce, and (for the last chain only) no fixed size at all.
package locations

import (
	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// Pos identifies a byte position as (chain, segment, offset within segment).
type Pos struct {
	Chain    int
	Seg      int
	PosInSeg int64
}

// SegmentInfo is the read-only geometry of one segment, as returned by
// SegmentInfo/SegmentInfos.
type SegmentInfo struct {
	Chain        int
	Seg          int
	ContentOfs   int64
	ContentLen   int64
	PackedOfs    int64
	PackedLen    int64
	EndlessChain bool
}

type chainEntry struct {
	contentStart, contentEnd int64 // contentEnd is -1 when undefined (endless)
	packedStart, packedEnd   int64 // packedEnd is -1 when undefined (endless)
}

// Locations is the recomputed index over a SegsInfo's chains.
type Locations struct {
	segSize int
	poly    int
	chains  []header.ChainInfo
	entries []chainEntry
	variant uint64
}

// New builds a Locations index for chains, whose common plaintext segment
// size is segSize and whose per-segment authenticator overhead is poly.
func New(segSize, poly int, chains []header.ChainInfo) *Locations {
	l := &Locations{segSize: segSize, poly: poly}
	l.Rebuild(chains)
	return l
}

// Rebuild recomputes the index from scratch after a geometry mutation and
// bumps variant, invalidating any iterator still alive from before the
// call, so a concurrent iterator fails fast instead of returning stale
// positions.
func (l *Locations) Rebuild(chains []header.ChainInfo) {
	l.chains = chains
	l.entries = make([]chainEntry, len(chains))
	var contentPos, packedPos int64
	for i, c := range chains {
		e := chainEntry{contentStart: contentPos, packedStart: packedPos}
		if c.IsEndless {
			e.contentEnd = -1
			e.packedEnd = -1
		} else {
			contentLen := int64(c.NumOfSegs-1)*int64(l.segSize) + int64(c.LastSegSize)
			packedLen := contentLen + int64(c.NumOfSegs)*int64(l.poly)
			contentPos += contentLen
			packedPos += packedLen
			e.contentEnd = contentPos
			e.packedEnd = packedPos
		}
		l.entries[i] = e
	}
	l.variant++
}

// Variant returns the current rebuild generation, for iterators to capture.
func (l *Locations) Variant() uint64 { return l.variant }

// ContentLength returns the total plaintext length, and false if the file
// is endless (unbounded).
func (l *Locations) ContentLength() (int64, bool) {
	if len(l.entries) == 0 {
		return 0, true
	}
	last := l.entries[len(l.entries)-1]
	if last.contentEnd < 0 {
		return 0, false
	}
	return last.contentEnd, true
}

// SegmentsLength returns the total packed (ciphertext) length, and false if
// the file is endless.
func (l *Locations) SegmentsLength() (int64, bool) {
	if len(l.entries) == 0 {
		return 0, true
	}
	last := l.entries[len(l.entries)-1]
	if last.packedEnd < 0 {
		return 0, false
	}
	return last.packedEnd, true
}

// LocateContentOfs finds the (chain, segment, offset-in-segment) containing
// plaintext position p.
func (l *Locations) LocateContentOfs(p int64) (Pos, error) {
	if p < 0 {
		return Pos{}, xsperrors.New(xsperrors.ArgsOutOfBounds, "locations: negative offset")
	}
	for i, e := range l.entries {
		if e.contentEnd < 0 || e.contentEnd > p {
			seg := int((p - e.contentStart) / int64(l.segSize))
			posInSeg := (p - e.contentStart) % int64(l.segSize)
			return Pos{Chain: i, Seg: seg, PosInSeg: posInSeg}, nil
		}
	}
	return Pos{}, xsperrors.Newf(xsperrors.ArgsOutOfBounds, "locations: content offset %d out of bounds", p)
}

// LocateSegsOfs is LocateContentOfs's analogue over packed (ciphertext)
// coordinates, with stride segSize+poly.
func (l *Locations) LocateSegsOfs(p int64) (Pos, error) {
	if p < 0 {
		return Pos{}, xsperrors.New(xsperrors.ArgsOutOfBounds, "locations: negative offset")
	}
	stride := int64(l.segSize + l.poly)
	for i, e := range l.entries {
		if e.packedEnd < 0 || e.packedEnd > p {
			seg := int((p - e.packedStart) / stride)
			posInSeg := (p - e.packedStart) % stride
			return Pos{Chain: i, Seg: seg, PosInSeg: posInSeg}, nil
		}
	}
	return Pos{}, xsperrors.Newf(xsperrors.ArgsOutOfBounds, "locations: packed offset %d out of bounds", p)
}

// SegmentInfo returns the full geometry of segment (chain, seg).
func (l *Locations) SegmentInfo(chain, seg int) (SegmentInfo, error) {
	if chain < 0 || chain >= len(l.chains) {
		return SegmentInfo{}, xsperrors.Newf(xsperrors.UnknownSeg, "locations: unknown chain %d", chain)
	}
	c := l.chains[chain]
	e := l.entries[chain]

	if !c.IsEndless {
		if seg < 0 || uint32(seg) >= c.NumOfSegs {
			return SegmentInfo{}, xsperrors.Newf(xsperrors.UnknownSeg, "locations: unknown seg %d in chain %d", seg, chain)
		}
	} else if seg < 0 {
		return SegmentInfo{}, xsperrors.Newf(xsperrors.UnknownSeg, "locations: unknown seg %d in chain %d", seg, chain)
	}

	contentLen := int64(l.segSize)
	if !c.IsEndless && seg == int(c.NumOfSegs)-1 {
		contentLen = int64(c.LastSegSize)
	}
	contentOfs := e.contentStart + int64(seg)*int64(l.segSize)
	packedOfs := e.packedStart + int64(seg)*int64(l.segSize+l.poly)

	return SegmentInfo{
		Chain:        chain,
		Seg:          seg,
		ContentOfs:   contentOfs,
		ContentLen:   contentLen,
		PackedOfs:    packedOfs,
		PackedLen:    contentLen + int64(l.poly),
		EndlessChain: c.IsEndless,
	}, nil
}

// SegmentNonce returns the derived per-segment nonce for (chain, seg).
func (l *Locations) SegmentNonce(chain, seg int) (nonce.Nonce, error) {
	if chain < 0 || chain >= len(l.chains) {
		return nonce.Nonce{}, xsperrors.Newf(xsperrors.UnknownSeg, "locations: unknown chain %d", chain)
	}
	return nonce.Calculate(l.chains[chain].FirstNonce, uint64(seg)), nil
}

// Iterator yields segments in chain order starting at from (or the very
// first segment if from is nil), failing fast with ConcurrentIteration if
// the index was rebuilt since the iterator was created.
type Iterator struct {
	l       *Locations
	variant uint64
	chain   int
	seg     int
	done    bool
}

// SegmentInfos returns an Iterator starting at from (or the beginning).
func (l *Locations) SegmentInfos(from *Pos) *Iterator {
	it := &Iterator{l: l, variant: l.variant}
	if from != nil {
		it.chain, it.seg = from.Chain, from.Seg
	}
	return it
}

// Next returns the next segment, or ok=false at end of the file. It returns
// ConcurrentIteration if the Locations index was rebuilt since creation.
func (it *Iterator) Next() (info SegmentInfo, ok bool, err error) {
	if it.done {
		return SegmentInfo{}, false, nil
	}
	if it.variant != it.l.variant {
		return SegmentInfo{}, false, xsperrors.New(xsperrors.ConcurrentIteration,
			"locations: index rebuilt during iteration")
	}
	for it.chain < len(it.l.chains) {
		c := it.l.chains[it.chain]
		if !c.IsEndless && uint32(it.seg) >= c.NumOfSegs {
			it.chain++
			it.seg = 0
			continue
		}
		info, err = it.l.SegmentInfo(it.chain, it.seg)
		if err != nil {
			return SegmentInfo{}, false, err
		}
		it.seg++
		return info, true, nil
	}
	it.done = true
	return SegmentInfo{}, false, nil
}
