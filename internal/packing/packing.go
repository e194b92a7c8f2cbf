package packing

import (
	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/locations"
	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// PackingInfo is the splice/cut/grow state machine tracking a file's
// segment chains and which of their segments have been packed.
type PackingInfo struct {
	segSize               int
	poly                  int
	formatVersion         int
	payloadFormatVersion  int
	chains                []*Chain
	nextID                int
	rng                   cryptocore.RNG
	headerPacked          bool
	geometryFrozen        bool // set by Restart; also implied by headerPacked
	loc                   *locations.Locations
}

// New builds an empty PackingInfo with one endless new chain.
func New(segSizeIn256B, formatVersion, payloadFormatVersion int, rng cryptocore.RNG) (*PackingInfo, error) {
	pi := &PackingInfo{
		segSize:              segSizeIn256B << 8,
		poly:                 cryptocore.Poly,
		formatVersion:        formatVersion,
		payloadFormatVersion: payloadFormatVersion,
		rng:                  rng,
	}
	if err := pi.addEndlessChain(); err != nil {
		return nil, err
	}
	pi.rebuildLocations()
	return pi, nil
}

// Restart rebuilds a PackingInfo from an existing header, treating every
// chain as new-and-frozen: geometry can never change again, and every
// segment needs (re-)packing under the header's original nonces.
func Restart(segSize, formatVersion, payloadFormatVersion int, si header.SegsInfo, rng cryptocore.RNG) *PackingInfo {
	pi := &PackingInfo{
		segSize:              segSize,
		poly:                 cryptocore.Poly,
		formatVersion:        formatVersion,
		payloadFormatVersion: payloadFormatVersion,
		rng:                  rng,
		geometryFrozen:       true,
	}
	for _, c := range si.SegChains {
		nc := &NewChain{FirstNonce: c.FirstNonce, IsEndless: c.IsEndless}
		if c.IsEndless {
			nc.Unpacked = NewFull(MaxSegIndex)
		} else {
			nc.NumOfSegs = c.NumOfSegs
			nc.LastSegSize = c.LastSegSize
			nc.Unpacked = NewFull(c.NumOfSegs - 1)
		}
		pi.appendChain(&Chain{Kind: KindNew, New: nc})
	}
	pi.rebuildLocations()
	return pi
}

// Update builds a PackingInfo whose every chain is a base reference into
// baseSi, whose own total packed length is basePackedLen (needed to resolve
// an endless trailing base chain into a finite one).
func Update(segSize, formatVersion, payloadFormatVersion int, baseSi header.SegsInfo, basePackedLen int64, rng cryptocore.RNG) (*PackingInfo, error) {
	chains := make([]header.ChainInfo, len(baseSi.SegChains))
	copy(chains, baseSi.SegChains)
	if n := len(chains); n > 0 && chains[n-1].IsEndless {
		priorPacked := int64(0)
		tmpLoc := locations.New(segSize, cryptocore.Poly, chains[:n-1])
		if pl, ok := tmpLoc.SegmentsLength(); ok {
			priorPacked = pl
		}
		numSegs, lastSegSize := turnEndlessToFiniteFromPackedLen(segSize, basePackedLen-priorPacked)
		chains[n-1] = header.ChainInfo{
			FirstNonce:  chains[n-1].FirstNonce,
			NumOfSegs:   numSegs,
			LastSegSize: lastSegSize,
		}
	}

	loc := locations.New(segSize, cryptocore.Poly, chains)
	pi := &PackingInfo{
		segSize:              segSize,
		poly:                 cryptocore.Poly,
		formatVersion:        formatVersion,
		payloadFormatVersion: payloadFormatVersion,
		rng:                  rng,
	}
	for i, c := range chains {
		info, err := loc.SegmentInfo(i, 0)
		if err != nil {
			return nil, err
		}
		pi.appendChain(&Chain{
			Kind: KindBase,
			Base: &BaseChain{
				FirstNonce:     c.FirstNonce,
				NumOfSegs:      c.NumOfSegs,
				LastSegSize:    c.LastSegSize,
				BaseOfs:        info.PackedOfs,
				BaseContentOfs: info.ContentOfs,
			},
		})
	}
	pi.rebuildLocations()
	return pi, nil
}

// turnEndlessToFiniteFromPackedLen resolves an endless chain's geometry
// given the packed byte length attributable to that chain alone.
func turnEndlessToFiniteFromPackedLen(segSize int, packedLen int64) (numOfSegs uint32, lastSegSize int) {
	full := int64(segSize + cryptocore.Poly)
	n := (packedLen + full - 1) / full
	if n < 1 {
		n = 1
	}
	rem := packedLen - (n-1)*full
	last := int(rem) - cryptocore.Poly
	if last < 1 {
		last = segSize
	}
	return uint32(n), last
}

func (pi *PackingInfo) appendChain(c *Chain) {
	c.ID = pi.nextID
	pi.nextID++
	pi.chains = append(pi.chains, c)
}

func (pi *PackingInfo) rebuildLocations() {
	infos := make([]header.ChainInfo, len(pi.chains))
	for i, c := range pi.chains {
		infos[i] = c.toHeaderChainInfo()
	}
	if pi.loc == nil {
		pi.loc = locations.New(pi.segSize, pi.poly, infos)
	} else {
		pi.loc.Rebuild(infos)
	}
}

// SegSize returns the common plaintext segment size.
func (pi *PackingInfo) SegSize() int { return pi.segSize }

// FormatVersion returns the header format (1 or 2).
func (pi *PackingInfo) FormatVersion() int { return pi.formatVersion }

// PayloadFormatVersion returns the caller's payload format tag.
func (pi *PackingInfo) PayloadFormatVersion() int { return pi.payloadFormatVersion }

// Locations returns the current, up-to-date Locations index.
func (pi *PackingInfo) Locations() *locations.Locations { return pi.loc }

// Chains exposes the current chain list, read-only by convention (callers
// must not mutate the returned slice or its elements).
func (pi *PackingInfo) Chains() []*Chain { return pi.chains }

// IsEndlessFile reports whether the trailing chain is the endless chain.
func (pi *PackingInfo) IsEndlessFile() bool {
	if len(pi.chains) == 0 {
		return false
	}
	return pi.chains[len(pi.chains)-1].IsEndless()
}

// PackedSoFar returns the current logical content length: the exact
// content length for a finite file, or the content end of the rightmost
// packed segment across all chains for an endless one still being written.
func (pi *PackingInfo) PackedSoFar() int64 {
	if n, finite := pi.totalContentLen(); finite {
		return n
	}
	return pi.finitePartOfContentLen()
}

// IsHeaderPacked reports whether PackHeader has already produced output.
func (pi *PackingInfo) IsHeaderPacked() bool { return pi.headerPacked }

// FreezeHeader marks the header as packed, freezing geometry forever.
func (pi *PackingInfo) FreezeHeader() { pi.headerPacked = true }

func (pi *PackingInfo) checkGeometryMutable() error {
	if pi.headerPacked {
		return xsperrors.New(xsperrors.HeaderPacked, "packing: header already packed, geometry is frozen")
	}
	if pi.geometryFrozen {
		return xsperrors.New(xsperrors.HeaderPacked, "packing: this PackingInfo was restarted and never allows geometry changes")
	}
	return nil
}

// ToSegsInfo builds the header.SegsInfo this PackingInfo currently
// describes (for encoding).
func (pi *PackingInfo) ToSegsInfo() header.SegsInfo {
	infos := make([]header.ChainInfo, 0, len(pi.chains))
	for _, c := range pi.chains {
		infos = append(infos, c.toHeaderChainInfo())
	}
	return header.SegsInfo{
		SegSize:              pi.segSize,
		FormatVersion:        pi.formatVersion,
		PayloadFormatVersion: pi.payloadFormatVersion,
		SegChains:            infos,
	}
}

// HeaderNonce computes calculateNonce(zerothHeaderNonce, version) for
// version>0, or a copy of zerothHeaderNonce for version==0.
func HeaderNonce(zerothHeaderNonce nonce.Nonce, version int) nonce.Nonce {
	if version <= 0 {
		return zerothHeaderNonce
	}
	return nonce.Calculate(zerothHeaderNonce, uint64(version))
}

func (pi *PackingInfo) addEndlessChain() error {
	if pi.IsEndlessFile() {
		return nil
	}
	fn, err := newRNGNonce(pi.rng)
	if err != nil {
		return err
	}
	pi.appendChain(&Chain{
		Kind: KindNew,
		New: &NewChain{
			FirstNonce: fn,
			IsEndless:  true,
			Unpacked:   NewFull(MaxSegIndex),
		},
	})
	return nil
}

// addFiniteChain appends a brand-new finite chain of contentLen plaintext
// bytes.
func (pi *PackingInfo) addFiniteChain(contentLen int64) error {
	if contentLen <= 0 {
		return nil
	}
	fn, err := newRNGNonce(pi.rng)
	if err != nil {
		return err
	}
	numSegs := uint32((contentLen + int64(pi.segSize) - 1) / int64(pi.segSize))
	last := contentLen - int64(numSegs-1)*int64(pi.segSize)
	pi.appendChain(&Chain{
		Kind: KindNew,
		New: &NewChain{
			FirstNonce:  fn,
			NumOfSegs:   numSegs,
			LastSegSize: int(last),
			Unpacked:    NewFull(numSegs - 1),
		},
	})
	return nil
}

// canGrowTail reports whether the last chain is a finite new chain whose
// top segment is unpacked, so its tail can be widened in place instead of
// appending a new chain.
func (pi *PackingInfo) canGrowTail() bool {
	if len(pi.chains) == 0 {
		return false
	}
	last := pi.chains[len(pi.chains)-1]
	if last.Kind != KindNew || last.New.IsEndless {
		return false
	}
	return !last.New.Unpacked.IsPacked(last.New.NumOfSegs - 1)
}

func (pi *PackingInfo) totalContentLen() (int64, bool) {
	return pi.loc.ContentLength()
}

// SetContentLength resizes the logical content length. infinite=true
// requests an endless file; otherwise n is the exact target length.
func (pi *PackingInfo) SetContentLength(n int64, infinite bool) error {
	if err := pi.checkGeometryMutable(); err != nil {
		return err
	}
	if infinite {
		if pi.IsEndlessFile() {
			return nil
		}
		if pi.canGrowTail() {
			pi.turnLastChainEndless()
		} else {
			if err := pi.addEndlessChain(); err != nil {
				return err
			}
		}
		pi.rebuildLocations()
		return nil
	}
	if n == 0 {
		return pi.dropAllChains()
	}
	if pi.IsEndlessFile() {
		// Turning endless into finite is always a cut on the trailing
		// chain, not a grow: cutFileTo already rejects an n that would
		// discard an already-packed segment.
		return pi.cutFileTo(n)
	}
	cur, _ := pi.totalContentLen()
	if n > cur {
		return pi.growFileBy(n - cur)
	}
	if n < cur {
		return pi.cutFileTo(n)
	}
	return nil
}

// finitePartOfContentLen returns the content end of the rightmost packed
// segment across all chains, used to resolve an endless file's logical
// content length while it is still being written.
func (pi *PackingInfo) finitePartOfContentLen() int64 {
	var rightmost int64
	for i, c := range pi.chains {
		if c.Kind == KindBase {
			info, _ := pi.loc.SegmentInfo(i, int(c.Base.NumOfSegs-1))
			rightmost = info.ContentOfs + info.ContentLen
			continue
		}
		max := c.MaxSegIdx()
		h, any := c.New.Unpacked.HighestPacked(max)
		if !any {
			continue
		}
		info, err := pi.loc.SegmentInfo(i, int(h))
		if err != nil {
			continue
		}
		rightmost = info.ContentOfs + info.ContentLen
	}
	return rightmost
}

func (pi *PackingInfo) dropAllChains() error {
	for _, c := range pi.chains {
		if c.Kind == KindNew && !c.New.Unpacked.IsFullyUnpacked(c.MaxSegIdx()) && !c.New.IsEndless {
			return xsperrors.New(xsperrors.SegsPacked, "packing: cannot truncate to 0, a new chain already has packed segments")
		}
	}
	pi.chains = nil
	if err := pi.addFiniteChain(0); err != nil {
		return err
	}
	// An empty file still needs at least a representable zero-length
	// geometry; leave chains empty (zero chains encodes a zero-length file).
	pi.chains = nil
	pi.rebuildLocations()
	return nil
}

func (pi *PackingInfo) turnLastChainEndless() {
	last := pi.chains[len(pi.chains)-1]
	oldMax := last.New.NumOfSegs - 1
	last.New.IsEndless = true
	last.New.Unpacked.GrowTail(oldMax, MaxSegIndex)
}

// growFileBy extends the trailing chain's content length by n bytes.
func (pi *PackingInfo) growFileBy(delta int64) error {
	if len(pi.chains) == 0 {
		if err := pi.addFiniteChain(delta); err != nil {
			return err
		}
		pi.rebuildLocations()
		return nil
	}
	last := pi.chains[len(pi.chains)-1]
	if last.IsEndless() {
		return xsperrors.New(xsperrors.ArgsOutOfBounds, "packing: cannot grow past an endless chain")
	}
	if pi.canGrowTail() {
		oldMax := last.New.NumOfSegs - 1
		oldLast := int64(last.New.LastSegSize)
		total := oldLast + delta
		addSegs := uint32((total - 1) / int64(pi.segSize))
		newLast := total - int64(addSegs)*int64(pi.segSize)
		last.New.NumOfSegs += addSegs
		last.New.LastSegSize = int(newLast)
		last.New.Unpacked.GrowTail(oldMax, last.New.NumOfSegs-1)
	} else {
		if err := pi.addFiniteChain(delta); err != nil {
			return err
		}
	}
	pi.rebuildLocations()
	return nil
}

// cutFileTo truncates the file's content to newLen bytes.
func (pi *PackingInfo) cutFileTo(newLen int64) error {
	if newLen == 0 {
		return pi.dropAllChains()
	}
	if cur, finite := pi.totalContentLen(); finite && newLen == cur {
		// Nothing to cut: LocateContentOfs treats the content end itself as
		// out of bounds, since it addresses the start of the next segment.
		return nil
	}
	pos, err := pi.loc.LocateContentOfs(newLen)
	if err != nil {
		return err
	}
	remainder, err := pi.cutChainTail(pi.chains[pos.Chain], pos)
	if err != nil {
		return err
	}
	for _, c := range pi.chains[pos.Chain+1:] {
		if c.Kind == KindNew && !c.New.IsEndless && !c.New.Unpacked.IsFullyUnpacked(c.MaxSegIdx()) {
			return xsperrors.New(xsperrors.SegsPacked, "packing: cannot drop a chain with packed segments")
		}
	}
	out := append([]*Chain{}, pi.chains[:pos.Chain]...)
	out = append(out, remainder...)
	pi.chains = out
	pi.rebuildLocations()
	return nil
}

// Splice replaces del content bytes starting at pos with ins freshly
// written bytes. The inserted plaintext itself is not consumed here; Splice only adjusts
// geometry. The caller (EncryptingByteSink) is responsible for routing the
// actual inserted plaintext to the segments this creates.
func (pi *PackingInfo) Splice(pos, del int64, ins int64) error {
	if err := pi.checkGeometryMutable(); err != nil {
		return err
	}
	if del == 0 && ins == 0 {
		return nil
	}
	total, finite := pi.totalContentLen()
	if finite && pos+del >= total {
		if err := pi.cutFileTo(pos); err != nil {
			return err
		}
		if ins > 0 {
			return pi.growFileBy(ins)
		}
		return nil
	}

	left, err := pi.loc.LocateContentOfs(pos)
	if err != nil {
		return err
	}
	right, err := pi.loc.LocateContentOfs(pos + del)
	if err != nil {
		return err
	}

	leftAtBoundary := left.Seg == 0 && left.PosInSeg == 0
	rightAtBoundary := right.Seg == 0 && right.PosInSeg == 0

	var result []*Chain
	result = append(result, pi.chains[:left.Chain]...)

	if left.Chain == right.Chain {
		c := pi.chains[left.Chain]
		if c.Kind == KindBase {
			leftRem, err := pi.cutChainTail(c, left)
			if err != nil {
				return err
			}
			rightRem, err := pi.cutChainHead(c, right)
			if err != nil {
				return err
			}
			result = append(result, leftRem...)
			result = append(result, rightRem...)
		} else {
			// New chains never carry intact bytes across a cut: since
			// nothing between pos and the chain's end was necessarily
			// packed yet, a middle cut folds into a tail cut at pos.
			leftRem, err := pi.cutChainTail(c, left)
			if err != nil {
				return err
			}
			result = append(result, leftRem...)
		}
		result = append(result, pi.chains[right.Chain+1:]...)
	} else {
		if !leftAtBoundary {
			leftRem, err := pi.cutChainTail(pi.chains[left.Chain], left)
			if err != nil {
				return err
			}
			result = append(result, leftRem...)
		} else {
			result = append(result, pi.chains[left.Chain])
			// leftAtBoundary means pos is exactly this chain's start, so
			// it belongs to the dropped region after all; undo the append.
			result = result[:len(result)-1]
		}
		dropStart := left.Chain + 1
		if leftAtBoundary {
			dropStart = left.Chain
		}
		dropEnd := right.Chain - 1
		for i := dropStart; i <= dropEnd; i++ {
			c := pi.chains[i]
			if c.Kind == KindNew && !c.New.IsEndless && !c.New.Unpacked.IsFullyUnpacked(c.MaxSegIdx()) {
				return xsperrors.New(xsperrors.SegsPacked, "packing: splice would drop a chain with packed segments")
			}
		}
		if !rightAtBoundary {
			rightRem, err := pi.cutChainHead(pi.chains[right.Chain], right)
			if err != nil {
				return err
			}
			result = append(result, rightRem...)
		} else {
			result = append(result, pi.chains[right.Chain])
			right.Chain-- // so chains[right.Chain+1:] below doesn't double-add
		}
		result = append(result, pi.chains[right.Chain+1:]...)
	}

	pi.chains = result
	pi.rebuildLocations()

	if ins > 0 {
		if err := pi.growFileBy(ins); err != nil {
			return err
		}
	}
	tlog.Debug.Printf("packing: splice(pos=%d,del=%d,ins=%d) -> %d chains", pos, del, ins, len(pi.chains))
	return nil
}

// cutChainTail returns the chains that replace c when everything from
// content position `at` to c's end is removed (i.e. c is kept only up to
// `at`). It may return zero, one, or two chains: an aligned cut yields one
// shortened chain (or zero if at is the chain's very start); a mid-segment
// cut of a base chain yields the shortened base chain plus a one-segment
// headBytes edge chain.
func (pi *PackingInfo) cutChainTail(c *Chain, at locations.Pos) ([]*Chain, error) {
	if at.Seg == 0 && at.PosInSeg == 0 {
		if c.Kind == KindNew {
			if _, any := c.New.Unpacked.HighestPacked(c.MaxSegIdx()); any {
				return nil, xsperrors.New(xsperrors.SegsPacked, "packing: cut would discard an already-packed segment")
			}
		}
		return nil, nil
	}
	if at.PosInSeg == 0 {
		return pi.cutChainTailAligned(c, at.Seg)
	}
	return pi.cutChainTailMidSegment(c, at.Seg, at.PosInSeg)
}

func (pi *PackingInfo) cutChainTailAligned(c *Chain, newNumSegs int) ([]*Chain, error) {
	if c.Kind == KindBase {
		nb := *c.Base
		nb.NumOfSegs = uint32(newNumSegs)
		nb.LastSegSize = pi.segSize
		return []*Chain{{Kind: KindBase, Base: &nb}}, nil
	}
	newMax := uint32(newNumSegs - 1)
	oldMax := c.MaxSegIdx()
	if !c.New.Unpacked.CanCutTailAt(newMax, oldMax) {
		return nil, xsperrors.New(xsperrors.SegsPacked, "packing: cut would discard an already-packed segment")
	}
	nn := *c.New
	nn.IsEndless = false
	nn.NumOfSegs = uint32(newNumSegs)
	nn.LastSegSize = pi.segSize
	nn.Unpacked = c.New.Unpacked.Clone()
	nn.Unpacked.CutTailAt(newMax)
	return []*Chain{{Kind: KindNew, New: &nn}}, nil
}

func (pi *PackingInfo) cutChainTailMidSegment(c *Chain, seg int, posInSeg int64) ([]*Chain, error) {
	if c.Kind == KindBase {
		var out []*Chain
		if seg > 0 {
			nb := *c.Base
			nb.NumOfSegs = uint32(seg)
			nb.LastSegSize = pi.segSize
			out = append(out, &Chain{Kind: KindBase, Base: &nb})
		}
		edge, err := pi.makeHeadBytesChain(c, seg, int(posInSeg))
		if err != nil {
			return nil, err
		}
		out = append(out, edge)
		return out, nil
	}
	// New chain: segment `seg` is the partial tail edge. It can only be
	// shrunk if it hasn't been packed yet.
	if c.New.Unpacked.IsPacked(uint32(seg)) || !c.New.Unpacked.CanCutTailAt(uint32(seg), c.MaxSegIdx()) {
		return nil, xsperrors.New(xsperrors.SegsPacked, "packing: cannot shrink an already-packed segment")
	}
	nn := *c.New
	nn.IsEndless = false
	nn.NumOfSegs = uint32(seg + 1)
	nn.LastSegSize = int(posInSeg)
	nn.Unpacked = c.New.Unpacked.Clone()
	nn.Unpacked.CutTailAt(uint32(seg))
	if nn.HeadBytes != nil && seg == 0 && int64(nn.HeadBytes.Len) > posInSeg {
		hb := *nn.HeadBytes
		hb.Len = int(posInSeg)
		nn.HeadBytes = &hb
	}
	return []*Chain{{Kind: KindNew, New: &nn}}, nil
}

// cutChainHead returns the chains that replace c when everything from c's
// start up to content position `at` is removed (c is kept only from `at`
// onward).
func (pi *PackingInfo) cutChainHead(c *Chain, at locations.Pos) ([]*Chain, error) {
	if at.Seg == 0 && at.PosInSeg == 0 {
		return []*Chain{c}, nil
	}
	if c.Kind == KindBase {
		return pi.cutBaseChainHead(c, at.Seg, at.PosInSeg)
	}
	return pi.cutNewChainHead(c, at.Seg, at.PosInSeg)
}

func (pi *PackingInfo) cutBaseChainHead(c *Chain, seg int, posInSeg int64) ([]*Chain, error) {
	var out []*Chain
	if posInSeg > 0 {
		edge, err := pi.makeHeadBytesChainFromOffset(c, seg, int(posInSeg))
		if err != nil {
			return nil, err
		}
		out = append(out, edge)
		seg++ // the edge segment itself is consumed into the new chain
	}
	remaining := c.Base.NumOfSegs - uint32(seg)
	if remaining > 0 {
		nb := *c.Base
		nb.NumOfSegs = remaining
		nb.FirstNonce = nonce.Calculate(c.Base.FirstNonce, uint64(seg))
		nb.BaseOfs = c.Base.BaseOfs + int64(seg)*int64(pi.segSize+pi.poly)
		nb.BaseContentOfs = c.Base.BaseContentOfs + int64(seg)*int64(pi.segSize)
		out = append(out, &Chain{Kind: KindBase, Base: &nb})
	}
	return out, nil
}

// cutNewChainHead rotates a head cut of an unpacked new chain into an
// equivalent tail-cut-from-zero: nothing was written yet, so head and tail
// are indistinguishable and the chain is simply renumbered from zero.
func (pi *PackingInfo) cutNewChainHead(c *Chain, seg int, posInSeg int64) ([]*Chain, error) {
	if _, any := c.New.Unpacked.HighestPacked(c.MaxSegIdx()); any {
		return nil, xsperrors.New(xsperrors.SegsPacked, "packing: cannot cut the head of a new chain that has packed segments")
	}
	if posInSeg > 0 {
		return nil, xsperrors.New(xsperrors.SegsPacked, "packing: cannot cut a new chain's head mid-segment, nothing to re-encrypt from")
	}
	fn, err := newRNGNonce(pi.rng)
	if err != nil {
		return nil, err
	}
	nn := *c.New
	nn.FirstNonce = fn
	nn.HeadBytes = nil
	if !c.New.IsEndless {
		nn.NumOfSegs = c.New.NumOfSegs - uint32(seg)
	}
	nn.Unpacked = NewFull(nn.MaxIdxFor(c))
	return []*Chain{{Kind: KindNew, New: &nn}}, nil
}

// MaxIdxFor recomputes the max segment index for nn as it would be if it
// replaced original chain c (needed because nn isn't attached to a *Chain
// wrapper yet when this is called).
func (nn *NewChain) MaxIdxFor(c *Chain) uint32 {
	if nn.IsEndless {
		return MaxSegIndex
	}
	return nn.NumOfSegs - 1
}

// makeHeadBytesChain builds a single-segment new chain borrowing the
// leading lenBytes plaintext bytes of base segment `seg` of c — the tail
// cut case, where a splice's left edge falls mid-segment and the segment's
// own leading run survives unchanged.
func (pi *PackingInfo) makeHeadBytesChain(c *Chain, seg int, lenBytes int) (*Chain, error) {
	return pi.makeHeadBytesChainRange(c, seg, 0, lenBytes)
}

// makeHeadBytesChainFromOffset builds a single-segment new chain borrowing
// the trailing plaintext bytes of base segment `seg` of c, starting at
// offset fromOffset — the head cut case, where a splice's right edge falls
// mid-segment and the segment's leading fromOffset bytes are discarded
// while the rest survives unchanged.
func (pi *PackingInfo) makeHeadBytesChainFromOffset(c *Chain, seg int, fromOffset int) (*Chain, error) {
	segContentLen := pi.segSize
	if seg == int(c.Base.NumOfSegs)-1 {
		segContentLen = c.Base.LastSegSize
	}
	return pi.makeHeadBytesChainRange(c, seg, fromOffset, segContentLen-fromOffset)
}

// makeHeadBytesChainRange builds a single-segment new chain borrowing
// lenBytes plaintext bytes of base segment `seg` of c (c must be a base
// chain), starting at offset bytes into that segment's own decrypted
// plaintext.
func (pi *PackingInfo) makeHeadBytesChainRange(c *Chain, seg int, offset, lenBytes int) (*Chain, error) {
	if c.Kind != KindBase {
		return nil, xsperrors.New(xsperrors.ArgsOutOfBounds, "packing: headBytes edge must come from a base chain")
	}
	segPackedLen := pi.segSize + pi.poly
	if seg == int(c.Base.NumOfSegs)-1 {
		segPackedLen = c.Base.LastSegSize + pi.poly
	}
	fn, err := newRNGNonce(pi.rng)
	if err != nil {
		return nil, err
	}
	return &Chain{
		Kind: KindNew,
		New: &NewChain{
			FirstNonce:  fn,
			NumOfSegs:   1,
			LastSegSize: lenBytes,
			Unpacked:    NewFull(0),
			HeadBytes: &HeadBytes{
				BaseSegPackedOfs: c.Base.BaseOfs + int64(seg)*int64(pi.segSize+pi.poly),
				BaseSegPackedLen: int64(segPackedLen),
				BaseSegNonce:     nonce.Calculate(c.Base.FirstNonce, uint64(seg)),
				Offset:           offset,
				Len:              lenBytes,
			},
		},
	}, nil
}
