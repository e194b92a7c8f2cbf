// Package packing implements PackingInfo, the splice/cut/grow state machine
// that tracks how a new XSP version is assembled on top of an optional base
// version. It is the hardest component of the engine: it
// must keep base segments byte-identical to the prior version, must never
// let a new segment be packed twice under the same nonce, and must leave a
// Layout manifest a consumer can replay without re-deriving any of this
// bookkeeping.
//
// To avoid cyclic or shared references, chains are
// owned value-ish structs held in a single slice and are never aliased by
// pointer identity across a splice: every mutation that would "modify" a
// chain in place instead builds the replacement chains and swaps the whole
// slice, the way locations.Locations rebuilds its whole index rather than
// patching entries.
package packing

import (
	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
)

// Kind tags a chain as a reference into prior-version ciphertext (Base) or
// as ciphertext that will be produced this version (New). Modeled as a
// tagged variant with two payload shapes instead of an interface, since the
// two shapes share no behavior worth dispatching on.
type Kind int

const (
	KindBase Kind = iota
	KindNew
)

// MaxSegIndex is the largest legal segment index, also used as the sentinel
// "last segment" index of an endless chain.
const MaxSegIndex = header.MaxSegIndex

// HeadBytes describes plaintext bytes borrowed from one prior-version
// ciphertext segment and re-encrypted as the prefix of a single-segment new
// chain at a splice edge (the glossary's "HeadBytes").
type HeadBytes struct {
	// BaseSegPackedOfs is the packed-byte offset of the borrowed-from
	// ciphertext segment in the base version.
	BaseSegPackedOfs int64
	// BaseSegPackedLen is that segment's ciphertext length.
	BaseSegPackedLen int64
	// BaseSegNonce is the nonce the base segment was (and still is) sealed
	// under.
	BaseSegNonce nonce.Nonce
	// Offset is where, within the base segment's own decrypted plaintext,
	// the borrowed run starts. A tail cut (left edge of a splice) keeps a
	// segment's leading bytes and leaves this 0; a head cut (right edge)
	// discards a leading run and keeps the rest, so this is >0.
	Offset int
	// Len is how many plaintext bytes starting at Offset are borrowed; they
	// always sit at the very front of the new chain's single segment.
	Len int
}

// BaseChain references a contiguous run of ciphertext segments in the
// base version; its bytes are copied unchanged into the new packed layout.
// Always finite.
type BaseChain struct {
	FirstNonce  nonce.Nonce
	NumOfSegs   uint32
	LastSegSize int
	// BaseOfs is the packed-byte offset of this chain's first segment in
	// the base version.
	BaseOfs int64
	// BaseContentOfs is the plaintext-byte offset of this chain's first
	// segment in the base version.
	BaseContentOfs int64
}

// NewChain's segments are (or will be) encrypted this version.
type NewChain struct {
	FirstNonce nonce.Nonce
	// NumOfSegs is meaningless (and must not be read) when IsEndless.
	NumOfSegs   uint32
	LastSegSize int
	IsEndless   bool
	// Unpacked tracks which of this chain's segments still need packing.
	Unpacked *NewSegments
	// HeadBytes, if present, borrows plaintext from one base segment as
	// this chain's leading bytes (always on segment 0).
	HeadBytes *HeadBytes
}

// Chain is one entry of a PackingInfo's chain list.
type Chain struct {
	// ID is a monotonically increasing, never-reused identifier, used
	// instead of pointer/slice-index identity when code needs to refer to
	// "the same chain" across a rebuild that duplicates or replaces slice
	// entries.
	ID   int
	Kind Kind
	Base *BaseChain
	New  *NewChain
}

// MaxSegIdx returns the chain's highest legal segment index.
func (c *Chain) MaxSegIdx() uint32 {
	if c.Kind == KindBase {
		return c.Base.NumOfSegs - 1
	}
	if c.New.IsEndless {
		return MaxSegIndex
	}
	return c.New.NumOfSegs - 1
}

// IsEndless reports whether this chain is the (necessarily last,
// necessarily new) endless trailing chain.
func (c *Chain) IsEndless() bool {
	return c.Kind == KindNew && c.New.IsEndless
}

// NumOfSegs returns the chain's segment count and true, or (0, false) if
// the chain is endless.
func (c *Chain) NumOfSegs() (uint32, bool) {
	if c.Kind == KindBase {
		return c.Base.NumOfSegs, true
	}
	if c.New.IsEndless {
		return 0, false
	}
	return c.New.NumOfSegs, true
}

// LastSegSize returns the chain's last segment's plaintext size (equal to
// segSize for an endless chain, where it is a header-encoding artifact
// only).
func (c *Chain) LastSegSize(segSize int) int {
	if c.Kind == KindBase {
		return c.Base.LastSegSize
	}
	if c.New.IsEndless {
		return segSize
	}
	return c.New.LastSegSize
}

// FirstNonce returns the chain's first-segment nonce.
func (c *Chain) FirstNonce() nonce.Nonce {
	if c.Kind == KindBase {
		return c.Base.FirstNonce
	}
	return c.New.FirstNonce
}

// ContentLen returns the chain's total plaintext length and true, or
// (0, false) if the chain is endless.
func (c *Chain) ContentLen(segSize int) (int64, bool) {
	n, ok := c.NumOfSegs()
	if !ok {
		return 0, false
	}
	return int64(n-1)*int64(segSize) + int64(c.LastSegSize(segSize)), true
}

// toHeaderChainInfo converts c to the wire-level header.ChainInfo used by
// the header codec and the Locations index.
func (c *Chain) toHeaderChainInfo() header.ChainInfo {
	if c.Kind == KindBase {
		return header.ChainInfo{
			FirstNonce:  c.Base.FirstNonce,
			NumOfSegs:   c.Base.NumOfSegs,
			LastSegSize: c.Base.LastSegSize,
		}
	}
	if c.New.IsEndless {
		return header.ChainInfo{FirstNonce: c.New.FirstNonce, IsEndless: true}
	}
	return header.ChainInfo{
		FirstNonce:  c.New.FirstNonce,
		NumOfSegs:   c.New.NumOfSegs,
		LastSegSize: c.New.LastSegSize,
	}
}

// newRNGNonce draws a fresh 24-byte nonce for a new chain.
func newRNGNonce(rng cryptocore.RNG) (nonce.Nonce, error) {
	b, err := rng(nonce.Len)
	if err != nil {
		return nonce.Nonce{}, err
	}
	return nonce.FromBytes(b), nil
}
