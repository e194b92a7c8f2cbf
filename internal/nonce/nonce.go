// Package nonce implements the 24-byte three-lane nonce arithmetic that
// derives every segment's nonce from its chain's first nonce, the way
// contentenc derives a per-block nonce from a file ID and block number —
// except here the derivation is pure addition, so a single chain-first-nonce
// seeds 2^64 per-segment nonces with O(1) derivation and no state.
package nonce

import "encoding/binary"

// Len is the byte length of an XSP nonce (matches secretbox's NonceSize).
const Len = 24

const laneLen = 8
const numLanes = Len / laneLen

// Nonce is a 24-byte nonce split into three little-endian uint64 lanes.
type Nonce [Len]byte

// Calculate returns a new nonce whose three lanes each equal the
// corresponding lane of n plus delta (mod 2^64).
func Calculate(n Nonce, delta uint64) Nonce {
	var out Nonce
	for lane := 0; lane < numLanes; lane++ {
		off := lane * laneLen
		v := binary.LittleEndian.Uint64(n[off:]) + delta
		binary.LittleEndian.PutUint64(out[off:], v)
	}
	return out
}

// FindDelta returns the delta such that Calculate(n1, delta) == n2, and
// true, if all three lanes of n2-n1 agree; otherwise it returns 0, false.
func FindDelta(n1, n2 Nonce) (uint64, bool) {
	var delta uint64
	for lane := 0; lane < numLanes; lane++ {
		off := lane * laneLen
		d := binary.LittleEndian.Uint64(n2[off:]) - binary.LittleEndian.Uint64(n1[off:])
		if lane == 0 {
			delta = d
		} else if d != delta {
			return 0, false
		}
	}
	return delta, true
}

// Advance mutates n in place, advancing it by delta (1..255 by convention,
// though any uint8 is accepted).
func Advance(n *Nonce, delta uint8) {
	*n = Calculate(*n, uint64(delta))
}

// Zero reports whether n is the all-zero nonce.
func (n Nonce) Zero() bool {
	for _, b := range n {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns n as a plain byte slice, e.g. for passing to a Cryptor.
func (n Nonce) Bytes() []byte {
	out := make([]byte, Len)
	copy(out, n[:])
	return out
}

// FromBytes copies b (which must be Len bytes long) into a Nonce.
func FromBytes(b []byte) Nonce {
	var n Nonce
	copy(n[:], b)
	return n
}
