// Package header implements the format-v1/v2 encoding of SegsInfo into the
// plaintext bytes that get sealed as an XSP header. The table it encodes
// is fixed-width per chain, the way gocryptfs's own on-disk config file is
// a fixed table of KDF parameters plus a variable tail — here the tail is
// one 31-byte record per segment chain.
package header

import (
	"encoding/binary"

	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// MaxSegIndex is the sentinel numOfSegs value (and the maximum legal
// segment index) marking a chain as endless.
const MaxSegIndex = 0xFFFFFFFF

// chainRecordLen is the on-wire size of one chain record: numOfSegs(4) +
// lastSegSize(3) + firstNonce(24).
const chainRecordLen = 4 + 3 + nonce.Len

// preambleLen is formatVersion(1) + segSize/256(2).
const preambleLen = 3

// FormatVersion1 and FormatVersion2 are the two header formats this codec
// accepts; v2 differs only in how the PayloadFormatVersion is threaded by
// the caller, not in wire shape.
const (
	FormatVersion1 = 1
	FormatVersion2 = 2
)

// ChainInfo is one entry of SegsInfo.SegChains.
type ChainInfo struct {
	FirstNonce nonce.Nonce
	// NumOfSegs is the chain's segment count for a finite chain. Ignored
	// (and must be treated as unknown) when IsEndless is true.
	NumOfSegs uint32
	// LastSegSize is the plaintext size of the chain's last segment, in
	// 1..segSize, for a finite chain. Ignored for an endless chain: Decode
	// leaves it 0 and Encode writes segSize in its place.
	LastSegSize int
	IsEndless   bool
}

// SegsInfo is the in-memory decoded form of an XSP header.
type SegsInfo struct {
	SegSize              int
	FormatVersion        int
	PayloadFormatVersion int
	SegChains            []ChainInfo
}

// Encode emits the header plaintext table. Chains with zero
// segments must not appear in si.SegChains (the caller is expected to have
// dropped them already); Encode panics if one slips through, since that
// would indicate a PackingInfo invariant violation, not a caller input
// error.
func Encode(si SegsInfo) []byte {
	out := make([]byte, preambleLen, preambleLen+chainRecordLen*len(si.SegChains))
	out[0] = byte(si.FormatVersion)
	binary.BigEndian.PutUint16(out[1:3], uint16(si.SegSize>>8))

	for i, c := range si.SegChains {
		if !c.IsEndless && c.NumOfSegs == 0 {
			panic("header: Encode given a zero-segment chain")
		}
		if c.IsEndless && i != len(si.SegChains)-1 {
			panic("header: Encode given an endless chain that isn't last")
		}
		var rec [chainRecordLen]byte
		if c.IsEndless {
			binary.BigEndian.PutUint32(rec[0:4], MaxSegIndex)
			put24(rec[4:7], si.SegSize)
		} else {
			binary.BigEndian.PutUint32(rec[0:4], c.NumOfSegs)
			put24(rec[4:7], c.LastSegSize)
		}
		copy(rec[7:7+nonce.Len], c.FirstNonce[:])
		out = append(out, rec[:]...)
	}
	return out
}

// Decode parses a header plaintext produced by Encode (or an equivalent
// encoder). payloadFormatVersion is threaded through from the caller (this
// codec never puts it on the wire; it travels alongside the sealed header
// via whatever out-of-band channel the caller's object format uses), and
// is just copied onto the returned SegsInfo.
func Decode(buf []byte, payloadFormatVersion int) (SegsInfo, error) {
	if len(buf) < preambleLen || (len(buf)-preambleLen)%chainRecordLen != 0 {
		return SegsInfo{}, xsperrors.Newf(xsperrors.InputParsing,
			"header: bad length %d", len(buf))
	}
	fv := int(buf[0])
	if fv != FormatVersion1 && fv != FormatVersion2 {
		return SegsInfo{}, xsperrors.Newf(xsperrors.InputParsing,
			"header: unknown formatVersion %d", fv)
	}
	segSize := int(binary.BigEndian.Uint16(buf[1:3])) << 8
	if segSize == 0 {
		return SegsInfo{}, xsperrors.New(xsperrors.InputParsing, "header: segSize is zero")
	}

	si := SegsInfo{
		SegSize:              segSize,
		FormatVersion:        fv,
		PayloadFormatVersion: payloadFormatVersion,
	}

	nChains := (len(buf) - preambleLen) / chainRecordLen
	for i := 0; i < nChains; i++ {
		off := preambleLen + i*chainRecordLen
		rec := buf[off : off+chainRecordLen]
		numOfSegs := binary.BigEndian.Uint32(rec[0:4])
		lastSegSize := get24(rec[4:7])
		var fn nonce.Nonce
		copy(fn[:], rec[7:7+nonce.Len])

		if numOfSegs == 0 {
			// Zero-segment chains are rejected during assembly but
			// tolerated (skipped) here for a lenient, forward-compatible
			// reader.
			continue
		}
		if numOfSegs == MaxSegIndex && lastSegSize == segSize {
			if i != nChains-1 {
				return SegsInfo{}, xsperrors.New(xsperrors.InputParsing,
					"header: endless chain must be last")
			}
			si.SegChains = append(si.SegChains, ChainInfo{
				FirstNonce: fn,
				IsEndless:  true,
			})
			continue
		}
		if lastSegSize < 1 || lastSegSize > segSize {
			return SegsInfo{}, xsperrors.Newf(xsperrors.InputParsing,
				"header: chain %d lastSegSize %d out of range", i, lastSegSize)
		}
		si.SegChains = append(si.SegChains, ChainInfo{
			FirstNonce:  fn,
			NumOfSegs:   numOfSegs,
			LastSegSize: lastSegSize,
		})
	}
	return si, nil
}

func put24(dst []byte, v int) {
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}

func get24(src []byte) int {
	return int(src[0])<<16 | int(src[1])<<8 | int(src[2])
}
