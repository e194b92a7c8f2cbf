package header

import (
	"testing"

	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
)

func mkNonce(b byte) nonce.Nonce {
	var n nonce.Nonce
	for i := range n {
		n[i] = b
	}
	return n
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	si := SegsInfo{
		SegSize:              4096,
		FormatVersion:        FormatVersion2,
		PayloadFormatVersion: 7,
		SegChains: []ChainInfo{
			{FirstNonce: mkNonce(1), NumOfSegs: 3, LastSegSize: 100},
			{FirstNonce: mkNonce(2), IsEndless: true},
		},
	}
	buf := Encode(si)
	got, err := Decode(buf, 7)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SegSize != si.SegSize || got.FormatVersion != si.FormatVersion {
		t.Fatalf("preamble mismatch: %+v", got)
	}
	if len(got.SegChains) != 2 {
		t.Fatalf("got %d chains, want 2", len(got.SegChains))
	}
	if got.SegChains[0].NumOfSegs != 3 || got.SegChains[0].LastSegSize != 100 {
		t.Fatalf("chain 0 mismatch: %+v", got.SegChains[0])
	}
	if !got.SegChains[1].IsEndless {
		t.Fatal("chain 1 should decode as endless")
	}
}

func TestEncodePanicsOnZeroSegmentChain(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Encode to panic on a zero-segment chain")
		}
	}()
	Encode(SegsInfo{SegSize: 4096, FormatVersion: FormatVersion1, SegChains: []ChainInfo{{FirstNonce: mkNonce(1), NumOfSegs: 0}}})
}

func TestEncodePanicsOnMisplacedEndlessChain(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Encode to panic on a non-trailing endless chain")
		}
	}()
	Encode(SegsInfo{
		SegSize:       4096,
		FormatVersion: FormatVersion1,
		SegChains: []ChainInfo{
			{FirstNonce: mkNonce(1), IsEndless: true},
			{FirstNonce: mkNonce(2), NumOfSegs: 1, LastSegSize: 10},
		},
	})
}

func TestDecodeRejectsBadLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2}, 0); err == nil {
		t.Fatal("expected an error for a too-short buffer")
	}
}

func TestDecodeRejectsUnknownFormatVersion(t *testing.T) {
	si := SegsInfo{SegSize: 4096, FormatVersion: FormatVersion1, SegChains: []ChainInfo{{FirstNonce: mkNonce(1), NumOfSegs: 1, LastSegSize: 10}}}
	buf := Encode(si)
	buf[0] = 99
	if _, err := Decode(buf, 0); err == nil {
		t.Fatal("expected an error for an unknown format version")
	}
}

func TestDecodeRejectsEndlessNotLast(t *testing.T) {
	var buf []byte
	buf = append(buf, byte(FormatVersion1))
	buf = append(buf, 0, 16) // segSize/256 = 16 -> segSize 4096
	var endlessRec [chainRecordLen]byte
	put24(endlessRec[4:7], 4096)
	endlessRec[0], endlessRec[1], endlessRec[2], endlessRec[3] = 0xFF, 0xFF, 0xFF, 0xFF
	buf = append(buf, endlessRec[:]...)
	var finiteRec [chainRecordLen]byte
	put24(finiteRec[4:7], 10)
	finiteRec[3] = 1
	buf = append(buf, finiteRec[:]...)

	if _, err := Decode(buf, 0); err == nil {
		t.Fatal("expected an error when an endless chain isn't last")
	}
}

func TestDecodeSkipsZeroSegmentChains(t *testing.T) {
	si := SegsInfo{SegSize: 4096, FormatVersion: FormatVersion1, SegChains: []ChainInfo{{FirstNonce: mkNonce(1), NumOfSegs: 2, LastSegSize: 50}}}
	buf := Encode(si)
	var zeroRec [chainRecordLen]byte // numOfSegs = 0
	buf = append(buf, zeroRec[:]...)

	got, err := Decode(buf, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.SegChains) != 1 {
		t.Fatalf("expected the zero-segment chain to be skipped, got %d chains", len(got.SegChains))
	}
}
