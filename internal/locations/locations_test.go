package locations

import (
	"testing"

	"github.com/3nsoft/xsp-files-sub000/internal/header"
)

func mkChain(numSegs uint32, lastSegSize int, endless bool) header.ChainInfo {
	var fn [24]byte
	return header.ChainInfo{FirstNonce: fn, NumOfSegs: numSegs, LastSegSize: lastSegSize, IsEndless: endless}
}

func TestContentAndSegmentsLengthFinite(t *testing.T) {
	chains := []header.ChainInfo{mkChain(3, 100, false)}
	l := New(256, 16, chains)

	n, finite := l.ContentLength()
	if !finite || n != 2*256+100 {
		t.Fatalf("ContentLength = %d,%v want %d,true", n, finite, 2*256+100)
	}
	packed, finite := l.SegmentsLength()
	if !finite || packed != n+3*16 {
		t.Fatalf("SegmentsLength = %d,%v want %d,true", packed, finite, n+3*16)
	}
}

func TestContentLengthEndless(t *testing.T) {
	chains := []header.ChainInfo{mkChain(2, 256, false), mkChain(0, 0, true)}
	l := New(256, 16, chains)
	if _, finite := l.ContentLength(); finite {
		t.Fatal("expected an endless trailing chain to make ContentLength unbounded")
	}
	if _, finite := l.SegmentsLength(); finite {
		t.Fatal("expected an endless trailing chain to make SegmentsLength unbounded")
	}
}

func TestLocateContentOfsAcrossChains(t *testing.T) {
	chains := []header.ChainInfo{mkChain(2, 256, false), mkChain(2, 256, false)}
	l := New(256, 16, chains)

	pos, err := l.LocateContentOfs(256 + 10)
	if err != nil {
		t.Fatalf("LocateContentOfs: %v", err)
	}
	if pos.Chain != 0 || pos.Seg != 1 || pos.PosInSeg != 10 {
		t.Fatalf("got %+v, want chain=0 seg=1 posInSeg=10", pos)
	}

	pos, err = l.LocateContentOfs(512 + 5)
	if err != nil {
		t.Fatalf("LocateContentOfs: %v", err)
	}
	if pos.Chain != 1 || pos.Seg != 0 || pos.PosInSeg != 5 {
		t.Fatalf("got %+v, want chain=1 seg=0 posInSeg=5", pos)
	}
}

func TestLocateContentOfsOutOfBounds(t *testing.T) {
	chains := []header.ChainInfo{mkChain(1, 100, false)}
	l := New(256, 16, chains)

	if _, err := l.LocateContentOfs(-1); err == nil {
		t.Fatal("expected a negative offset to fail")
	}
	// The content end is the start of the (nonexistent) next segment, not a
	// valid position to locate within a finite file.
	if _, err := l.LocateContentOfs(100); err == nil {
		t.Fatal("expected the exact content end to be out of bounds")
	}
}

func TestLocateSegsOfsStride(t *testing.T) {
	chains := []header.ChainInfo{mkChain(2, 256, false)}
	l := New(256, 16, chains)
	pos, err := l.LocateSegsOfs(256 + 16 + 3)
	if err != nil {
		t.Fatalf("LocateSegsOfs: %v", err)
	}
	if pos.Chain != 0 || pos.Seg != 1 || pos.PosInSeg != 3 {
		t.Fatalf("got %+v, want chain=0 seg=1 posInSeg=3", pos)
	}
}

func TestSegmentInfoLastSegmentShortLen(t *testing.T) {
	chains := []header.ChainInfo{mkChain(3, 100, false)}
	l := New(256, 16, chains)

	info, err := l.SegmentInfo(0, 2)
	if err != nil {
		t.Fatalf("SegmentInfo: %v", err)
	}
	if info.ContentLen != 100 || info.PackedLen != 116 {
		t.Fatalf("last segment info = %+v, want ContentLen=100 PackedLen=116", info)
	}
	if info.ContentOfs != 2*256 || info.PackedOfs != 2*(256+16) {
		t.Fatalf("unexpected offsets: %+v", info)
	}
}

func TestSegmentInfoRejectsUnknownSeg(t *testing.T) {
	chains := []header.ChainInfo{mkChain(2, 256, false)}
	l := New(256, 16, chains)
	if _, err := l.SegmentInfo(0, 2); err == nil {
		t.Fatal("expected SegmentInfo to reject a seg past the chain's segment count")
	}
	if _, err := l.SegmentInfo(1, 0); err == nil {
		t.Fatal("expected SegmentInfo to reject an unknown chain")
	}
}

func TestSegmentNonceAdvancesPerSegment(t *testing.T) {
	chains := []header.ChainInfo{mkChain(3, 256, false)}
	l := New(256, 16, chains)
	n0, err := l.SegmentNonce(0, 0)
	if err != nil {
		t.Fatalf("SegmentNonce: %v", err)
	}
	n1, err := l.SegmentNonce(0, 1)
	if err != nil {
		t.Fatalf("SegmentNonce: %v", err)
	}
	if n0 == n1 {
		t.Fatal("expected distinct segments to derive distinct nonces")
	}
}

func TestIteratorYieldsAllSegmentsInOrder(t *testing.T) {
	chains := []header.ChainInfo{mkChain(2, 256, false), mkChain(1, 100, false)}
	l := New(256, 16, chains)

	it := l.SegmentInfos(nil)
	var got []Pos
	for {
		info, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, Pos{Chain: info.Chain, Seg: info.Seg})
	}
	want := []Pos{{0, 0, 0}, {0, 1, 0}, {1, 0, 0}}
	if len(got) != len(want) {
		t.Fatalf("got %d segments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Chain != want[i].Chain || got[i].Seg != want[i].Seg {
			t.Fatalf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestIteratorFailsFastOnRebuild(t *testing.T) {
	chains := []header.ChainInfo{mkChain(2, 256, false)}
	l := New(256, 16, chains)
	it := l.SegmentInfos(nil)
	l.Rebuild(chains)
	if _, _, err := it.Next(); err == nil {
		t.Fatal("expected Next to fail after a concurrent Rebuild")
	}
}

func TestIteratorFromMidpoint(t *testing.T) {
	chains := []header.ChainInfo{mkChain(3, 256, false)}
	l := New(256, 16, chains)
	it := l.SegmentInfos(&Pos{Chain: 0, Seg: 1})
	info, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if info.Seg != 1 {
		t.Fatalf("expected iteration to resume at seg 1, got %d", info.Seg)
	}
}
