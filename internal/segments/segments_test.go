package segments

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/header"
)

func fillDeterministic(buf []byte, seed byte) {
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}

func TestWriterReaderRoundtrip(t *testing.T) {
	key := make([]byte, cryptocore.KeyLen)
	rand.Read(key)
	cryptor := cryptocore.New()

	w, err := NewWriter(1, 2, 0, key, cryptor, cryptocore.DefaultRNG) // segSize = 256
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	const contentLen = 600
	if err := w.SetContentLength(contentLen, false); err != nil {
		t.Fatalf("SetContentLength: %v", err)
	}

	packedLen, finite := w.Locations().SegmentsLength()
	if !finite {
		t.Fatal("expected a finite packed length")
	}
	packed := make([]byte, packedLen)
	wantPlain := make([]byte, contentLen)

	it := w.SegmentInfos(nil)
	for {
		info, ok, err := it.Next()
		if err != nil {
			t.Fatalf("SegmentInfos.Next: %v", err)
		}
		if !ok {
			break
		}
		pt := make([]byte, info.ContentLen)
		fillDeterministic(pt, byte(info.Seg+1))
		copy(wantPlain[info.ContentOfs:info.ContentOfs+info.ContentLen], pt)

		ct, err := w.PackSeg(info.Chain, info.Seg, pt)
		if err != nil {
			t.Fatalf("PackSeg(%d,%d): %v", info.Chain, info.Seg, err)
		}
		copy(packed[info.PackedOfs:info.PackedOfs+info.PackedLen], ct)
	}

	var zerothHeaderNonce [24]byte
	rand.Read(zerothHeaderNonce[:])
	headerCt := w.PackHeader(zerothHeaderNonce, 0)
	if !w.IsHeaderPacked() {
		t.Fatal("PackHeader should freeze the header as packed")
	}

	headerPlain, err := cryptor.Open(headerCt, zerothHeaderNonce[:], key)
	if err != nil {
		t.Fatalf("opening the header: %v", err)
	}
	si, err := header.Decode(headerPlain, 0)
	if err != nil {
		t.Fatalf("header.Decode: %v", err)
	}

	r := NewReader(si, key, cryptor, bytes.NewReader(packed))
	n, finite := r.ContentLength()
	if !finite || n != contentLen {
		t.Fatalf("reader ContentLength = %d,%v want %d,true", n, finite, contentLen)
	}

	got := make([]byte, contentLen)
	read, err := r.ReadAt(context.Background(), got, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if read != contentLen {
		t.Fatalf("ReadAt returned %d bytes, want %d", read, contentLen)
	}
	if !bytes.Equal(got, wantPlain) {
		t.Fatal("round-tripped plaintext does not match what was written")
	}
}

func TestReadAtPartialRange(t *testing.T) {
	key := make([]byte, cryptocore.KeyLen)
	rand.Read(key)
	cryptor := cryptocore.New()

	w, err := NewWriter(1, 2, 0, key, cryptor, cryptocore.DefaultRNG) // segSize = 256
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	const contentLen = 600
	if err := w.SetContentLength(contentLen, false); err != nil {
		t.Fatalf("SetContentLength: %v", err)
	}
	packedLen, _ := w.Locations().SegmentsLength()
	packed := make([]byte, packedLen)
	wantPlain := make([]byte, contentLen)

	it := w.SegmentInfos(nil)
	for {
		info, ok, err := it.Next()
		if err != nil {
			t.Fatalf("SegmentInfos.Next: %v", err)
		}
		if !ok {
			break
		}
		pt := make([]byte, info.ContentLen)
		fillDeterministic(pt, byte(info.Seg+7))
		copy(wantPlain[info.ContentOfs:info.ContentOfs+info.ContentLen], pt)
		ct, err := w.PackSeg(info.Chain, info.Seg, pt)
		if err != nil {
			t.Fatalf("PackSeg: %v", err)
		}
		copy(packed[info.PackedOfs:info.PackedOfs+info.PackedLen], ct)
	}

	var zerothHeaderNonce [24]byte
	rand.Read(zerothHeaderNonce[:])
	headerCt := w.PackHeader(zerothHeaderNonce, 0)
	headerPlain, err := cryptor.Open(headerCt, zerothHeaderNonce[:], key)
	if err != nil {
		t.Fatalf("opening the header: %v", err)
	}
	si, err := header.Decode(headerPlain, 0)
	if err != nil {
		t.Fatalf("header.Decode: %v", err)
	}
	r := NewReader(si, key, cryptor, bytes.NewReader(packed))

	// A range straddling two segments (segSize=256): bytes [200, 350).
	got := make([]byte, 150)
	n, err := r.ReadAt(context.Background(), got, 200)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 150 {
		t.Fatalf("ReadAt returned %d bytes, want 150", n)
	}
	if !bytes.Equal(got, wantPlain[200:350]) {
		t.Fatal("partial cross-segment read does not match expected plaintext")
	}
}
