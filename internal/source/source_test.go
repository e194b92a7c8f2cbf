package source

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/segments"
)

func newTestReader(t *testing.T, contentLen int64) (*segments.SegmentsReader, []byte) {
	t.Helper()
	key := make([]byte, cryptocore.KeyLen)
	rand.Read(key)
	cryptor := cryptocore.New()

	w, err := segments.NewWriter(1, 2, 0, key, cryptor, cryptocore.DefaultRNG) // segSize = 256
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.SetContentLength(contentLen, false); err != nil {
		t.Fatalf("SetContentLength: %v", err)
	}
	packedLen, _ := w.Locations().SegmentsLength()
	packed := make([]byte, packedLen)
	plain := make([]byte, contentLen)

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
		for i := range pt {
			pt[i] = byte(info.Seg*31 + i)
		}
		copy(plain[info.ContentOfs:info.ContentOfs+info.ContentLen], pt)
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
	r := segments.NewReader(si, key, cryptor, bytes.NewReader(packed))
	return r, plain
}

func TestDecryptingByteSourceReadNextAdvancesCursor(t *testing.T) {
	r, plain := newTestReader(t, 600)
	s := New(r)

	first := make([]byte, 100)
	n, err := s.ReadNext(context.Background(), first)
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if n != 100 || !bytes.Equal(first, plain[:100]) {
		t.Fatalf("first ReadNext mismatch: n=%d", n)
	}
	if got := s.GetPosition(); got != 100 {
		t.Fatalf("GetPosition = %d, want 100", got)
	}

	second := make([]byte, 100)
	n, err = s.ReadNext(context.Background(), second)
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if !bytes.Equal(second, plain[100:200]) {
		t.Fatal("second ReadNext did not continue from the cursor")
	}
}

func TestDecryptingByteSourceSeekAndEOF(t *testing.T) {
	r, plain := newTestReader(t, 300)
	s := New(r)

	if err := s.Seek(250); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 100)
	n, err := s.ReadNext(context.Background(), buf)
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if n != 50 || !bytes.Equal(buf[:50], plain[250:300]) {
		t.Fatalf("short read trimmed to the content end: n=%d", n)
	}

	buf2 := make([]byte, 10)
	if _, err := s.ReadNext(context.Background(), buf2); err != io.EOF {
		t.Fatalf("expected io.EOF reading at the content end, got %v", err)
	}

	if err := s.Seek(1000); err == nil {
		t.Fatal("expected Seek past a finite file's length to fail")
	}
	if err := s.Seek(-1); err == nil {
		t.Fatal("expected Seek with a negative offset to fail")
	}
}

func TestDecryptingByteSourceReadAtDoesNotMoveCursor(t *testing.T) {
	r, plain := newTestReader(t, 300)
	s := New(r)

	buf := make([]byte, 50)
	if _, err := s.ReadAt(context.Background(), buf, 10); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(buf, plain[10:60]) {
		t.Fatal("ReadAt returned the wrong bytes")
	}
	if got := s.GetPosition(); got != 0 {
		t.Fatalf("ReadAt must not move the cursor, got position %d", got)
	}
}

func TestEncryptingObjSourceYieldsHeaderThenSegments(t *testing.T) {
	key := make([]byte, cryptocore.KeyLen)
	rand.Read(key)
	cryptor := cryptocore.New()

	w, err := segments.NewWriter(1, 2, 0, key, cryptor, cryptocore.DefaultRNG) // segSize = 256
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.SetContentLength(500, false); err != nil {
		t.Fatalf("SetContentLength: %v", err)
	}
	var zerothHeaderNonce [24]byte
	rand.Read(zerothHeaderNonce[:])
	headerCt := w.PackHeader(zerothHeaderNonce, 0)

	os := NewObjSource(w, headerCt, 0)
	if os.Version() != 0 {
		t.Fatalf("Version() = %d, want 0", os.Version())
	}

	got, ok := os.ReadHeader()
	if !ok || !bytes.Equal(got, headerCt) {
		t.Fatal("ReadHeader should yield the header ciphertext exactly as given")
	}
	if _, ok := os.ReadHeader(); ok {
		t.Fatal("ReadHeader must only yield the header once")
	}

	count := 0
	for {
		ct, ok, err := os.SegSrc(func(chain, seg int, buf []byte) error {
			for i := range buf {
				buf[i] = byte(seg)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("SegSrc: %v", err)
		}
		if !ok {
			break
		}
		if len(ct) == 0 {
			t.Fatal("SegSrc returned an empty ciphertext")
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 segments for a 500-byte file at segSize 256, got %d", count)
	}
}
