package cryptocore

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
)

func randBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

func TestPackOpenRoundtrip(t *testing.T) {
	c := New()
	key := randBytes(KeyLen)
	n := randBytes(nonce.Len)
	msg := []byte("the quick brown fox")

	ct := c.Pack(msg, n, key)
	if len(ct) != len(msg)+Poly {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), len(msg)+Poly)
	}
	got, err := c.Open(ct, n, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("Open = %q, want %q", got, msg)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	c := New()
	key := randBytes(KeyLen)
	n := randBytes(nonce.Len)
	ct := c.Pack([]byte("hello"), n, key)
	ct[0] ^= 0xFF
	if _, err := c.Open(ct, n, key); err == nil {
		t.Fatal("expected Open to reject a tampered ciphertext")
	}
}

func TestOpenRejectsWrongNonce(t *testing.T) {
	c := New()
	key := randBytes(KeyLen)
	n1 := randBytes(nonce.Len)
	n2 := randBytes(nonce.Len)
	ct := c.Pack([]byte("hello"), n1, key)
	if _, err := c.Open(ct, n2, key); err == nil {
		t.Fatal("expected Open to reject a mismatched nonce")
	}
}

func TestPackWNOpenWNRoundtrip(t *testing.T) {
	c := New()
	key := randBytes(KeyLen)
	n := randBytes(nonce.Len)
	msg := []byte("header plaintext")

	ctWithNonce := c.PackWN(msg, n, key)
	if len(ctWithNonce) != nonce.Len+len(msg)+Poly {
		t.Fatalf("PackWN length = %d, want %d", len(ctWithNonce), nonce.Len+len(msg)+Poly)
	}
	if !bytes.Equal(ctWithNonce[:nonce.Len], n) {
		t.Fatal("PackWN must prefix the nonce verbatim")
	}
	got, err := c.OpenWN(ctWithNonce, key)
	if err != nil {
		t.Fatalf("OpenWN: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("OpenWN = %q, want %q", got, msg)
	}
}

func TestOpenWNRejectsTooShort(t *testing.T) {
	c := New()
	if _, err := c.OpenWN(randBytes(nonce.Len-1), randBytes(KeyLen)); err == nil {
		t.Fatal("expected OpenWN to reject a buffer shorter than a nonce")
	}
}

func TestWorkQueueAccounting(t *testing.T) {
	c := New()
	before := c.CanStartUnderWorkLabel(1)
	if before <= 0 {
		t.Fatalf("expected a positive starting budget, got %d", before)
	}
	c.AddToWorkQueue(1)
	after := c.CanStartUnderWorkLabel(1)
	if after != before-1 {
		t.Fatalf("CanStartUnderWorkLabel after one AddToWorkQueue = %d, want %d", after, before-1)
	}
	c.RemoveFromWorkQueue(1)
	restored := c.CanStartUnderWorkLabel(1)
	if restored != before {
		t.Fatalf("CanStartUnderWorkLabel after RemoveFromWorkQueue = %d, want %d", restored, before)
	}
}
