// Package cryptocore provides the authenticated symmetric-box primitive
// (the "Cryptor") that every other xsp-files package treats as an external
// dependency, plus the default, in-repo implementation of it.
//
// The default implementation is backed by golang.org/x/crypto/nacl/secretbox:
// secretbox's 16-byte Poly1305 overhead and 24-byte XSalsa20 nonce match
// this module's fixed per-segment overhead and nonce length byte-for-byte,
// which is why this family of primitives is called "NaCl-style secret_box".
package cryptocore

import (
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
)

// Poly is the authenticator overhead every Cryptor ciphertext carries on
// top of the plaintext length.
const Poly = secretbox.Overhead

// KeyLen is the length in bytes of the per-file symmetric key.
const KeyLen = 32

// Cryptor is the authenticated-encryption dependency the segments/packing
// engine is built against. It is satisfied by SecretboxCryptor below, and
// may be satisfied by any implementation with the same wire shape (POLY
// overhead, nonce.Len-byte nonces).
type Cryptor interface {
	// Pack returns ciphertext of length len(msg)+Poly, sealed under nonce
	// and key.
	Pack(msg, nonce, key []byte) []byte
	// Open authenticates and decrypts ct, which must have been produced by
	// Pack with the same nonce and key.
	Open(ct, nonce, key []byte) ([]byte, error)
	// PackWN is the "formatWN" variant: it prefixes the nonce to the
	// ciphertext, so the result can be opened with only a key.
	PackWN(msg, nonce, key []byte) []byte
	// OpenWN is the formatWN counterpart of PackWN.
	OpenWN(ctWithNonce, key []byte) ([]byte, error)
	// CanStartUnderWorkLabel reports how many more concurrent Open/Pack
	// calls a caller identifying itself as label may start right now.
	CanStartUnderWorkLabel(label int) int
	// AddToWorkQueue and RemoveFromWorkQueue let a caller account for
	// concurrent work it has started/finished under label, for fair
	// scheduling across many labels sharing this Cryptor.
	AddToWorkQueue(label int)
	RemoveFromWorkQueue(label int)
}

// SecretboxCryptor is the default Cryptor, backed by
// golang.org/x/crypto/nacl/secretbox and a CPU-aware work budget.
type SecretboxCryptor struct {
	budget *workBudget
}

// New returns a ready-to-use SecretboxCryptor.
func New() *SecretboxCryptor {
	return &SecretboxCryptor{budget: newWorkBudget()}
}

func toKey32(key []byte) *[KeyLen]byte {
	if len(key) != KeyLen {
		panic("cryptocore: key must be exactly KeyLen bytes")
	}
	var k [KeyLen]byte
	copy(k[:], key)
	return &k
}

func toNonce24(n []byte) *[nonce.Len]byte {
	if len(n) != nonce.Len {
		panic("cryptocore: nonce must be exactly nonce.Len bytes")
	}
	var out [nonce.Len]byte
	copy(out[:], n)
	return &out
}

// Pack implements Cryptor.
func (c *SecretboxCryptor) Pack(msg, n, key []byte) []byte {
	return secretbox.Seal(nil, msg, toNonce24(n), toKey32(key))
}

// Open implements Cryptor.
func (c *SecretboxCryptor) Open(ct, n, key []byte) ([]byte, error) {
	out, ok := secretbox.Open(nil, ct, toNonce24(n), toKey32(key))
	if !ok {
		tlog.Debug.Printf("cryptocore: Open: authentication failed, len=%d", len(ct))
		return nil, errAuthFailed
	}
	return out, nil
}

// PackWN implements Cryptor.
func (c *SecretboxCryptor) PackWN(msg, n, key []byte) []byte {
	out := make([]byte, 0, nonce.Len+len(msg)+Poly)
	out = append(out, n...)
	return secretbox.Seal(out, msg, toNonce24(n), toKey32(key))
}

// OpenWN implements Cryptor.
func (c *SecretboxCryptor) OpenWN(ctWithNonce, key []byte) ([]byte, error) {
	if len(ctWithNonce) < nonce.Len {
		return nil, errTooShort
	}
	n := ctWithNonce[:nonce.Len]
	ct := ctWithNonce[nonce.Len:]
	return c.Open(ct, n, key)
}

// CanStartUnderWorkLabel implements Cryptor.
func (c *SecretboxCryptor) CanStartUnderWorkLabel(label int) int {
	return c.budget.canStart(label)
}

// AddToWorkQueue implements Cryptor.
func (c *SecretboxCryptor) AddToWorkQueue(label int) { c.budget.add(label) }

// RemoveFromWorkQueue implements Cryptor.
func (c *SecretboxCryptor) RemoveFromWorkQueue(label int) { c.budget.remove(label) }
