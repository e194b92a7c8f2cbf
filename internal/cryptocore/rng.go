package cryptocore

import "crypto/rand"

// RNG is the "rng(n) -> n cryptographically strong bytes" dependency
// consumed by PackingInfo for new chain first-nonces and by writers owning
// a fresh header nonce.
type RNG func(n int) ([]byte, error)

// DefaultRNG reads from crypto/rand.
func DefaultRNG(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
