// Package speed benchmarks the Cryptor implementation the rest of this
// module is built against, the way gocryptfs's own "-speed" option
// compares its AES-GCM/AES-SIV backends. Since this module has exactly one
// production Cryptor (cryptocore.SecretboxCryptor), the comparison here is
// across segment sizes rather than across backends.
package speed

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/nonce"
)

// segSizes are the plaintext segment sizes exercised by Run, chosen to
// bracket the default 4096-byte segment used in tests.
var segSizes = []int{1024, 4096, 16384, 65536}

// Run benchmarks Pack/Open across segSizes and prints a openssl-speed-style
// table. It is meant for a caller's own diagnostics command, not for tests.
func Run() {
	c := cryptocore.New()
	key := make([]byte, cryptocore.KeyLen)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	var n nonce.Nonce
	if _, err := rand.Read(n[:]); err != nil {
		panic(err)
	}

	fmt.Printf("%-10s %-12s %-12s\n", "segSize", "pack (ns/op)", "open (ns/op)")
	for _, size := range segSizes {
		msg := make([]byte, size)
		packRes := testing.Benchmark(func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				_ = c.Pack(msg, n.Bytes(), key)
			}
		})
		ct := c.Pack(msg, n.Bytes(), key)
		openRes := testing.Benchmark(func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, err := c.Open(ct, n.Bytes(), key); err != nil {
					b.Fatal(err)
				}
			}
		})
		fmt.Printf("%-10d %-12d %-12d\n", size, packRes.NsPerOp(), openRes.NsPerOp())
	}
}
