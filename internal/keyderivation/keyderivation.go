// Package keyderivation is a demo/test-only helper showing the shape a
// caller's key-holder would take to turn a passphrase into the 32-byte
// file key SegmentsReader/SegmentsWriter expect. Unsealing a key pack
// under a master key is out of scope for this core (no master-key
// management); this package only exercises the Argon2id dependency a
// gocryptfs-style config file KDF wrapper would carry, adapted here into a
// standalone function.
package keyderivation

import (
	"golang.org/x/crypto/argon2"

	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

const (
	// DefaultMemory is the default memory usage in KB (64MB).
	DefaultMemory = 64 * 1024
	// DefaultIterations is the default number of iterations.
	DefaultIterations = 3
	// DefaultParallelism is the default parallelism factor.
	DefaultParallelism = 4
	// MinSaltLen is the minimum accepted salt length.
	MinSaltLen = 16
)

// Argon2idKDF holds one set of Argon2id parameters plus the salt they were
// used with.
type Argon2idKDF struct {
	Salt        []byte
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

// NewArgon2idKDF draws a fresh random salt and returns a KDF with secure
// default parameters, ready to derive a cryptocore.KeyLen-byte key.
func NewArgon2idKDF(rng cryptocore.RNG) (Argon2idKDF, error) {
	salt, err := rng(cryptocore.KeyLen)
	if err != nil {
		return Argon2idKDF{}, xsperrors.Wrap(xsperrors.InputParsing, "keyderivation: drawing salt", err)
	}
	return Argon2idKDF{
		Salt:        salt,
		Memory:      DefaultMemory,
		Iterations:  DefaultIterations,
		Parallelism: DefaultParallelism,
	}, nil
}

// DeriveKey returns a cryptocore.KeyLen-byte key derived from pw under a's
// parameters.
func (a Argon2idKDF) DeriveKey(pw []byte) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(pw, a.Salt, a.Iterations, a.Memory, a.Parallelism, cryptocore.KeyLen), nil
}

func (a Argon2idKDF) validate() error {
	if len(a.Salt) < MinSaltLen {
		return xsperrors.Newf(xsperrors.InputParsing, "keyderivation: salt too short: %d < %d", len(a.Salt), MinSaltLen)
	}
	if a.Memory == 0 || a.Iterations == 0 || a.Parallelism == 0 {
		return xsperrors.Newf(xsperrors.InputParsing,
			"keyderivation: zero parameter: memory=%d iterations=%d parallelism=%d", a.Memory, a.Iterations, a.Parallelism)
	}
	return nil
}
