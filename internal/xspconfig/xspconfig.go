// Package xspconfig collects the geometry-affecting knobs a caller picks
// once per object, the way gocryptfs's own internal/configfile collects a
// filesystem's on-disk KDF and cipher parameters into one small, validated
// struct. Unlike configfile, Config is never itself persisted to disk: the
// caller owns wherever these values end up recorded (the object's own
// metadata, an application config file, …), this core only validates them.
package xspconfig

import "github.com/3nsoft/xsp-files-sub000/internal/xsperrors"

// Config is the knob bag a caller picks once per object. Its geometry
// fields correspond to NewWriter's arguments; NewReaderWithConfig takes the
// whole struct for its read-batching and concurrency knobs.
type Config struct {
	// SegSizeIn256B is the plaintext segment size in units of 256 bytes
	// (so 16 means a 4096-byte segment), matching header.go's on-wire
	// encoding of segSize/256.
	SegSizeIn256B int
	// FormatVersion is the header wire format, 1 or 2.
	FormatVersion int
	// PayloadFormatVersion is opaque to this module; it is carried
	// through the header for the caller's own payload-format tagging.
	PayloadFormatVersion int
	// PackedReadChunkLen bounds how much adjacent packed data
	// SegmentsReader will fetch in one underlying read before
	// splitting the rest into a further batch.
	PackedReadChunkLen int
	// MaxConcurrency caps how many read batches a SegmentsReader opens at
	// once, lowering the Cryptor's own CPU-based limit when positive.
	MaxConcurrency int
}

// DefaultSegSizeIn256B is 4096/256 = 16, gocryptfs's own default plaintext
// block size expressed in this module's 256-byte units.
const DefaultSegSizeIn256B = 16

// DefaultPackedReadChunkLen matches segments.PackedReadChunkLen.
const DefaultPackedReadChunkLen = 256 * 1024

// Default returns a Config with conservative, production-ready defaults.
func Default() Config {
	return Config{
		SegSizeIn256B:        DefaultSegSizeIn256B,
		FormatVersion:        2,
		PayloadFormatVersion: 0,
		PackedReadChunkLen:   DefaultPackedReadChunkLen,
	}
}

// Validate checks c for the bounds every downstream package assumes.
func (c Config) Validate() error {
	if c.SegSizeIn256B <= 0 {
		return xsperrors.Newf(xsperrors.InputParsing, "xspconfig: segSizeIn256B must be positive, got %d", c.SegSizeIn256B)
	}
	if c.FormatVersion != 1 && c.FormatVersion != 2 {
		return xsperrors.Newf(xsperrors.InputParsing, "xspconfig: unknown formatVersion %d", c.FormatVersion)
	}
	if c.PackedReadChunkLen < 0 {
		return xsperrors.New(xsperrors.InputParsing, "xspconfig: packedReadChunkLen must not be negative")
	}
	if c.MaxConcurrency < 0 {
		return xsperrors.New(xsperrors.InputParsing, "xspconfig: maxConcurrency must not be negative")
	}
	return nil
}

// SegSize returns the plaintext segment size in bytes.
func (c Config) SegSize() int { return c.SegSizeIn256B << 8 }
