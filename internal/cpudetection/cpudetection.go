// Package cpudetection provides CPU feature detection used to size the
// concurrency budget a Cryptor's workBudget hands out to concurrent
// segment opens/packs.
package cpudetection

import (
	"runtime"
	"strings"

	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
)

// CPUFeatures is the detected hardware capability summary relevant to
// scheduling concurrent authenticated-encryption work.
type CPUFeatures struct {
	// AESNI/NEON flag hardware crypto acceleration, used as a (very rough)
	// signal that this core can sustain more concurrent Cryptor calls
	// before becoming compute-bound.
	AESNI bool
	NEON  bool
	// Cores is runtime.NumCPU(), the hard ceiling on useful parallelism.
	Cores int
	Arch  string
}

// CPUDetector caches one detection pass.
type CPUDetector struct {
	features *CPUFeatures
}

// New runs detection once and returns a ready detector.
func New() *CPUDetector {
	cd := &CPUDetector{}
	cd.detectFeatures()
	return cd
}

// GetFeatures returns the detected features.
func (cd *CPUDetector) GetFeatures() *CPUFeatures { return cd.features }

func (cd *CPUDetector) detectFeatures() {
	f := &CPUFeatures{Arch: runtime.GOARCH, Cores: runtime.NumCPU()}
	switch f.Arch {
	case "amd64":
		f.AESNI = true
	case "arm64":
		f.NEON = true
	}
	cd.features = f
	tlog.Debug.Printf("cpudetection: arch=%s cores=%d aesni=%v neon=%v", f.Arch, f.Cores, f.AESNI, f.NEON)
}

// RecommendedConcurrency returns how many segments a single caller should
// try to pack/open at once on this hardware: one worker per core when
// hardware crypto acceleration is present (the authenticator itself stops
// being the bottleneck), half that otherwise, floored at 1.
func (cd *CPUDetector) RecommendedConcurrency() int {
	f := cd.features
	n := f.Cores
	if !f.AESNI && !f.NEON {
		n = (n + 1) / 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

// String returns a human-readable feature summary, used in diagnostics
// output (internal/xspctl).
func (cd *CPUDetector) String() string {
	f := cd.features
	parts := []string{"arch:" + f.Arch}
	if f.AESNI {
		parts = append(parts, "AES-NI")
	}
	if f.NEON {
		parts = append(parts, "NEON")
	}
	return strings.Join(parts, ", ")
}
