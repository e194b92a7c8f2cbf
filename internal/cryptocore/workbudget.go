package cryptocore

import (
	"sync"

	"github.com/3nsoft/xsp-files-sub000/internal/cpudetection"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
)

// workBudget hands out a concurrency allowance per work label (one logical
// owner, e.g. one open DecryptingByteSource stream) so that many labels
// sharing one Cryptor still get fair access to the available CPU-bound
// crypto capacity. The total capacity comes from cpudetection, which sizes
// it off core count and the likely presence of hardware crypto
// acceleration; CanStartUnderWorkLabel divides what's left evenly across
// the labels currently holding outstanding work.
type workBudget struct {
	mu     sync.Mutex
	total  int
	active map[int]int
	cpu    *cpudetection.CPUDetector
}

func newWorkBudget() *workBudget {
	cpu := cpudetection.New()
	total := cpu.RecommendedConcurrency()
	tlog.Debug.Printf("cryptocore: work budget total=%d cpu=%s", total, cpu)
	return &workBudget{
		total:  total,
		active: make(map[int]int),
		cpu:    cpu,
	}
}

// canStart reports how many additional concurrent operations label may
// start right now. It always returns at least 1, so no label ever starves
// even when every slot is in principle taken: callers block on the actual
// cryptor call, not on this hint, so returning 1 just forces serialization
// instead of a deadlock.
func (b *workBudget) canStart(label int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	totalActive := 0
	numLabels := 0
	for _, n := range b.active {
		totalActive += n
		if n > 0 {
			numLabels++
		}
	}
	remaining := b.total - totalActive
	if remaining < 1 {
		return 1
	}
	if numLabels <= 1 {
		return remaining
	}
	share := remaining / numLabels
	if share < 1 {
		share = 1
	}
	return share
}

func (b *workBudget) add(label int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[label]++
}

func (b *workBudget) remove(label int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.active[label]; ok {
		if n <= 1 {
			delete(b.active, label)
		} else {
			b.active[label] = n - 1
		}
	}
}
