package notify

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// dedupe 两个布隆过滤器轮换，current 写满 capacity 后成为 previous
type dedupe struct {
	mu       sync.Mutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	added    uint
	capacity uint
	fpRate   float64
}

func newDedupe(capacity uint, fpRate float64) *dedupe {
	return &dedupe{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// Seen 是否可能见过
func (d *dedupe) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := []byte(id)
	return d.current.Test(key) || d.previous.Test(key)
}

// Add 记录 id
func (d *dedupe) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.added >= d.capacity {
		d.previous = d.current
		d.current = bloom.NewWithEstimates(d.capacity, d.fpRate)
		d.added = 0
	}
	d.current.Add([]byte(id))
	d.added++
}
