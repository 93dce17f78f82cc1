package obs

import (
	"sync/atomic"
	"time"
)

// CycleSequence numbers processing cycles so log lines of one cycle can be
// grouped. Two workers seeded at different instants do not collide in practice.
type CycleSequence struct {
	next uint64
}

func NewCycleSequence(seed uint64) *CycleSequence {
	if seed == 0 {
		seed = uint64(time.Now().UTC().Unix()) << 16
	}
	return &CycleSequence{next: seed}
}

func (s *CycleSequence) Next() uint64 {
	if s == nil {
		return 0
	}
	return atomic.AddUint64(&s.next, 1)
}
