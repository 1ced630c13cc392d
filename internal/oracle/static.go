// Package oracle provides implementations of the domain.Oracle port: a
// production adapter that reads a Uniswap v3 pool's observations over RPC,
// and a fixed-value double for simulation and tests. The implementation is
// chosen once at construction and never switched at runtime.
package oracle

import (
	"context"
	"sync"
)

// Static is a fixed-tick oracle. Its cumulative samples are synthesized so
// the derived TWAP always equals the configured tick. It can be told to
// fail to exercise soft-failure paths.
type Static struct {
	mu   sync.Mutex
	tick int64
	err  error
}

// NewStatic creates a Static oracle reporting the given tick.
func NewStatic(tick int64) *Static {
	return &Static{tick: tick}
}

// SetTick changes the reported tick.
func (s *Static) SetTick(tick int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = tick
}

// Fail makes subsequent Observe calls return err; pass nil to heal.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Observe returns synthetic cumulative ticks: tick × (−secondsAgo), so any
// two samples differ by tick × window.
func (s *Static) Observe(_ context.Context, secondsAgos []uint32) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([]int64, len(secondsAgos))
	for i, ago := range secondsAgos {
		out[i] = -int64(ago) * s.tick
	}
	return out, nil
}
