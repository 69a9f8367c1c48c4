package protocol

import "sync/atomic"

// BlockClock is the protocol's notion of time in milliseconds. Pools read it
// to accrue interest; the facade moves it forward between actions.
type BlockClock struct {
	now atomic.Uint64
}

// NewBlockClock starts the clock at start.
func NewBlockClock(start uint64) *BlockClock {
	c := &BlockClock{}
	c.now.Store(start)
	return c
}

func (c *BlockClock) Now() uint64 { return c.now.Load() }

// Advance moves the clock forward by ms and returns the new time.
func (c *BlockClock) Advance(ms uint64) uint64 { return c.now.Add(ms) }

// Set moves the clock to an absolute time. Rewinding is the caller's
// responsibility; pools refuse to accrue against a clock behind them.
func (c *BlockClock) Set(ms uint64) { c.now.Store(ms) }
