package frame

import (
	"sync/atomic"
	"time"
)

// TimeSource supplies the current unix time in seconds. Deadlines are checked
// against it on every call; nothing in the oracle runs on timers.
type TimeSource interface {
	Now() uint64
}

// SystemTime reads the wall clock.
type SystemTime struct{}

func (SystemTime) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualTime is a settable clock for simulations and tests.
type ManualTime struct {
	now uint64
}

func NewManualTime(now uint64) *ManualTime {
	return &ManualTime{now: now}
}

func (m *ManualTime) Now() uint64 {
	return atomic.LoadUint64(&m.now)
}

func (m *ManualTime) Set(now uint64) {
	atomic.StoreUint64(&m.now, now)
}

func (m *ManualTime) Advance(seconds uint64) uint64 {
	return atomic.AddUint64(&m.now, seconds)
}

// AdvanceToSlot moves the clock to the start of slot under schedule s.
func (m *ManualTime) AdvanceToSlot(s Schedule, slot uint64) {
	m.Set(s.TimestampAtSlot(slot))
}
