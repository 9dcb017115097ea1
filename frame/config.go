// Package frame implements the time model of the oracle: the mapping from
// wall-clock time to beacon chain slots and epochs, and the grouping of epochs
// into reporting frames. Every function here is pure; the only mutable thing
// is the injected TimeSource.
package frame

import (
	"errors"
	"fmt"
)

var (
	ErrSecondsPerSlotCannotBeZero            = errors.New("seconds per slot cannot be zero")
	ErrSlotsPerEpochCannotBeZero             = errors.New("slots per epoch cannot be zero")
	ErrEpochsPerFrameCannotBeZero            = errors.New("epochs per frame cannot be zero")
	ErrFastLanePeriodCannotBeLongerThanFrame = errors.New("fast lane period cannot be longer than frame")
	ErrInitialEpochIsYetToArrive             = errors.New("initial epoch is yet to arrive")
)

// ChainConfig describes the beacon chain clock. It never changes after a
// committee or an oracle is constructed, and both sides of a binding must
// agree on it.
type ChainConfig struct {
	SlotsPerEpoch  uint64 `yaml:"slotsPerEpoch"`
	SecondsPerSlot uint64 `yaml:"secondsPerSlot"`
	GenesisTime    uint64 `yaml:"genesisTime"` // unix seconds
}

// Validate rejects configurations the clock cannot divide by.
func (c ChainConfig) Validate() error {
	if c.SecondsPerSlot == 0 {
		return ErrSecondsPerSlotCannotBeZero
	}
	if c.SlotsPerEpoch == 0 {
		return ErrSlotsPerEpochCannotBeZero
	}
	return nil
}

func (c ChainConfig) String() string {
	return fmt.Sprintf("{slotsPerEpoch=%d secondsPerSlot=%d genesis=%d}", c.SlotsPerEpoch, c.SecondsPerSlot, c.GenesisTime)
}

// FrameConfig groups epochs into frames. A frame is the unit of reporting:
// exactly one reference slot, and so at most one accepted report, per frame.
type FrameConfig struct {
	// InitialEpoch is the first epoch of frame 0.
	InitialEpoch uint64 `yaml:"initialEpoch"`
	// EpochsPerFrame is the frame length.
	EpochsPerFrame uint64 `yaml:"epochsPerFrame"`
	// FastLaneLengthSlots is the leading part of a frame, counted from the
	// reference slot, in which only the frame's fast lane members may vote.
	FastLaneLengthSlots uint64 `yaml:"fastLaneLengthSlots"`
}

// Validate checks the frame configuration against the chain it runs on.
func (f FrameConfig) Validate(chain ChainConfig) error {
	if f.EpochsPerFrame == 0 {
		return ErrEpochsPerFrameCannotBeZero
	}
	if f.FastLaneLengthSlots > f.EpochsPerFrame*chain.SlotsPerEpoch {
		return fmt.Errorf("%w: %d > %d", ErrFastLanePeriodCannotBeLongerThanFrame, f.FastLaneLengthSlots, f.EpochsPerFrame*chain.SlotsPerEpoch)
	}
	return nil
}

// Frame is a single reporting frame.
type Frame struct {
	Index uint64
	// RefSlot is the last slot of the previous frame. Reports describe the
	// chain state as of this slot.
	RefSlot uint64
	// ReportProcessingDeadlineSlot is the last slot in which a report for
	// RefSlot may still be agreed on and processed.
	ReportProcessingDeadlineSlot uint64
}
