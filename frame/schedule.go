package frame

// Schedule binds a chain clock to a frame layout and answers every
// time-to-frame question the committee and the oracle ask.
type Schedule struct {
	Chain ChainConfig
	Frame FrameConfig
}

// NewSchedule validates both halves of the schedule.
func NewSchedule(chain ChainConfig, frame FrameConfig) (Schedule, error) {
	if err := chain.Validate(); err != nil {
		return Schedule{}, err
	}
	if err := frame.Validate(chain); err != nil {
		return Schedule{}, err
	}
	return Schedule{Chain: chain, Frame: frame}, nil
}

// SlotAt returns the slot containing unix time t. Times before genesis map to
// slot 0.
func (s Schedule) SlotAt(t uint64) uint64 {
	if t < s.Chain.GenesisTime {
		return 0
	}
	return (t - s.Chain.GenesisTime) / s.Chain.SecondsPerSlot
}

// EpochAt returns the epoch containing unix time t.
func (s Schedule) EpochAt(t uint64) uint64 {
	return s.SlotAt(t) / s.Chain.SlotsPerEpoch
}

// TimestampAtSlot returns the start time of a slot.
func (s Schedule) TimestampAtSlot(slot uint64) uint64 {
	return s.Chain.GenesisTime + slot*s.Chain.SecondsPerSlot
}

func (s Schedule) StartSlotAtEpoch(epoch uint64) uint64 {
	return epoch * s.Chain.SlotsPerEpoch
}

func (s Schedule) SlotsPerFrame() uint64 {
	return s.Frame.EpochsPerFrame * s.Chain.SlotsPerEpoch
}

// FrameFirstEpoch returns the first epoch of the frame containing epoch.
func (s Schedule) FrameFirstEpoch(epoch uint64) uint64 {
	if epoch < s.Frame.InitialEpoch {
		return s.Frame.InitialEpoch
	}
	frames := (epoch - s.Frame.InitialEpoch) / s.Frame.EpochsPerFrame
	return s.Frame.InitialEpoch + frames*s.Frame.EpochsPerFrame
}

// FrameIndexAt returns the index of the frame containing unix time t,
// counted from InitialEpoch. Callers must check InitialEpochArrived first.
func (s Schedule) FrameIndexAt(t uint64) uint64 {
	epoch := s.EpochAt(t)
	if epoch < s.Frame.InitialEpoch {
		return 0
	}
	return (epoch - s.Frame.InitialEpoch) / s.Frame.EpochsPerFrame
}

// InitialEpochArrived reports whether frame 0 has started at time t.
func (s Schedule) InitialEpochArrived(t uint64) bool {
	return s.EpochAt(t) >= s.Frame.InitialEpoch
}

// FrameAt returns the frame containing unix time t.
func (s Schedule) FrameAt(t uint64) (Frame, error) {
	if !s.InitialEpochArrived(t) {
		return Frame{}, ErrInitialEpochIsYetToArrive
	}
	return s.FrameByIndex(s.FrameIndexAt(t)), nil
}

// FrameByIndex computes frame boundaries without looking at the clock.
func (s Schedule) FrameByIndex(index uint64) Frame {
	startEpoch := s.Frame.InitialEpoch + index*s.Frame.EpochsPerFrame
	startSlot := s.StartSlotAtEpoch(startEpoch)
	return Frame{
		Index:                        index,
		RefSlot:                      refSlotBefore(startSlot),
		ReportProcessingDeadlineSlot: startSlot + s.SlotsPerFrame() - 1,
	}
}

// InitialRefSlot is the reference slot of frame 0.
func (s Schedule) InitialRefSlot() uint64 {
	return refSlotBefore(s.StartSlotAtEpoch(s.Frame.InitialEpoch))
}

// DeadlineForRefSlot is the last moment a report for refSlot can be processed:
// the start of the slot one full frame after the reference slot.
func (s Schedule) DeadlineForRefSlot(refSlot uint64) uint64 {
	return s.TimestampAtSlot(refSlot + s.SlotsPerFrame())
}

// refSlotBefore returns the slot preceding a frame start. A frame starting at
// genesis has no previous slot and reports slot 0.
func refSlotBefore(startSlot uint64) uint64 {
	if startSlot == 0 {
		return 0
	}
	return startSlot - 1
}
