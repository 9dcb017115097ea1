// Package consensus implements the committee that agrees on report hashes.
// Members vote for the hash of the report they computed for the current
// frame's reference slot; the first hash to gather a quorum of votes is
// handed to the report processor.
package consensus

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
)

// UnreachableQuorum disables consensus.
const UnreachableQuorum uint64 = math.MaxUint64

// ReportProcessor receives agreed reports. oracle.AccountingOracle
// implements it. The committee calls it with its own lock held.
type ReportProcessor interface {
	Address() common.Address
	SubmitConsensusReport(sender common.Address, hash common.Hash, refSlot, deadline uint64) error
	LastProcessingRefSlot() uint64
	ConsensusVersion() uint64
}

// Config wires a HashConsensus.
type Config struct {
	Address   common.Address
	Chain     frame.ChainConfig
	Frame     frame.FrameConfig
	Time      frame.TimeSource
	Auth      access.Authorizer
	Sink      events.Sink
	Processor ReportProcessor // may be set later with SetReportProcessor
	Logger    log.Logger
}

// HashConsensus is the voting committee.
type HashConsensus struct {
	address common.Address
	chain   frame.ChainConfig
	time    frame.TimeSource
	auth    access.Authorizer
	sink    events.Sink
	log     log.Logger

	mu sync.Mutex
	st state
}

// New validates the chain and frame configs and returns a committee without
// members.
func New(cfg Config) (*HashConsensus, error) {
	if _, err := frame.NewSchedule(cfg.Chain, cfg.Frame); err != nil {
		return nil, err
	}
	if cfg.Time == nil {
		cfg.Time = frame.SystemTime{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New("module", "consensus")
	}
	return &HashConsensus{
		address: cfg.Address,
		chain:   cfg.Chain,
		time:    cfg.Time,
		auth:    cfg.Auth,
		sink:    events.OrLog(cfg.Sink, cfg.Logger),
		log:     cfg.Logger,
		st: state{
			frameCfg:  cfg.Frame,
			processor: cfg.Processor,
		},
	}, nil
}

// Address is immutable and safe to call from the report processor while the
// committee is calling it.
func (c *HashConsensus) Address() common.Address {
	return c.address
}

// ChainConfig is immutable.
func (c *HashConsensus) ChainConfig() frame.ChainConfig {
	return c.chain
}

func (c *HashConsensus) FrameConfig() frame.FrameConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.frameCfg
}

func (c *HashConsensus) schedule() frame.Schedule {
	return frame.Schedule{Chain: c.chain, Frame: c.st.frameCfg}
}

// CurrentFrame fails with frame.ErrInitialEpochIsYetToArrive before the
// first frame starts.
func (c *HashConsensus) CurrentFrame() (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule().FrameAt(c.time.Now())
}

// InitialRefSlot is the ref slot of frame 0.
func (c *HashConsensus) InitialRefSlot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule().InitialRefSlot()
}

func (c *HashConsensus) ReportProcessor() ReportProcessor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.processor
}

func (c *HashConsensus) Quorum() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.quorum
}

// ReportVariants returns the hashes voted for in the last report frame.
func (c *HashConsensus) ReportVariants() []ReportVariant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.st.hasVotes {
		return nil
	}
	return append([]ReportVariant(nil), c.st.variants...)
}

// ConsensusState is the agreement status of the current frame.
type ConsensusState struct {
	RefSlot            uint64
	ConsensusReport    common.Hash
	IsReportProcessing bool
}

func (c *HashConsensus) ConsensusState() (ConsensusState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.schedule().FrameAt(c.time.Now())
	if err != nil {
		return ConsensusState{}, err
	}
	res := ConsensusState{RefSlot: f.RefSlot}
	if cr := c.st.consensus; cr.reached && cr.refSlot == f.RefSlot {
		res.ConsensusReport = c.st.variants[cr.variant].Hash
	}
	if c.st.processor != nil {
		res.IsReportProcessing = c.st.processor.LastProcessingRefSlot() == f.RefSlot
	}
	return res, nil
}

// MemberConsensusState is the current frame as seen by one member.
type MemberConsensusState struct {
	CurrentFrameRefSlot         uint64
	CurrentFrameConsensusReport common.Hash
	IsMember                    bool
	IsFastLane                  bool
	CanReport                   bool
	LastMemberReportRefSlot     uint64
	CurrentFrameMemberReport    common.Hash
}

func (c *HashConsensus) ConsensusStateForMember(addr common.Address) (MemberConsensusState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.time.Now()
	s := c.schedule()
	f, err := s.FrameAt(now)
	if err != nil {
		return MemberConsensusState{}, err
	}
	res := MemberConsensusState{CurrentFrameRefSlot: f.RefSlot}
	if cr := c.st.consensus; cr.reached && cr.refSlot == f.RefSlot {
		res.CurrentFrameConsensusReport = c.st.variants[cr.variant].Hash
	}

	slot := s.SlotAt(now)
	res.CanReport = slot <= f.ReportProcessingDeadlineSlot
	if c.st.processor != nil {
		res.CanReport = res.CanReport && f.RefSlot > c.st.processor.LastProcessingRefSlot()
	}

	i := c.st.memberIndex(addr)
	res.IsMember = i >= 0
	if !res.IsMember {
		res.CanReport = false
		return res, nil
	}
	m := c.st.members[i]
	res.IsFastLane = c.isFastLaneLocked(i, f.Index)
	res.CanReport = res.CanReport && (res.IsFastLane || slot > f.RefSlot+c.st.frameCfg.FastLaneLengthSlots)
	if m.vote.valid {
		res.LastMemberReportRefSlot = m.vote.refSlot
	}
	if c.st.votedFor(m) && m.vote.refSlot == f.RefSlot {
		res.CurrentFrameMemberReport = c.st.variants[m.vote.variant].Hash
	}
	return res, nil
}

// SetFrameConfig changes the frame length. The current frame becomes frame
// 0 of the new layout, so the current frame never moves backward.
func (c *HashConsensus) SetFrameConfig(caller common.Address, epochsPerFrame, fastLaneLengthSlots uint64) error {
	if err := access.Check(c.auth, access.ManageFrameConfigRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.schedule()
	initial := s.FrameFirstEpoch(s.EpochAt(c.time.Now()))
	var batch events.Batch
	if err := c.setFrameConfig(frame.FrameConfig{
		InitialEpoch:        initial,
		EpochsPerFrame:      epochsPerFrame,
		FastLaneLengthSlots: fastLaneLengthSlots,
	}, &batch); err != nil {
		return err
	}
	batch.EmitTo(c.sink)
	return nil
}

func (c *HashConsensus) setFrameConfig(cfg frame.FrameConfig, batch *events.Batch) error {
	if err := cfg.Validate(c.chain); err != nil {
		return err
	}
	prev := c.st.frameCfg
	c.st.frameCfg = cfg
	if cfg.InitialEpoch != prev.InitialEpoch || cfg.EpochsPerFrame != prev.EpochsPerFrame {
		batch.Add(events.FrameConfigSet{NewInitialEpoch: cfg.InitialEpoch, NewEpochsPerFrame: cfg.EpochsPerFrame})
	}
	if cfg.FastLaneLengthSlots != prev.FastLaneLengthSlots {
		batch.Add(events.FastLaneConfigSet{FastLaneLengthSlots: cfg.FastLaneLengthSlots})
	}
	c.log.Info("Frame config set", "initialEpoch", cfg.InitialEpoch, "epochsPerFrame", cfg.EpochsPerFrame, "fastLane", cfg.FastLaneLengthSlots)
	return nil
}

// SetFastLaneLengthSlots changes only the fast lane window.
func (c *HashConsensus) SetFastLaneLengthSlots(caller common.Address, slots uint64) error {
	if err := access.Check(c.auth, access.ManageFastLaneConfigRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.st.frameCfg
	cfg.FastLaneLengthSlots = slots
	var batch events.Batch
	if err := c.setFrameConfig(cfg, &batch); err != nil {
		return err
	}
	batch.EmitTo(c.sink)
	return nil
}

// UpdateInitialEpoch moves the start of frame 0. Only allowed before it
// arrives.
func (c *HashConsensus) UpdateInitialEpoch(caller common.Address, initialEpoch uint64) error {
	if err := access.Check(c.auth, access.ManageFrameConfigRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schedule().InitialEpochArrived(c.time.Now()) {
		return ErrInitialEpochAlreadyArrived
	}
	cfg := c.st.frameCfg
	cfg.InitialEpoch = initialEpoch
	if c.st.processor != nil {
		initialRefSlot := frame.Schedule{Chain: c.chain, Frame: cfg}.InitialRefSlot()
		if last := c.st.processor.LastProcessingRefSlot(); initialRefSlot < last {
			return fmt.Errorf("%w: %d < %d", ErrInitialEpochRefSlotCannotBeEarlierThanProcessingSlot, initialRefSlot, last)
		}
	}
	var batch events.Batch
	if err := c.setFrameConfig(cfg, &batch); err != nil {
		return err
	}
	batch.EmitTo(c.sink)
	return nil
}

// SetReportProcessor swaps the processor. A report already agreed for the
// current frame is handed to the new processor unless it has processed it.
func (c *HashConsensus) SetReportProcessor(caller common.Address, p ReportProcessor) error {
	if err := access.Check(c.auth, access.ManageReportProcessorRole, caller); err != nil {
		return err
	}
	if p == nil || p.Address() == (common.Address{}) {
		return ErrReportProcessorCannotBeZero
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var prevAddr common.Address
	if c.st.processor != nil {
		prevAddr = c.st.processor.Address()
	}
	if p.Address() == prevAddr {
		return ErrNewProcessorCannotBeTheSame
	}

	var batch events.Batch
	batch.Add(events.ReportProcessorSet{Processor: p.Address(), PrevProcessor: prevAddr})

	s := c.schedule()
	f, err := s.FrameAt(c.time.Now())
	if cr := c.st.consensus; err == nil && cr.reached && cr.refSlot == f.RefSlot && cr.refSlot > p.LastProcessingRefSlot() {
		hash := c.st.variants[cr.variant].Hash
		deadline := s.TimestampAtSlot(f.ReportProcessingDeadlineSlot)
		if err := p.SubmitConsensusReport(c.address, hash, cr.refSlot, deadline); err != nil {
			return fmt.Errorf("report processor: %w", err)
		}
	}
	c.st.processor = p

	c.log.Info("Report processor set", "processor", p.Address(), "prev", prevAddr)
	batch.EmitTo(c.sink)
	return nil
}
