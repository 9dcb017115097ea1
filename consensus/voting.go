package consensus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
)

// SubmitVote records a member's vote for the report hash of the current
// frame. If the vote completes a quorum the report is handed to the report
// processor; when the processor refuses it the vote is not recorded.
func (c *HashConsensus) SubmitVote(memberAddr common.Address, refSlot uint64, hash common.Hash, consensusVersion uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.st.processor
	if p == nil {
		return ErrReportProcessorCannotBeZero
	}
	if expected := p.ConsensusVersion(); consensusVersion != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrUnexpectedConsensusVersion, expected, consensusVersion)
	}
	idx := c.st.memberIndex(memberAddr)
	if idx < 0 {
		return ErrNonMember
	}

	now := c.time.Now()
	s := c.schedule()
	f, err := s.FrameAt(now)
	if err != nil {
		return err
	}
	if hash == (common.Hash{}) {
		return ErrEmptyReport
	}
	if refSlot != f.RefSlot {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidSlot, f.RefSlot, refSlot)
	}
	slot := s.SlotAt(now)
	if slot <= f.RefSlot+c.st.frameCfg.FastLaneLengthSlots && !c.isFastLaneLocked(idx, f.Index) {
		return ErrNonFastLaneMemberCannotReportWithinFastLaneInterval
	}
	if last := p.LastProcessingRefSlot(); refSlot <= last {
		if cr := c.st.consensus; cr.reached && cr.refSlot == refSlot {
			return ErrConsensusReportAlreadyProcessing
		}
		return fmt.Errorf("%w: %d <= %d", ErrRefSlotMustBeGreaterThanProcessingOne, refSlot, last)
	}

	saved := c.st.copy()
	if !c.st.hasVotes || c.st.reportRefSlot != refSlot {
		c.st.hasVotes = true
		c.st.reportRefSlot = refSlot
		c.st.variants = nil
	}
	variant := -1
	for i, v := range c.st.variants {
		if v.Hash == hash {
			variant = i
			break
		}
	}
	m := &c.st.members[idx]
	if c.st.votedFor(*m) {
		if m.vote.variant == variant {
			c.st = saved
			return ErrDuplicateReport
		}
		c.st.variants[m.vote.variant].Support--
	}
	if variant < 0 {
		c.st.variants = append(c.st.variants, ReportVariant{Hash: hash})
		variant = len(c.st.variants) - 1
	}
	c.st.variants[variant].Support++
	m.vote = vote{valid: true, refSlot: refSlot, variant: variant}

	var batch events.Batch
	batch.Add(events.ReportReceived{RefSlot: refSlot, Member: memberAddr, Report: hash})
	if err := c.checkConsensusAt(s, f, &batch); err != nil {
		c.st = saved
		return err
	}

	c.log.Debug("Vote received", "refSlot", refSlot, "member", memberAddr, "hash", hash, "support", c.st.variants[variant].Support)
	batch.EmitTo(c.sink)
	return nil
}

// checkConsensus re-evaluates the current frame after a membership or quorum
// change. It may reach consensus but never revokes it.
func (c *HashConsensus) checkConsensus(batch *events.Batch) error {
	s := c.schedule()
	f, err := s.FrameAt(c.time.Now())
	if err != nil {
		return nil
	}
	return c.checkConsensusAt(s, f, batch)
}

func (c *HashConsensus) checkConsensusAt(s frame.Schedule, f frame.Frame, batch *events.Batch) error {
	variant, ok := c.st.consensusFor(f.RefSlot)
	if !ok {
		return nil
	}
	cr := c.st.consensus
	if cr.reached && cr.refSlot == f.RefSlot && cr.variant == variant {
		return nil
	}
	p := c.st.processor
	if p == nil || f.RefSlot <= p.LastProcessingRefSlot() {
		return nil
	}

	v := c.st.variants[variant]
	c.st.consensus = consensusRecord{reached: true, refSlot: f.RefSlot, variant: variant}
	batch.Add(events.ConsensusReached{RefSlot: f.RefSlot, Report: v.Hash, Support: v.Support})

	deadline := s.TimestampAtSlot(f.ReportProcessingDeadlineSlot)
	if err := p.SubmitConsensusReport(c.address, v.Hash, f.RefSlot, deadline); err != nil {
		return fmt.Errorf("report processor: %w", err)
	}
	c.log.Info("Consensus reached", "refSlot", f.RefSlot, "hash", v.Hash, "support", v.Support, "quorum", c.st.quorum)
	return nil
}
