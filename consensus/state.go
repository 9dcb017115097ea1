package consensus

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-accounting-oracle/frame"
)

// ReportVariant is a distinct hash voted for in the current report frame.
type ReportVariant struct {
	Hash    common.Hash
	Support uint64
}

type vote struct {
	valid   bool
	refSlot uint64
	variant int
}

type member struct {
	addr common.Address
	vote vote
}

// consensusRecord is the last report that reached consensus.
type consensusRecord struct {
	reached bool
	refSlot uint64
	variant int
}

// state is everything a call may change. Calls work on the live state and
// restore a snapshot when a later step fails.
type state struct {
	frameCfg  frame.FrameConfig
	processor ReportProcessor
	members   []member
	quorum    uint64

	// reportRefSlot is the ref slot the variants and member votes belong to.
	hasVotes      bool
	reportRefSlot uint64
	variants      []ReportVariant
	consensus     consensusRecord
}

func (s *state) copy() state {
	cp := *s
	cp.members = append([]member(nil), s.members...)
	cp.variants = append([]ReportVariant(nil), s.variants...)
	return cp
}

func (s *state) memberIndex(addr common.Address) int {
	for i, m := range s.members {
		if m.addr == addr {
			return i
		}
	}
	return -1
}

// votedFor reports whether m has a vote in the current report frame.
func (s *state) votedFor(m member) bool {
	return s.hasVotes && m.vote.valid && m.vote.refSlot == s.reportRefSlot
}

// consensusFor returns the variant that has reached quorum for refSlot,
// preferring the one already accepted.
func (s *state) consensusFor(refSlot uint64) (int, bool) {
	if !s.hasVotes || s.reportRefSlot != refSlot {
		return -1, false
	}
	if s.consensus.reached && s.consensus.refSlot == refSlot && s.variants[s.consensus.variant].Support >= s.quorum {
		return s.consensus.variant, true
	}
	for i, v := range s.variants {
		if v.Support >= s.quorum && v.Support > 0 {
			return i, true
		}
	}
	return -1, false
}

// fastLane returns the half-open member index range [start, past) of the
// frame's fast lane. past may exceed the member count, in which case the
// range wraps around.
func fastLane(frameIndex, total, quorum uint64) (start, past uint64) {
	if quorum >= total {
		return 0, total
	}
	start = frameIndex % total
	return start, start + quorum
}

func isFastLane(index, frameIndex, total, quorum uint64) bool {
	if total == 0 {
		return false
	}
	start, past := fastLane(frameIndex, total, quorum)
	return (index >= start && index < past) || index+total < past
}
