// Package events defines the notifications raised by the committee and the
// oracle, and the sinks that deliver them. Components never drop a
// notification on the floor: a component constructed without a sink logs.
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a notification. Name is the topic it is published under.
type Event interface {
	Name() string
}

// Warning marks notifications an operator should look at. They never fail a
// call.
type Warning interface {
	Event
	Warning() string
}

// Committee notifications.

type MemberAdded struct {
	Member       common.Address
	TotalMembers uint64
	Quorum       uint64
}

type MemberRemoved struct {
	Member       common.Address
	TotalMembers uint64
	Quorum       uint64
}

type QuorumSet struct {
	NewQuorum    uint64
	TotalMembers uint64
	PrevQuorum   uint64
}

type FrameConfigSet struct {
	NewInitialEpoch   uint64
	NewEpochsPerFrame uint64
}

type FastLaneConfigSet struct {
	FastLaneLengthSlots uint64
}

type ReportProcessorSet struct {
	Processor     common.Address
	PrevProcessor common.Address
}

type ReportReceived struct {
	RefSlot uint64
	Member  common.Address
	Report  common.Hash
}

type ConsensusReached struct {
	RefSlot uint64
	Report  common.Hash
	Support uint64
}

// Oracle notifications.

type ConsensusHashContractSet struct {
	Address     common.Address
	PrevAddress common.Address
}

type ConsensusVersionSet struct {
	Version     uint64
	PrevVersion uint64
}

type ReportSubmitted struct {
	RefSlot                uint64
	Hash                   common.Hash
	ProcessingDeadlineTime uint64
}

// ReportDiscarded is raised when a different report reaches consensus for a
// ref slot that already had one.
type ReportDiscarded struct {
	RefSlot uint64
	Hash    common.Hash
}

type ProcessingStarted struct {
	RefSlot uint64
	Hash    common.Hash
}

type ExtraDataSubmitted struct {
	RefSlot        uint64
	ItemsProcessed uint64
	ItemsCount     uint64
	// DataHash is the hash of the chunk this call delivered; zero for the
	// empty format.
	DataHash common.Hash
}

// WarnProcessingMissed: a report was superseded before anyone submitted its
// data.
type WarnProcessingMissed struct {
	RefSlot uint64
}

// WarnExtraDataIncompleteProcessing: a new report arrived while the previous
// slot's extra data was not fully delivered.
type WarnExtraDataIncompleteProcessing struct {
	RefSlot        uint64
	ProcessedItems uint64
	ItemsCount     uint64
}

// MainDataApplied carries the economic outcome of a processed main report.
// It is raised right after ProcessingStarted.
type MainDataApplied struct {
	RefSlot       uint64
	NumValidators uint64
	ClBalanceWei  *big.Int
	IsBunkerMode  bool
	ExtraDataFmt  uint64
	ExtraDataHash common.Hash
	ExtraDataSize uint64
}

func (MemberAdded) Name() string                       { return "MemberAdded" }
func (MemberRemoved) Name() string                     { return "MemberRemoved" }
func (QuorumSet) Name() string                         { return "QuorumSet" }
func (FrameConfigSet) Name() string                    { return "FrameConfigSet" }
func (FastLaneConfigSet) Name() string                 { return "FastLaneConfigSet" }
func (ReportProcessorSet) Name() string                { return "ReportProcessorSet" }
func (ReportReceived) Name() string                    { return "ReportReceived" }
func (ConsensusReached) Name() string                  { return "ConsensusReached" }
func (ConsensusHashContractSet) Name() string          { return "ConsensusHashContractSet" }
func (ConsensusVersionSet) Name() string               { return "ConsensusVersionSet" }
func (ReportSubmitted) Name() string                   { return "ReportSubmitted" }
func (ReportDiscarded) Name() string                   { return "ReportDiscarded" }
func (ProcessingStarted) Name() string                 { return "ProcessingStarted" }
func (ExtraDataSubmitted) Name() string                { return "ExtraDataSubmitted" }
func (WarnProcessingMissed) Name() string              { return "WarnProcessingMissed" }
func (WarnExtraDataIncompleteProcessing) Name() string { return "WarnExtraDataIncompleteProcessing" }
func (MainDataApplied) Name() string                   { return "MainDataApplied" }

func (ReportDiscarded) Warning() string {
	return "consensus report replaced by a different report for the same slot"
}

func (WarnProcessingMissed) Warning() string {
	return "consensus report superseded before processing started"
}

func (WarnExtraDataIncompleteProcessing) Warning() string {
	return "extra data of the previous report was not fully delivered"
}
