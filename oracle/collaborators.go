package oracle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
)

// ConsensusContract is what the oracle needs from the committee it is bound
// to. consensus.HashConsensus implements it.
type ConsensusContract interface {
	Address() common.Address
	ChainConfig() frame.ChainConfig
	FrameConfig() frame.FrameConfig
	InitialRefSlot() uint64
	IsMember(addr common.Address) bool
	CurrentFrame() (frame.Frame, error)
}

// AccountingReport is the economic part of a main report, handed to the
// balance collaborator and the sanity checker.
type AccountingReport struct {
	RefSlot uint64
	// Timestamp is the time of RefSlot.
	Timestamp uint64
	// TimeElapsed is the time between the previous processed ref slot and
	// RefSlot.
	TimeElapsed                   uint64
	ClValidators                  uint64
	ClBalance                     *big.Int // wei
	WithdrawalVaultBalance        *big.Int
	ElRewardsVaultBalance         *big.Int
	SharesRequestedToBurn         *big.Int
	WithdrawalFinalizationBatches []uint64
	SimulatedShareRate            *big.Int
}

// Balance applies the economic outcome of a report. ApplyReport is called
// exactly once per processed main report, and only after CheckReport accepted
// the same report. It must not fail then.
type Balance interface {
	CheckReport(report AccountingReport) error
	ApplyReport(report AccountingReport) error
}

// ModuleRegistry tracks exited and stuck validators per staking module and
// node operator.
type ModuleRegistry interface {
	// NewlyExitedValidatorsCount previews UpdateExitedCounts without applying
	// it: the number of validators the update would mark as newly exited.
	NewlyExitedValidatorsCount(moduleIDs, exitedCounts []uint64) (uint64, error)
	// UpdateExitedCounts must not fail for arguments the preview accepted.
	UpdateExitedCounts(moduleIDs, exitedCounts []uint64) error
	ApplyExtraDataItem(item extradata.Item) error
	// OnExtraDataReportingFinished is called once all extra data of a report
	// has been applied.
	OnExtraDataReportingFinished() error
}

// Withdrawal is told about every processed report and the bunker mode flag.
// OnReport must not fail for arguments CheckOnReport accepted.
type Withdrawal interface {
	CheckOnReport(isBunkerMode bool, prevReportTimestamp, reportTimestamp uint64) error
	OnReport(isBunkerMode bool, prevReportTimestamp, reportTimestamp uint64) error
}

// LegacyBeaconSpec is the chain and frame layout of the legacy oracle.
type LegacyBeaconSpec struct {
	EpochsPerFrame uint64
	SlotsPerEpoch  uint64
	SecondsPerSlot uint64
	GenesisTime    uint64
}

// LegacyOracle receives a copy of every report during a migration window.
// OnLegacyReport must not fail for arguments CheckLegacyReport accepted.
type LegacyOracle interface {
	CheckLegacyReport(refSlot uint64, clBalance *big.Int, clValidators uint64) error
	OnLegacyReport(refSlot uint64, clBalance *big.Int, clValidators uint64) error
	BeaconSpec() LegacyBeaconSpec
	LastCompletedEpoch() uint64
}

// SanityChecker holds the numeric policy limits. Each call either returns
// nil or the reason the submission must be rejected.
type SanityChecker interface {
	CheckAccountingReport(report AccountingReport) error
	CheckExitedValidatorsRatePerDay(exitedValidatorsPerDay uint64) error
	CheckExtraDataItemsCountPerTransaction(itemsCount uint64) error
	CheckNodeOperatorsPerExtraDataItemCount(itemIndex, nodeOperatorsCount uint64) error
}
