package oracle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
)

const (
	// DefaultContractVersion is the report layout version this package
	// implements.
	DefaultContractVersion = 1

	secondsPerDay = 24 * 60 * 60
)

// Config wires an AccountingOracle.
type Config struct {
	Address common.Address
	// Chain must equal the chain config of every committee the oracle binds
	// to.
	Chain           frame.ChainConfig
	ContractVersion uint64

	Time   frame.TimeSource
	Auth   access.Authorizer
	Sink   events.Sink
	Logger log.Logger

	Balance    Balance
	Registry   ModuleRegistry
	Withdrawal Withdrawal
	Sanity     SanityChecker
	// Legacy is optional. When set, Initialize checks the migration and the
	// oracle forwards every main report to it.
	Legacy LegacyOracle
}

// AccountingOracle applies agreed reports: the main report first, then its
// extra data, possibly in several chunks.
type AccountingOracle struct {
	*BaseOracle

	balance    Balance
	registry   ModuleRegistry
	withdrawal Withdrawal
	sanity     SanityChecker
	legacy     LegacyOracle

	// guarded by BaseOracle.mu
	initialized bool
	extra       ExtraDataProcessingState
	hasExtra    bool
}

// NewAccountingOracle checks the config and returns an oracle that still has
// to be bound to a committee with Initialize.
func NewAccountingOracle(cfg Config) (*AccountingOracle, error) {
	if err := cfg.Chain.Validate(); err != nil {
		return nil, err
	}
	for name, c := range map[string]interface{}{
		"balance":    cfg.Balance,
		"registry":   cfg.Registry,
		"withdrawal": cfg.Withdrawal,
		"sanity":     cfg.Sanity,
	} {
		if c == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingCollaborator, name)
		}
	}
	if cfg.ContractVersion == 0 {
		cfg.ContractVersion = DefaultContractVersion
	}
	if cfg.Time == nil {
		cfg.Time = frame.SystemTime{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New("module", "oracle")
	}
	cfg.Sink = events.OrLog(cfg.Sink, cfg.Logger)

	o := &AccountingOracle{
		balance:    cfg.Balance,
		registry:   cfg.Registry,
		withdrawal: cfg.Withdrawal,
		sanity:     cfg.Sanity,
		legacy:     cfg.Legacy,
	}
	o.BaseOracle = newBaseOracle(&cfg, o)
	return o, nil
}

// Initialize binds the oracle to its committee. With a legacy oracle
// configured the last processing ref slot is derived from it and
// lastProcessingRefSlot is ignored.
func (o *AccountingOracle) Initialize(c ConsensusContract, consensusVersion, lastProcessingRefSlot uint64) error {
	if o.legacy != nil && c != nil {
		ref, err := o.checkOracleMigration(c)
		if err != nil {
			return err
		}
		lastProcessingRefSlot = ref
	}
	b := bindingOf(c)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return ErrAlreadyInitialized
	}
	if consensusVersion == o.consensusVersion {
		return ErrVersionCannotBeSame
	}
	var batch events.Batch
	if err := o.setConsensusContract(b, lastProcessingRefSlot, &batch); err != nil {
		return err
	}
	_ = o.setConsensusVersion(consensusVersion, &batch)
	o.lastProcessingRefSlot = lastProcessingRefSlot
	o.report.RefSlot = lastProcessingRefSlot
	o.initialized = true

	o.log.Info("Oracle initialized", "consensus", b.address, "consensusVersion", consensusVersion, "lastProcessingRefSlot", lastProcessingRefSlot)
	batch.EmitTo(o.sink)
	return nil
}

// checkOracleMigration makes sure the committee continues exactly where the
// legacy oracle stopped and returns the ref slot of its last report.
func (o *AccountingOracle) checkOracleMigration(c ConsensusContract) (uint64, error) {
	chain := c.ChainConfig()
	fc := c.FrameConfig()
	spec := o.legacy.BeaconSpec()

	if chain.SlotsPerEpoch != spec.SlotsPerEpoch ||
		chain.SecondsPerSlot != spec.SecondsPerSlot ||
		chain.GenesisTime != spec.GenesisTime {
		return 0, &MigrationError{Code: MigrationChainConfigMismatch}
	}
	if fc.EpochsPerFrame != spec.EpochsPerFrame {
		return 0, &MigrationError{Code: MigrationFrameSizeMismatch}
	}
	last := o.legacy.LastCompletedEpoch()
	if fc.InitialEpoch != last+fc.EpochsPerFrame {
		return 0, &MigrationError{Code: MigrationInitialEpochMisaligned}
	}
	return last * chain.SlotsPerEpoch, nil
}

// handleConsensusReport warns when the extra data of the last processed
// report was left unfinished.
func (o *AccountingOracle) handleConsensusReport(_ ConsensusReport, _, prevProcessingRefSlot uint64, batch *events.Batch) {
	st := o.extra
	if !o.hasExtra || st.RefSlot != prevProcessingRefSlot {
		return
	}
	if !st.Submitted || st.ItemsProcessed < st.ItemsCount {
		batch.Add(events.WarnExtraDataIncompleteProcessing{
			RefSlot:        prevProcessingRefSlot,
			ProcessedItems: st.ItemsProcessed,
			ItemsCount:     st.ItemsCount,
		})
	}
}

// SubmitReportData applies the main report of the current consensus report.
// Everything is validated, and every collaborator accepts the report, before
// the first collaborator applies anything. A rejection leaves the oracle and
// the collaborators as they were.
func (o *AccountingOracle) SubmitReportData(caller common.Address, data ReportData, contractVersion uint64) error {
	if err := o.checkSenderIsAllowedToSubmitData(caller); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	hash := data.Hash()

	o.mu.Lock()
	defer o.mu.Unlock()

	if contractVersion != o.contractVersion {
		return expectedGot(ErrUnexpectedContractVersion, o.contractVersion, contractVersion)
	}
	if err := o.checkConsensusData(data.RefSlot, data.ConsensusVersion, hash); err != nil {
		return err
	}
	if err := checkExitedValidators(&data); err != nil {
		return err
	}
	if err := checkExtraDataHeader(&data); err != nil {
		return err
	}
	if err := o.checkProcessingDeadline(); err != nil {
		return err
	}

	prevRefSlot := o.lastProcessingRefSlot
	report := o.accountingReport(&data, prevRefSlot)
	if err := o.checkReportSanity(&data, report, prevRefSlot); err != nil {
		return err
	}
	if err := o.checkCollaborators(&data, report, prevRefSlot); err != nil {
		return err
	}

	var batch events.Batch
	if _, err := o.startProcessing(&batch); err != nil {
		return err
	}
	if err := o.applyMainReport(&data, report, prevRefSlot); err != nil {
		o.lastProcessingRefSlot = prevRefSlot
		return err
	}

	o.extra = ExtraDataProcessingState{
		RefSlot:    data.RefSlot,
		DataFormat: data.ExtraDataFormat,
		DataHash:   data.ExtraDataHash,
		ItemsCount: data.ExtraDataItemsCount,
	}
	o.hasExtra = true
	batch.Add(events.MainDataApplied{
		RefSlot:       data.RefSlot,
		NumValidators: data.NumValidators,
		ClBalanceWei:  report.ClBalance,
		IsBunkerMode:  data.IsBunkerMode,
		ExtraDataFmt:  data.ExtraDataFormat,
		ExtraDataHash: data.ExtraDataHash,
		ExtraDataSize: data.ExtraDataItemsCount,
	})

	o.log.Info("Main report processed", "refSlot", data.RefSlot, "validators", data.NumValidators,
		"clBalanceGwei", data.ClBalanceGwei, "bunker", data.IsBunkerMode, "extraItems", data.ExtraDataItemsCount)
	batch.EmitTo(o.sink)
	return nil
}

func checkExitedValidators(data *ReportData) error {
	ids := data.StakingModuleIdsWithNewlyExitedValidators
	counts := data.NumExitedValidatorsByStakingModule
	if len(ids) != len(counts) {
		return fmt.Errorf("%w: %d module ids, %d counts", ErrInvalidExitedValidatorsData, len(ids), len(counts))
	}
	for i := range ids {
		if i > 0 && ids[i] <= ids[i-1] {
			return fmt.Errorf("%w: module ids not strictly increasing at %d", ErrInvalidExitedValidatorsData, i)
		}
		if counts[i] == 0 {
			return fmt.Errorf("%w: zero exited count for module %d", ErrInvalidExitedValidatorsData, ids[i])
		}
	}
	return nil
}

func checkExtraDataHeader(data *ReportData) error {
	switch data.ExtraDataFormat {
	case extradata.FormatEmpty:
		if data.ExtraDataHash != (common.Hash{}) {
			return expectedGot(ErrUnexpectedExtraDataHash, common.Hash{}.Hex(), data.ExtraDataHash.Hex())
		}
		if data.ExtraDataItemsCount != 0 {
			return expectedGot(ErrUnexpectedExtraDataItemsCount, 0, data.ExtraDataItemsCount)
		}
	case extradata.FormatList:
		if data.ExtraDataItemsCount == 0 {
			return ErrExtraDataItemsCountCannotBeZeroForNonEmptyData
		}
		if data.ExtraDataHash == (common.Hash{}) {
			return ErrExtraDataHashCannotBeZeroForNonEmptyData
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedExtraDataFormat, data.ExtraDataFormat)
	}
	return nil
}

func (o *AccountingOracle) accountingReport(data *ReportData, prevRefSlot uint64) AccountingReport {
	return AccountingReport{
		RefSlot:                       data.RefSlot,
		Timestamp:                     o.slotTimestamp(data.RefSlot),
		TimeElapsed:                   (data.RefSlot - prevRefSlot) * o.chain.SecondsPerSlot,
		ClValidators:                  data.NumValidators,
		ClBalance:                     data.ClBalanceWei(),
		WithdrawalVaultBalance:        orZero(data.WithdrawalVaultBalance),
		ElRewardsVaultBalance:         orZero(data.ElRewardsVaultBalance),
		SharesRequestedToBurn:         orZero(data.SharesRequestedToBurn),
		WithdrawalFinalizationBatches: data.WithdrawalFinalizationBatches,
		SimulatedShareRate:            orZero(data.SimulatedShareRate),
	}
}

func (o *AccountingOracle) checkReportSanity(data *ReportData, report AccountingReport, prevRefSlot uint64) error {
	if ids := data.StakingModuleIdsWithNewlyExitedValidators; len(ids) != 0 {
		newlyExited, err := o.registry.NewlyExitedValidatorsCount(ids, data.NumExitedValidatorsByStakingModule)
		if err != nil {
			return fmt.Errorf("exited validators preview: %w", err)
		}
		elapsed := (data.RefSlot - prevRefSlot) * o.chain.SecondsPerSlot
		if err := o.sanity.CheckExitedValidatorsRatePerDay(newlyExited * secondsPerDay / elapsed); err != nil {
			return err
		}
	}
	return o.sanity.CheckAccountingReport(report)
}

// checkCollaborators asks every collaborator whether it accepts the report.
// Nothing is applied until all of them did. The registry was already asked
// through NewlyExitedValidatorsCount.
func (o *AccountingOracle) checkCollaborators(data *ReportData, report AccountingReport, prevRefSlot uint64) error {
	if o.legacy != nil {
		if err := o.legacy.CheckLegacyReport(data.RefSlot, report.ClBalance, data.NumValidators); err != nil {
			return fmt.Errorf("legacy oracle: %w", err)
		}
	}
	if err := o.withdrawal.CheckOnReport(data.IsBunkerMode, o.slotTimestamp(prevRefSlot), report.Timestamp); err != nil {
		return fmt.Errorf("withdrawal queue: %w", err)
	}
	if err := o.balance.CheckReport(report); err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	return nil
}

// applyMainReport must follow a successful checkCollaborators. An error here
// means a collaborator broke its contract, and the calls made before it stay
// applied.
func (o *AccountingOracle) applyMainReport(data *ReportData, report AccountingReport, prevRefSlot uint64) error {
	if o.legacy != nil {
		if err := o.legacy.OnLegacyReport(data.RefSlot, report.ClBalance, data.NumValidators); err != nil {
			return fmt.Errorf("legacy oracle: %w", err)
		}
	}
	if ids := data.StakingModuleIdsWithNewlyExitedValidators; len(ids) != 0 {
		if err := o.registry.UpdateExitedCounts(ids, data.NumExitedValidatorsByStakingModule); err != nil {
			return fmt.Errorf("module registry: %w", err)
		}
	}
	if err := o.withdrawal.OnReport(data.IsBunkerMode, o.slotTimestamp(prevRefSlot), report.Timestamp); err != nil {
		return fmt.Errorf("withdrawal queue: %w", err)
	}
	if err := o.balance.ApplyReport(report); err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	return nil
}

// ProcessingState describes how far the current frame's report got.
type ProcessingState struct {
	CurrentFrameRefSlot     uint64
	ProcessingDeadlineTime  uint64
	MainDataHash            common.Hash
	MainDataSubmitted       bool
	ExtraDataHash           common.Hash
	ExtraDataFormat         uint64
	ExtraDataSubmitted      bool
	ExtraDataItemsCount     uint64
	ExtraDataItemsSubmitted uint64
}

// ProcessingState is zero apart from CurrentFrameRefSlot until a report for
// the current frame reaches consensus.
func (o *AccountingOracle) ProcessingState() (ProcessingState, error) {
	c := o.ConsensusContract()
	if c == nil {
		return ProcessingState{}, ErrAddressCannotBeZero
	}
	f, err := c.CurrentFrame()
	if err != nil {
		return ProcessingState{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	res := ProcessingState{CurrentFrameRefSlot: f.RefSlot}
	if o.report.RefSlot != f.RefSlot || o.report.Hash == (common.Hash{}) {
		return res, nil
	}
	res.ProcessingDeadlineTime = o.report.ProcessingDeadlineTime
	res.MainDataHash = o.report.Hash
	res.MainDataSubmitted = o.lastProcessingRefSlot == f.RefSlot
	if !res.MainDataSubmitted || !o.hasExtra || o.extra.RefSlot != f.RefSlot {
		return res, nil
	}
	res.ExtraDataHash = o.extra.DataHash
	res.ExtraDataFormat = o.extra.DataFormat
	res.ExtraDataSubmitted = o.extra.Submitted
	res.ExtraDataItemsCount = o.extra.ItemsCount
	res.ExtraDataItemsSubmitted = o.extra.ItemsProcessed
	return res, nil
}
