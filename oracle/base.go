package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
)

// reportHandler is run by BaseOracle, under its lock, every time a
// consensus report is accepted.
type reportHandler interface {
	handleConsensusReport(report ConsensusReport, prevSubmittedRefSlot, prevProcessingRefSlot uint64, batch *events.Batch)
}

// BaseOracle receives consensus reports from the bound committee and tracks
// which of them has started processing. It knows nothing about the report
// contents.
type BaseOracle struct {
	address         common.Address
	chain           frame.ChainConfig
	contractVersion uint64

	time frame.TimeSource
	auth access.Authorizer
	sink events.Sink
	log  log.Logger

	handler reportHandler

	mu                    sync.Mutex
	consensus             ConsensusContract
	consensusVersion      uint64
	report                ConsensusReport
	lastProcessingRefSlot uint64
}

func newBaseOracle(cfg *Config, handler reportHandler) *BaseOracle {
	return &BaseOracle{
		address:         cfg.Address,
		chain:           cfg.Chain,
		contractVersion: cfg.ContractVersion,
		time:            cfg.Time,
		auth:            cfg.Auth,
		sink:            cfg.Sink,
		log:             cfg.Logger,
		handler:         handler,
	}
}

// Address is the identity the oracle is known by.
func (o *BaseOracle) Address() common.Address {
	return o.address
}

func (o *BaseOracle) ContractVersion() uint64 {
	return o.contractVersion
}

func (o *BaseOracle) ConsensusVersion() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consensusVersion
}

// ConsensusContract returns the bound committee, nil before Initialize.
func (o *BaseOracle) ConsensusContract() ConsensusContract {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consensus
}

// ConsensusReport returns the last accepted consensus report.
func (o *BaseOracle) ConsensusReport() ConsensusReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report
}

// LastProcessingRefSlot is the ref slot of the last report whose processing
// started. It never decreases.
func (o *BaseOracle) LastProcessingRefSlot() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastProcessingRefSlot
}

// SetConsensusContract rebinds the oracle to another committee. The new
// committee must share the oracle's chain config and must not start before
// the last processing ref slot.
func (o *BaseOracle) SetConsensusContract(caller common.Address, c ConsensusContract) error {
	if err := access.Check(o.auth, access.ManageConsensusContractRole, caller); err != nil {
		return err
	}
	b := bindingOf(c)

	o.mu.Lock()
	defer o.mu.Unlock()

	var batch events.Batch
	if err := o.setConsensusContract(b, o.lastProcessingRefSlot, &batch); err != nil {
		return err
	}
	batch.EmitTo(o.sink)
	return nil
}

// consensusBinding is what the oracle reads from a committee before binding
// to it. It is collected before taking the lock.
type consensusBinding struct {
	contract       ConsensusContract
	address        common.Address
	chain          frame.ChainConfig
	initialRefSlot uint64
}

func bindingOf(c ConsensusContract) consensusBinding {
	if c == nil {
		return consensusBinding{}
	}
	return consensusBinding{
		contract:       c,
		address:        c.Address(),
		chain:          c.ChainConfig(),
		initialRefSlot: c.InitialRefSlot(),
	}
}

func (o *BaseOracle) setConsensusContract(b consensusBinding, lastProcessingRefSlot uint64, batch *events.Batch) error {
	if b.contract == nil || b.address == (common.Address{}) {
		return ErrAddressCannotBeZero
	}
	var prev common.Address
	if o.consensus != nil {
		prev = o.consensus.Address()
	}
	if b.address == prev {
		return ErrAddressCannotBeSame
	}
	if b.chain != o.chain {
		return expectedGot(ErrUnexpectedChainConfig, o.chain, b.chain)
	}
	if b.initialRefSlot != 0 && b.initialRefSlot < lastProcessingRefSlot {
		return expectedGot(ErrInitialRefSlotCannotBeLessThanProcessingOne, lastProcessingRefSlot, b.initialRefSlot)
	}
	o.consensus = b.contract
	batch.Add(events.ConsensusHashContractSet{Address: b.address, PrevAddress: prev})
	return nil
}

// SetConsensusVersion changes the report format version members must vote
// for.
func (o *BaseOracle) SetConsensusVersion(caller common.Address, version uint64) error {
	if err := access.Check(o.auth, access.ManageConsensusVersionRole, caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var batch events.Batch
	if err := o.setConsensusVersion(version, &batch); err != nil {
		return err
	}
	batch.EmitTo(o.sink)
	return nil
}

func (o *BaseOracle) setConsensusVersion(version uint64, batch *events.Batch) error {
	if version == o.consensusVersion {
		return ErrVersionCannotBeSame
	}
	batch.Add(events.ConsensusVersionSet{Version: version, PrevVersion: o.consensusVersion})
	o.consensusVersion = version
	return nil
}

// SubmitConsensusReport is called by the bound committee when a report
// reaches consensus, and again when a different report reaches consensus for
// the same slot. The committee calls it with its own lock held, so nothing
// here may call back into the committee except the lock-free Address.
func (o *BaseOracle) SubmitConsensusReport(sender common.Address, hash common.Hash, refSlot, deadline uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.consensus == nil || sender != o.consensus.Address() {
		return ErrSenderIsNotTheConsensusContract
	}
	if hash == (common.Hash{}) {
		return ErrHashCannotBeZero
	}
	prevSubmittedRefSlot := o.report.RefSlot
	if refSlot < prevSubmittedRefSlot {
		return expectedGot(ErrRefSlotCannotDecrease, prevSubmittedRefSlot, refSlot)
	}
	prevProcessingRefSlot := o.lastProcessingRefSlot
	if refSlot <= prevProcessingRefSlot {
		return expectedGot(ErrRefSlotMustBeGreaterThanProcessingOne, prevProcessingRefSlot, refSlot)
	}
	if now := o.time.Now(); now > deadline {
		return expectedGot(ErrProcessingDeadlineMissed, deadline, now)
	}

	var batch events.Batch
	if refSlot != prevSubmittedRefSlot && prevProcessingRefSlot != prevSubmittedRefSlot {
		batch.Add(events.WarnProcessingMissed{RefSlot: prevSubmittedRefSlot})
	}
	if refSlot == prevSubmittedRefSlot && o.report.Hash != (common.Hash{}) && o.report.Hash != hash {
		batch.Add(events.ReportDiscarded{RefSlot: refSlot, Hash: o.report.Hash})
	}

	o.report = ConsensusReport{Hash: hash, RefSlot: refSlot, ProcessingDeadlineTime: deadline}
	batch.Add(events.ReportSubmitted{RefSlot: refSlot, Hash: hash, ProcessingDeadlineTime: deadline})
	o.handler.handleConsensusReport(o.report, prevSubmittedRefSlot, prevProcessingRefSlot, &batch)

	o.log.Debug("Consensus report accepted", "refSlot", refSlot, "hash", hash, "deadline", deadline)
	batch.EmitTo(o.sink)
	return nil
}

// checkConsensusData matches a submission against the stored report.
// Called with the lock held.
func (o *BaseOracle) checkConsensusData(refSlot, consensusVersion uint64, hash common.Hash) error {
	if consensusVersion != o.consensusVersion {
		return expectedGot(ErrUnexpectedConsensusVersion, o.consensusVersion, consensusVersion)
	}
	if refSlot != o.report.RefSlot {
		return expectedGot(ErrUnexpectedRefSlot, o.report.RefSlot, refSlot)
	}
	if err := o.checkCanStartProcessing(); err != nil {
		return err
	}
	if hash != o.report.Hash {
		return expectedGot(ErrUnexpectedDataHash, o.report.Hash.Hex(), hash.Hex())
	}
	return nil
}

func (o *BaseOracle) checkCanStartProcessing() error {
	if o.report.Hash == (common.Hash{}) {
		return ErrNoConsensusReportToProcess
	}
	if o.lastProcessingRefSlot == o.report.RefSlot {
		return ErrRefSlotAlreadyProcessing
	}
	return nil
}

func (o *BaseOracle) checkProcessingDeadline() error {
	if now := o.time.Now(); now > o.report.ProcessingDeadlineTime {
		return expectedGot(ErrProcessingDeadlineMissed, o.report.ProcessingDeadlineTime, now)
	}
	return nil
}

// startProcessing marks the stored report as processing and returns the
// previous processing ref slot. Called with the lock held, after
// checkConsensusData.
func (o *BaseOracle) startProcessing(batch *events.Batch) (uint64, error) {
	if err := o.checkCanStartProcessing(); err != nil {
		return 0, err
	}
	if err := o.checkProcessingDeadline(); err != nil {
		return 0, err
	}
	prev := o.lastProcessingRefSlot
	o.lastProcessingRefSlot = o.report.RefSlot
	batch.Add(events.ProcessingStarted{RefSlot: o.report.RefSlot, Hash: o.report.Hash})
	return prev, nil
}

// isConsensusMember asks the bound committee. Must be called without the
// lock held.
func (o *BaseOracle) isConsensusMember(addr common.Address) bool {
	c := o.ConsensusContract()
	return c != nil && c.IsMember(addr)
}

// checkSenderIsAllowedToSubmitData passes data submitters and committee
// members. Must be called without the lock held.
func (o *BaseOracle) checkSenderIsAllowedToSubmitData(caller common.Address) error {
	if o.auth != nil && o.auth.HasRole(access.SubmitDataRole, caller) {
		return nil
	}
	if o.isConsensusMember(caller) {
		return nil
	}
	return ErrSenderNotAllowed
}

func (o *BaseOracle) slotTimestamp(slot uint64) uint64 {
	return o.chain.GenesisTime + slot*o.chain.SecondsPerSlot
}
