package oracle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/consensus"
	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
)

// One slot per epoch, 100 epochs per frame: frame 1 has ref slot 100 and
// deadline slot 200, frame 2 has ref slot 200.
var (
	testChain = frame.ChainConfig{SlotsPerEpoch: 1, SecondsPerSlot: 12, GenesisTime: 1000}
	testFrame = frame.FrameConfig{InitialEpoch: 1, EpochsPerFrame: 100}

	admin         = common.HexToAddress("0xad")
	member        = common.HexToAddress("0x100")
	stranger      = common.HexToAddress("0xbad")
	committeeAddr = common.HexToAddress("0xc0")
	oracleAddr    = common.HexToAddress("0x0a")

	errFake = errors.New("collaborator failure")
)

// Fakes reject at the check step with checkErr and fail the apply step with
// err.
type fakeBalance struct {
	reports  []AccountingReport
	checkErr error
	err      error
}

func (b *fakeBalance) CheckReport(AccountingReport) error {
	return b.checkErr
}

func (b *fakeBalance) ApplyReport(r AccountingReport) error {
	if b.err != nil {
		return b.err
	}
	b.reports = append(b.reports, r)
	return nil
}

type fakeRegistry struct {
	exited   map[uint64]uint64
	items    []extradata.Item
	finished int
	checkErr error
	err      error
}

func (r *fakeRegistry) NewlyExitedValidatorsCount(ids, counts []uint64) (uint64, error) {
	if r.checkErr != nil {
		return 0, r.checkErr
	}
	var n uint64
	for i, id := range ids {
		if counts[i] > r.exited[id] {
			n += counts[i] - r.exited[id]
		}
	}
	return n, nil
}

func (r *fakeRegistry) UpdateExitedCounts(ids, counts []uint64) error {
	if r.err != nil {
		return r.err
	}
	for i, id := range ids {
		r.exited[id] = counts[i]
	}
	return nil
}

func (r *fakeRegistry) ApplyExtraDataItem(it extradata.Item) error {
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, it)
	return nil
}

func (r *fakeRegistry) OnExtraDataReportingFinished() error {
	if r.err != nil {
		return r.err
	}
	r.finished++
	return nil
}

type withdrawalCall struct {
	bunker    bool
	prev, cur uint64
}

type fakeWithdrawal struct {
	calls    []withdrawalCall
	checkErr error
}

func (w *fakeWithdrawal) CheckOnReport(bool, uint64, uint64) error {
	return w.checkErr
}

func (w *fakeWithdrawal) OnReport(bunker bool, prev, cur uint64) error {
	w.calls = append(w.calls, withdrawalCall{bunker, prev, cur})
	return nil
}

var errSanity = errors.New("sanity check failed")

// fakeSanity enforces only the limits that are set.
type fakeSanity struct {
	maxRate       uint64
	maxItemsPerTx uint64
	maxNodeOps    uint64
	reportErr     error
	rates         []uint64
}

func (s *fakeSanity) CheckAccountingReport(AccountingReport) error {
	return s.reportErr
}

func (s *fakeSanity) CheckExitedValidatorsRatePerDay(rate uint64) error {
	s.rates = append(s.rates, rate)
	if s.maxRate != 0 && rate > s.maxRate {
		return errSanity
	}
	return nil
}

func (s *fakeSanity) CheckExtraDataItemsCountPerTransaction(n uint64) error {
	if s.maxItemsPerTx != 0 && n > s.maxItemsPerTx {
		return errSanity
	}
	return nil
}

func (s *fakeSanity) CheckNodeOperatorsPerExtraDataItemCount(_, n uint64) error {
	if s.maxNodeOps != 0 && n > s.maxNodeOps {
		return errSanity
	}
	return nil
}

type fakeLegacy struct {
	spec     LegacyBeaconSpec
	last     uint64
	reports  []uint64
	checkErr error
}

func (l *fakeLegacy) CheckLegacyReport(uint64, *big.Int, uint64) error {
	return l.checkErr
}

func (l *fakeLegacy) OnLegacyReport(refSlot uint64, _ *big.Int, _ uint64) error {
	l.reports = append(l.reports, refSlot)
	return nil
}
func (l *fakeLegacy) BeaconSpec() LegacyBeaconSpec { return l.spec }
func (l *fakeLegacy) LastCompletedEpoch() uint64   { return l.last }

type oracleEnv struct {
	t          *testing.T
	o          *AccountingOracle
	c          *consensus.HashConsensus
	auth       *access.RoleTable
	clock      *frame.ManualTime
	sched      frame.Schedule
	rec        *events.Recorder
	balance    *fakeBalance
	registry   *fakeRegistry
	withdrawal *fakeWithdrawal
	sanity     *fakeSanity
}

// newOracleEnv builds an oracle bound to a single member committee with
// quorum 1, so every vote reaches consensus. The clock is at slot 150.
func newOracleEnv(t *testing.T) *oracleEnv {
	env := &oracleEnv{
		t:          t,
		auth:       access.NewAdminTable(admin),
		sched:      frame.Schedule{Chain: testChain, Frame: testFrame},
		rec:        events.NewRecorder(),
		balance:    &fakeBalance{},
		registry:   &fakeRegistry{exited: map[uint64]uint64{}},
		withdrawal: &fakeWithdrawal{},
		sanity:     &fakeSanity{},
	}
	env.clock = frame.NewManualTime(0)
	env.clock.AdvanceToSlot(env.sched, 150)

	o, err := NewAccountingOracle(Config{
		Address:    oracleAddr,
		Chain:      testChain,
		Time:       env.clock,
		Auth:       env.auth,
		Sink:       env.rec,
		Balance:    env.balance,
		Registry:   env.registry,
		Withdrawal: env.withdrawal,
		Sanity:     env.sanity,
	})
	require.NoError(t, err)
	env.o = o

	env.c = env.newCommittee(committeeAddr, testFrame)
	require.NoError(t, o.Initialize(env.c, 1, 0))
	env.rec.Reset()
	return env
}

func (env *oracleEnv) newCommittee(addr common.Address, fc frame.FrameConfig) *consensus.HashConsensus {
	c, err := consensus.New(consensus.Config{
		Address:   addr,
		Chain:     testChain,
		Frame:     fc,
		Time:      env.clock,
		Auth:      env.auth,
		Sink:      env.rec,
		Processor: env.o,
	})
	require.NoError(env.t, err)
	require.NoError(env.t, c.AddMember(admin, member, 1))
	return c
}

// agree makes the committee agree on data.
func (env *oracleEnv) agree(data ReportData) {
	require.NoError(env.t, env.c.SubmitVote(member, data.RefSlot, data.Hash(), data.ConsensusVersion))
}

func (env *oracleEnv) submit(data ReportData) error {
	return env.o.SubmitReportData(member, data, DefaultContractVersion)
}

func testReport(refSlot uint64) ReportData {
	return ReportData{
		ConsensusVersion:       1,
		RefSlot:                refSlot,
		NumValidators:          10,
		ClBalanceGwei:          320_000_000_000,
		WithdrawalVaultBalance: big.NewInt(1e18),
		ElRewardsVaultBalance:  big.NewInt(2e18),
		SharesRequestedToBurn:  big.NewInt(0),
		SimulatedShareRate:     big.NewInt(1e9),
		ExtraDataFormat:        extradata.FormatEmpty,
	}
}

func testItems() []extradata.Item {
	return []extradata.Item{
		{Index: 0, Type: extradata.TypeStuckValidators, ModuleID: 1, NodeOperatorIDs: []uint64{0}, KeyCounts: []uint64{1}},
		{Index: 1, Type: extradata.TypeStuckValidators, ModuleID: 2, NodeOperatorIDs: []uint64{0, 3}, KeyCounts: []uint64{2, 1}},
		{Index: 2, Type: extradata.TypeExitedValidators, ModuleID: 1, NodeOperatorIDs: []uint64{1}, KeyCounts: []uint64{4}},
		{Index: 3, Type: extradata.TypeExitedValidators, ModuleID: 2, NodeOperatorIDs: []uint64{0, 1, 2}, KeyCounts: []uint64{1, 1, 2}},
		{Index: 4, Type: extradata.TypeExitedValidators, ModuleID: 3, NodeOperatorIDs: []uint64{7}, KeyCounts: []uint64{3}},
	}
}

// listReport returns a report committing to items split into chunks of
// perChunk, and the chunks.
func listReport(t *testing.T, refSlot uint64, items []extradata.Item, declared uint64, perChunk int) (ReportData, [][]byte) {
	chunks, first, err := extradata.EncodeChunks(items, perChunk)
	require.NoError(t, err)
	data := testReport(refSlot)
	data.ExtraDataFormat = extradata.FormatList
	data.ExtraDataHash = first
	data.ExtraDataItemsCount = declared
	return data, chunks
}
