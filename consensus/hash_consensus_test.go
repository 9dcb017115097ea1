package consensus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
)

// One slot per epoch and 100 epochs per frame: frame 1 starts at slot 101,
// its ref slot is 100 and its deadline slot is 200.
var (
	testChain = frame.ChainConfig{SlotsPerEpoch: 1, SecondsPerSlot: 12, GenesisTime: 1000}
	testFrame = frame.FrameConfig{InitialEpoch: 1, EpochsPerFrame: 100}

	admin         = common.HexToAddress("0xad")
	committeeAddr = common.HexToAddress("0xc0")

	hashH  = common.HexToHash("0x01")
	hashH2 = common.HexToHash("0x02")
)

type submitted struct {
	sender   common.Address
	hash     common.Hash
	refSlot  uint64
	deadline uint64
}

type fakeProcessor struct {
	addr    common.Address
	version uint64
	last    uint64
	reports []submitted
	err     error
}

func newFakeProcessor(addr string) *fakeProcessor {
	return &fakeProcessor{addr: common.HexToAddress(addr), version: 1}
}

func (p *fakeProcessor) Address() common.Address       { return p.addr }
func (p *fakeProcessor) LastProcessingRefSlot() uint64 { return p.last }
func (p *fakeProcessor) ConsensusVersion() uint64      { return p.version }

func (p *fakeProcessor) SubmitConsensusReport(sender common.Address, hash common.Hash, refSlot, deadline uint64) error {
	if p.err != nil {
		return p.err
	}
	p.reports = append(p.reports, submitted{sender, hash, refSlot, deadline})
	return nil
}

type testEnv struct {
	c       *HashConsensus
	p       *fakeProcessor
	clock   *frame.ManualTime
	rec     *events.Recorder
	sched   frame.Schedule
	members []common.Address
}

func newTestEnv(t *testing.T, members int, quorum uint64, fc frame.FrameConfig) *testEnv {
	env := &testEnv{
		p:     newFakeProcessor("0x0a"),
		rec:   events.NewRecorder(),
		sched: frame.Schedule{Chain: testChain, Frame: fc},
	}
	env.clock = frame.NewManualTime(testChain.GenesisTime)
	env.clock.AdvanceToSlot(env.sched, 150)

	c, err := New(Config{
		Address:   committeeAddr,
		Chain:     testChain,
		Frame:     fc,
		Time:      env.clock,
		Auth:      access.NewAdminTable(admin),
		Sink:      env.rec,
		Processor: env.p,
	})
	require.NoError(t, err)
	env.c = c

	for i := 0; i < members; i++ {
		addr := common.HexToAddress(fmt.Sprintf("0x%x", 0x100+i))
		require.NoError(t, c.AddMember(admin, addr, quorum))
		env.members = append(env.members, addr)
	}
	env.rec.Reset()
	return env
}

func (env *testEnv) vote(i int, refSlot uint64, hash common.Hash) error {
	return env.c.SubmitVote(env.members[i], refSlot, hash, 1)
}

func (env *testEnv) deadline(refSlot uint64) uint64 {
	return env.sched.TimestampAtSlot(refSlot + env.sched.SlotsPerFrame())
}

func TestNew_validates(t *testing.T) {
	_, err := New(Config{Chain: frame.ChainConfig{SlotsPerEpoch: 1}, Frame: testFrame})
	require.ErrorIs(t, err, frame.ErrSecondsPerSlotCannotBeZero)

	_, err = New(Config{Chain: testChain, Frame: frame.FrameConfig{InitialEpoch: 1}})
	require.ErrorIs(t, err, frame.ErrEpochsPerFrameCannotBeZero)

	_, err = New(Config{Chain: testChain, Frame: frame.FrameConfig{EpochsPerFrame: 1, FastLaneLengthSlots: 2}})
	require.ErrorIs(t, err, frame.ErrFastLanePeriodCannotBeLongerThanFrame)
}

func TestSubmitVote_quorumOfTwo(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)

	require.NoError(env.vote(0, 100, hashH))
	require.Empty(env.p.reports)

	require.NoError(env.vote(1, 100, hashH))
	require.Equal([]submitted{{committeeAddr, hashH, 100, env.deadline(100)}}, env.p.reports)

	// a late dissenting vote changes nothing
	require.NoError(env.vote(2, 100, hashH2))
	require.Len(env.p.reports, 1)

	state, err := env.c.ConsensusState()
	require.NoError(err)
	require.Equal(ConsensusState{RefSlot: 100, ConsensusReport: hashH}, state)
	require.Equal([]ReportVariant{{hashH, 2}, {hashH2, 1}}, env.c.ReportVariants())

	require.Len(env.rec.Named("ReportReceived"), 3)
	require.Equal([]events.Event{events.ConsensusReached{RefSlot: 100, Report: hashH, Support: 2}}, env.rec.Named("ConsensusReached"))
}

func TestSubmitVote_errors(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)

	require.ErrorIs(env.c.SubmitVote(env.members[0], 100, hashH, 2), ErrUnexpectedConsensusVersion)
	require.ErrorIs(env.c.SubmitVote(common.HexToAddress("0xbad"), 100, hashH, 1), ErrNonMember)
	require.ErrorIs(env.vote(0, 100, common.Hash{}), ErrEmptyReport)
	require.ErrorIs(env.vote(0, 99, hashH), ErrInvalidSlot)
	require.ErrorIs(env.vote(0, 200, hashH), ErrInvalidSlot)

	require.NoError(env.vote(0, 100, hashH))
	require.ErrorIs(env.vote(0, 100, hashH), ErrDuplicateReport)

	env.p.last = 100
	require.ErrorIs(env.vote(1, 100, hashH), ErrRefSlotMustBeGreaterThanProcessingOne)

	env.p.last = 0
	require.NoError(env.vote(1, 100, hashH))
	env.p.last = 100
	require.ErrorIs(env.vote(2, 100, hashH), ErrConsensusReportAlreadyProcessing)

	env.clock.Set(testChain.GenesisTime)
	require.ErrorIs(env.vote(2, 0, hashH), frame.ErrInitialEpochIsYetToArrive)

	env2 := newTestEnv(t, 1, 1, testFrame)
	env2.c.st.processor = nil
	require.ErrorIs(env2.vote(0, 100, hashH), ErrReportProcessorCannotBeZero)
}

func TestSubmitVote_processorRejects(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)
	rejection := errors.New("rejected")

	require.NoError(env.vote(0, 100, hashH))
	env.p.err = rejection
	require.ErrorIs(env.vote(1, 100, hashH), rejection)

	// the failed vote left no trace
	require.Equal([]ReportVariant{{hashH, 1}}, env.c.ReportVariants())
	state, err := env.c.ConsensusState()
	require.NoError(err)
	require.Equal(common.Hash{}, state.ConsensusReport)
	require.Len(env.rec.Events(), 1)

	env.p.err = nil
	require.NoError(env.vote(1, 100, hashH))
	require.Len(env.p.reports, 1)
}

func TestSubmitVote_changeVote(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)

	require.NoError(env.vote(0, 100, hashH))
	require.NoError(env.vote(1, 100, hashH))
	require.Equal(hashH, env.p.reports[0].hash)

	require.NoError(env.vote(0, 100, hashH2))
	require.Equal([]ReportVariant{{hashH, 1}, {hashH2, 1}}, env.c.ReportVariants())
	require.Len(env.p.reports, 1, "consensus is not revoked")
	state, err := env.c.ConsensusState()
	require.NoError(err)
	require.Equal(hashH, state.ConsensusReport)

	// a different hash reaching quorum replaces the report
	require.NoError(env.vote(1, 100, hashH2))
	require.Len(env.p.reports, 2)
	require.Equal(hashH2, env.p.reports[1].hash)
	require.Equal(uint64(100), env.p.reports[1].refSlot)
}

func TestSubmitVote_nextFrameResetsVariants(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)

	require.NoError(env.vote(0, 100, hashH))
	env.clock.AdvanceToSlot(env.sched, 250)
	require.ErrorIs(env.vote(1, 100, hashH), ErrInvalidSlot)
	require.NoError(env.vote(1, 200, hashH2))
	require.Equal([]ReportVariant{{hashH2, 1}}, env.c.ReportVariants())
}

func TestSubmitVote_deadlineSlot(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)

	// the deadline slot is the last one of the frame
	env.clock.AdvanceToSlot(env.sched, 200)
	require.NoError(env.vote(0, 100, hashH))

	// one slot later the frame has moved on and a vote for 100 is late
	env.clock.AdvanceToSlot(env.sched, 201)
	require.ErrorIs(env.vote(1, 100, hashH), ErrInvalidSlot)
	require.Empty(env.p.reports)
}

func TestQuorum_monotonicity(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 3, testFrame)

	require.NoError(env.vote(0, 100, hashH))
	require.NoError(env.vote(1, 100, hashH))
	require.Empty(env.p.reports)
	env.rec.Reset()

	// lowering the quorum completes the consensus
	require.NoError(env.c.SetQuorum(admin, 2))
	require.Len(env.p.reports, 1)
	require.Equal(hashH, env.p.reports[0].hash)

	// raising it or removing a voter does not revoke it
	require.NoError(env.c.SetQuorum(admin, 3))
	require.NoError(env.c.RemoveMember(admin, env.members[0], 3))
	require.Len(env.p.reports, 1)
	state, err := env.c.ConsensusState()
	require.NoError(err)
	require.Equal(hashH, state.ConsensusReport)

	require.Equal([]events.Event{
		events.QuorumSet{NewQuorum: 2, TotalMembers: 3, PrevQuorum: 3},
		events.ConsensusReached{RefSlot: 100, Report: hashH, Support: 2},
		events.QuorumSet{NewQuorum: 3, TotalMembers: 3, PrevQuorum: 2},
		events.MemberRemoved{Member: env.members[0], TotalMembers: 2, Quorum: 3},
	}, env.rec.Events())
}

func TestSetQuorum_aboveMembership(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 2, 2, testFrame)

	require.NoError(env.c.SetQuorum(admin, 5))
	require.Equal(uint64(5), env.c.Quorum())
	require.NoError(env.vote(0, 100, hashH))
	require.NoError(env.vote(1, 100, hashH))
	require.Empty(env.p.reports)

	require.ErrorIs(env.c.DisableConsensus(common.HexToAddress("0xbad")), access.ErrAccessDenied)
	require.NoError(env.c.DisableConsensus(admin))
	require.Equal(UnreachableQuorum, env.c.Quorum())
}

func TestQuorum_processorRejectsRecheck(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 3, testFrame)

	require.NoError(env.vote(0, 100, hashH))
	require.NoError(env.vote(1, 100, hashH))
	env.p.err = errors.New("rejected")
	require.Error(env.c.SetQuorum(admin, 2))
	require.Equal(uint64(3), env.c.Quorum())
	require.Empty(env.rec.Named("QuorumSet"))
}

func TestMembers(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 3, 2, testFrame)

	require.ErrorIs(env.c.AddMember(admin, env.members[1], 2), ErrDuplicateMember)
	require.ErrorIs(env.c.AddMember(admin, common.Address{}, 2), ErrAddressCannotBeZero)
	require.ErrorIs(env.c.AddMember(env.members[0], common.HexToAddress("0x1234"), 2), access.ErrAccessDenied)
	require.ErrorIs(env.c.RemoveMember(admin, common.HexToAddress("0x1234"), 2), ErrNonMember)

	require.NoError(env.vote(1, 100, hashH))
	require.NoError(env.c.RemoveMember(admin, env.members[1], 2))
	require.Equal([]common.Address{env.members[0], env.members[2]}, env.c.Members())
	require.Equal([]ReportVariant{{hashH, 0}}, env.c.ReportVariants())
	require.False(env.c.IsMember(env.members[1]))

	// re-added member votes afresh
	require.NoError(env.c.AddMember(admin, env.members[1], 2))
	require.Equal([]common.Address{env.members[0], env.members[2], env.members[1]}, env.c.Members())
	require.NoError(env.c.SubmitVote(env.members[1], 100, hashH, 1))
	require.Equal([]ReportVariant{{hashH, 1}}, env.c.ReportVariants())
}

func TestFastLane_rotation(t *testing.T) {
	require := require.New(t)

	lane := func(frameIndex, total, quorum uint64) []uint64 {
		var res []uint64
		for i := uint64(0); i < total; i++ {
			if isFastLane(i, frameIndex, total, quorum) {
				res = append(res, i)
			}
		}
		return res
	}
	require.Equal([]uint64{0, 1, 2}, lane(0, 5, 3))
	require.Equal([]uint64{1, 2, 3}, lane(1, 5, 3))
	require.Equal([]uint64{0, 3, 4}, lane(3, 5, 3))
	require.Equal([]uint64{0, 1, 4}, lane(4, 5, 3))
	require.Equal([]uint64{0, 1, 2}, lane(5, 5, 3))
	require.Equal([]uint64{0, 1, 2}, lane(7, 3, 3), "quorum covers everyone")
	require.Equal([]uint64{0, 1, 2}, lane(7, 3, 10))
	require.Empty(lane(0, 0, 1))
}

func TestFastLane_voting(t *testing.T) {
	require := require.New(t)
	fc := testFrame
	fc.FastLaneLengthSlots = 10
	env := newTestEnv(t, 3, 2, fc)

	// frame 1: the lane starts at member 1
	env.clock.AdvanceToSlot(env.sched, 105)
	lane, err := env.c.FastLaneMembers()
	require.NoError(err)
	require.Equal([]common.Address{env.members[1], env.members[2]}, lane)
	require.False(env.c.IsFastLaneMember(env.members[0]))

	require.ErrorIs(env.vote(0, 100, hashH), ErrNonFastLaneMemberCannotReportWithinFastLaneInterval)
	require.NoError(env.vote(1, 100, hashH))

	ms, err := env.c.ConsensusStateForMember(env.members[0])
	require.NoError(err)
	require.True(ms.IsMember)
	require.False(ms.IsFastLane)
	require.False(ms.CanReport)

	env.clock.AdvanceToSlot(env.sched, 111)
	ms, err = env.c.ConsensusStateForMember(env.members[0])
	require.NoError(err)
	require.True(ms.CanReport)
	require.NoError(env.vote(0, 100, hashH))

	ms, err = env.c.ConsensusStateForMember(env.members[0])
	require.NoError(err)
	require.Equal(MemberConsensusState{
		CurrentFrameRefSlot:         100,
		CurrentFrameConsensusReport: hashH,
		IsMember:                    true,
		CanReport:                   true,
		LastMemberReportRefSlot:     100,
		CurrentFrameMemberReport:    hashH,
	}, ms)
}

func TestSetFrameConfig(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 1, 1, testFrame)

	require.ErrorIs(env.c.SetFrameConfig(admin, 0, 0), frame.ErrEpochsPerFrameCannotBeZero)
	require.ErrorIs(env.c.SetFrameConfig(admin, 50, 51), frame.ErrFastLanePeriodCannotBeLongerThanFrame)
	require.ErrorIs(env.c.SetFrameConfig(env.members[0], 50, 0), access.ErrAccessDenied)

	// slot 150 is in the frame starting at epoch 101, which becomes frame 0
	require.NoError(env.c.SetFrameConfig(admin, 50, 5))
	require.Equal(frame.FrameConfig{InitialEpoch: 101, EpochsPerFrame: 50, FastLaneLengthSlots: 5}, env.c.FrameConfig())
	f, err := env.c.CurrentFrame()
	require.NoError(err)
	require.Equal(frame.Frame{Index: 0, RefSlot: 100, ReportProcessingDeadlineSlot: 150}, f)

	require.NoError(env.c.SetFastLaneLengthSlots(admin, 7))
	require.Equal(uint64(7), env.c.FrameConfig().FastLaneLengthSlots)
	require.ErrorIs(env.c.SetFastLaneLengthSlots(admin, 51), frame.ErrFastLanePeriodCannotBeLongerThanFrame)

	require.Equal([]events.Event{
		events.FrameConfigSet{NewInitialEpoch: 101, NewEpochsPerFrame: 50},
		events.FastLaneConfigSet{FastLaneLengthSlots: 5},
		events.FastLaneConfigSet{FastLaneLengthSlots: 7},
	}, env.rec.Events())
}

func TestUpdateInitialEpoch(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 1, 1, frame.FrameConfig{InitialEpoch: 300, EpochsPerFrame: 100})

	require.NoError(env.c.UpdateInitialEpoch(admin, 200))
	require.Equal(uint64(199), env.c.InitialRefSlot())

	env.p.last = 250
	require.ErrorIs(env.c.UpdateInitialEpoch(admin, 240), ErrInitialEpochRefSlotCannotBeEarlierThanProcessingSlot)
	require.Equal(uint64(200), env.c.FrameConfig().InitialEpoch)

	env.clock.AdvanceToSlot(env.sched, 200)
	require.ErrorIs(env.c.UpdateInitialEpoch(admin, 260), ErrInitialEpochAlreadyArrived)
}

func TestSetReportProcessor(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, 2, 2, testFrame)

	require.ErrorIs(env.c.SetReportProcessor(admin, nil), ErrReportProcessorCannotBeZero)
	require.ErrorIs(env.c.SetReportProcessor(admin, env.p), ErrNewProcessorCannotBeTheSame)

	require.NoError(env.vote(0, 100, hashH))
	require.NoError(env.vote(1, 100, hashH))

	// the agreed report follows the processor swap
	p2 := newFakeProcessor("0x0b")
	require.NoError(env.c.SetReportProcessor(admin, p2))
	require.Equal([]submitted{{committeeAddr, hashH, 100, env.deadline(100)}}, p2.reports)
	require.Equal(p2, env.c.ReportProcessor())

	// not when the new processor already handles it
	p3 := newFakeProcessor("0x0c")
	p3.last = 100
	require.NoError(env.c.SetReportProcessor(admin, p3))
	require.Empty(p3.reports)

	require.Equal(events.ReportProcessorSet{Processor: p3.addr, PrevProcessor: p2.addr}, env.rec.Named("ReportProcessorSet")[1])
}
