package store

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/rules"
)

func openTemp(t *testing.T, r rules.Rules, clock frame.TimeSource) (*History, string) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := Open(path, r, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, path
}

func TestHistory_appendAndRead(t *testing.T) {
	require := require.New(t)
	clock := frame.NewManualTime(1000)
	h, _ := openTemp(t, rules.FakeNetRules(), clock)

	evs := []events.Event{
		events.MemberAdded{Member: common.HexToAddress("0x1"), TotalMembers: 1, Quorum: 1},
		events.ConsensusReached{RefSlot: 39, Report: common.HexToHash("0xaa"), Support: 1},
		events.MainDataApplied{RefSlot: 39, NumValidators: 10, ClBalanceWei: big.NewInt(32e9), IsBunkerMode: true},
		events.WarnExtraDataIncompleteProcessing{RefSlot: 39, ProcessedItems: 1, ItemsCount: 2},
	}
	for i, ev := range evs {
		clock.Advance(1)
		seq, err := h.Append(ev)
		require.NoError(err)
		require.Equal(uint64(i+1), seq)
	}

	n, err := h.Len()
	require.NoError(err)
	require.Equal(len(evs), n)

	recs, err := h.Records(0, 0)
	require.NoError(err)
	require.Len(recs, len(evs))
	for i, rec := range recs {
		require.Equal(uint64(i+1), rec.Seq)
		require.Equal(uint64(1001+i), rec.Time)
		require.Equal(evs[i].Name(), rec.Name)
		ev, err := rec.Event()
		require.NoError(err)
		require.Equal(evs[i], ev)
	}

	recs, err = h.Records(2, 2)
	require.NoError(err)
	require.Len(recs, 2)
	require.Equal(uint64(2), recs[0].Seq)
	require.Equal(uint64(3), recs[1].Seq)
}

func TestHistory_sink(t *testing.T) {
	require := require.New(t)
	h, _ := openTemp(t, rules.FakeNetRules(), nil)

	bus := events.NewBus()
	require.NoError(bus.SubscribeSink(h))
	bus.Emit(events.QuorumSet{NewQuorum: 2, TotalMembers: 3, PrevQuorum: 1})

	recs, err := h.Records(0, 0)
	require.NoError(err)
	require.Len(recs, 1)
	ev, err := recs[0].Event()
	require.NoError(err)
	require.Equal(events.QuorumSet{NewQuorum: 2, TotalMembers: 3, PrevQuorum: 1}, ev)
}

func TestHistory_reopen(t *testing.T) {
	require := require.New(t)
	h, path := openTemp(t, rules.FakeNetRules(), nil)
	_, err := h.Append(events.WarnProcessingMissed{RefSlot: 5})
	require.NoError(err)
	require.NoError(h.Close())
	require.NoError(h.Close())

	_, err = h.Append(events.WarnProcessingMissed{RefSlot: 6})
	require.ErrorIs(err, ErrClosed)

	_, err = Open(path, rules.HoleskyRules(), nil)
	require.ErrorIs(err, ErrRulesMismatch)

	h, err = Open(path, rules.FakeNetRules(), nil)
	require.NoError(err)
	defer h.Close()
	r, err := h.Rules()
	require.NoError(err)
	require.Equal(rules.FakeNetRules(), r)

	seq, err := h.Append(events.WarnProcessingMissed{RefSlot: 6})
	require.NoError(err)
	require.Equal(uint64(2), seq)
}

func TestRecord_Event(t *testing.T) {
	_, err := Record{Name: "Unknown"}.Event()
	require.ErrorIs(t, err, ErrUnknownEvent)

	data, err := rlp.EncodeToBytes(uint64(7))
	require.NoError(t, err)
	_, err = Record{Name: events.QuorumSet{}.Name(), Data: data}.Event()
	require.Error(t, err)
}

func TestRecord_Event_everyType(t *testing.T) {
	require := require.New(t)
	require.Len(eventTypes, 17)
	for name, newEvent := range eventTypes {
		data, err := rlp.EncodeToBytes(newEvent())
		require.NoError(err, name)
		ev, err := Record{Name: name, Data: data}.Event()
		require.NoError(err, name)
		require.Equal(name, ev.Name())
	}
}
