package integration

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/consensus"
	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/oracle"
	"github.com/rony4d/go-accounting-oracle/sanity"
)

// ConsensusVersion is the report layout version committees vote with.
const ConsensusVersion = 1

var (
	CommitteeAddress = common.HexToAddress("0xc0")
	OracleAddress    = common.HexToAddress("0x0c")
	DefaultAdmin     = common.HexToAddress("0xad")
)

// MemberAddress derives the address of the i-th committee member.
func MemberAddress(i int) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(fmt.Sprintf("member-%d", i)))[12:])
}

// NetworkConfig describes an in-process deployment.
type NetworkConfig struct {
	Preset Preset
	// Admin holds every role. Zero means DefaultAdmin.
	Admin common.Address
	// Sink additionally receives every event, e.g. a store.History.
	Sink events.Sink
}

// Network is a committee bound to an accounting oracle, driven by a manual
// clock and backed by an in-memory Ledger.
type Network struct {
	Preset  Preset
	Admin   common.Address
	Members []common.Address

	Clock     *frame.ManualTime
	Schedule  frame.Schedule
	Committee *consensus.HashConsensus
	Oracle    *oracle.AccountingOracle
	Ledger    *Ledger
	Sanity    *sanity.Checker
	Bus       *events.Bus
	Recorder  *events.Recorder

	log log.Logger
}

// NewNetwork assembles the preset's deployment. The clock starts at the
// first slot of the initial epoch.
func NewNetwork(cfg NetworkConfig) (*Network, error) {
	p := cfg.Preset
	if err := p.Rules.Validate(); err != nil {
		return nil, err
	}
	if p.CommitteeSize <= 0 {
		return nil, fmt.Errorf("committee size must be positive, got %d", p.CommitteeSize)
	}
	if cfg.Admin == (common.Address{}) {
		cfg.Admin = DefaultAdmin
	}
	s, err := frame.NewSchedule(p.Rules.Chain, p.Rules.Frame)
	if err != nil {
		return nil, err
	}

	n := &Network{
		Preset:   p,
		Admin:    cfg.Admin,
		Clock:    frame.NewManualTime(s.TimestampAtSlot(s.StartSlotAtEpoch(p.Rules.Frame.InitialEpoch))),
		Schedule: s,
		Ledger:   NewLedger(),
		Sanity:   sanity.NewChecker(p.Rules.Limits),
		Bus:      events.NewBus(),
		Recorder: events.NewRecorder(),
		log:      log.New("module", "integration", "network", p.Name),
	}
	if err := n.Bus.SubscribeSink(n.Recorder); err != nil {
		return nil, err
	}
	if cfg.Sink != nil {
		if err := n.Bus.SubscribeSink(cfg.Sink); err != nil {
			return nil, err
		}
	}

	auth := access.NewAdminTable(n.Admin)
	n.Oracle, err = oracle.NewAccountingOracle(oracle.Config{
		Address:    OracleAddress,
		Chain:      p.Rules.Chain,
		Time:       n.Clock,
		Auth:       auth,
		Sink:       n.Bus,
		Balance:    n.Ledger,
		Registry:   n.Ledger,
		Withdrawal: n.Ledger,
		Sanity:     n.Sanity,
	})
	if err != nil {
		return nil, err
	}
	n.Committee, err = consensus.New(consensus.Config{
		Address:   CommitteeAddress,
		Chain:     p.Rules.Chain,
		Frame:     p.Rules.Frame,
		Time:      n.Clock,
		Auth:      auth,
		Sink:      n.Bus,
		Processor: n.Oracle,
	})
	if err != nil {
		return nil, err
	}
	if err := n.Oracle.Initialize(n.Committee, ConsensusVersion, 0); err != nil {
		return nil, fmt.Errorf("initialize oracle: %w", err)
	}

	quorum := p.EffectiveQuorum()
	for i := 0; i < p.CommitteeSize; i++ {
		addr := MemberAddress(i)
		if err := n.Committee.AddMember(n.Admin, addr, quorum); err != nil {
			return nil, fmt.Errorf("add member %d: %w", i, err)
		}
		n.Members = append(n.Members, addr)
	}
	n.log.Info("Network assembled", "members", len(n.Members), "quorum", quorum, "initialRefSlot", n.Committee.InitialRefSlot())
	return n, nil
}

// CurrentSlot is the slot the clock is in.
func (n *Network) CurrentSlot() uint64 {
	return n.Schedule.SlotAt(n.Clock.Now())
}
