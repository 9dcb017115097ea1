// Package rules defines the per-network parameters of the oracle: the beacon
// chain clock, the reporting frame layout and the sanity limits.
//
// This package provides:
//   - Network identification constants (Mainnet, Holesky, FakeNet)
//   - Chain clock rules (slot length, epoch length, genesis)
//   - Frame rules for the consensus committee
//   - Sanity limits for the accounting oracle
//
// Rules is the one value every component of a deployment must agree on.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/sanity"
)

// Network identification constants
const (
	// MainNetworkID is the chain ID of Ethereum mainnet.
	MainNetworkID uint64 = 1

	// HoleskyNetworkID is the chain ID of the Holesky testnet.
	HoleskyNetworkID uint64 = 17000

	// FakeNetworkID is the chain ID of local in-process networks.
	FakeNetworkID uint64 = 0xfa3
)

// Rules describes the complete configuration of one network.
type Rules struct {
	Name      string `yaml:"name" json:"name"`
	NetworkID uint64 `yaml:"networkId" json:"networkId"`

	// Chain is the beacon chain clock.
	Chain frame.ChainConfig `yaml:"chain" json:"chain"`

	// Frame is the initial frame layout of the committee.
	Frame frame.FrameConfig `yaml:"frame" json:"frame"`

	// Limits are the initial sanity limits.
	Limits sanity.Limits `yaml:"limits" json:"limits"`
}

// Validate checks that the chain clock and the frame layout are usable.
func (r Rules) Validate() error {
	if _, err := frame.NewSchedule(r.Chain, r.Frame); err != nil {
		return fmt.Errorf("rules %q: %w", r.Name, err)
	}
	return nil
}

// MainNetRules returns the rules of Ethereum mainnet: 32 slots of 12
// seconds, one report per 225 epochs (a day).
func MainNetRules() Rules {
	return Rules{
		Name:      "mainnet",
		NetworkID: MainNetworkID,
		Chain: frame.ChainConfig{
			SlotsPerEpoch:  32,
			SecondsPerSlot: 12,
			GenesisTime:    1606824023,
		},
		Frame: frame.FrameConfig{
			InitialEpoch:        201600,
			EpochsPerFrame:      225,
			FastLaneLengthSlots: 100,
		},
		Limits: sanity.DefaultLimits(),
	}
}

// HoleskyRules returns the rules of the Holesky testnet. Frames are shorter
// than on mainnet so reports come every 12 epochs.
func HoleskyRules() Rules {
	return Rules{
		Name:      "holesky",
		NetworkID: HoleskyNetworkID,
		Chain: frame.ChainConfig{
			SlotsPerEpoch:  32,
			SecondsPerSlot: 12,
			GenesisTime:    1695902400,
		},
		Frame: frame.FrameConfig{
			InitialEpoch:        8100,
			EpochsPerFrame:      12,
			FastLaneLengthSlots: 10,
		},
		Limits: sanity.DefaultLimits(),
	}
}

// FakeNetRules returns the rules of local networks:
//   - 4 slots of 1 second per epoch, genesis at unix time 0
//   - frames of 10 epochs starting at epoch 1, no fast lane
//   - limits loose enough for simulated reports
func FakeNetRules() Rules {
	return Rules{
		Name:      "fakenet",
		NetworkID: FakeNetworkID,
		Chain: frame.ChainConfig{
			SlotsPerEpoch:  4,
			SecondsPerSlot: 1,
		},
		Frame: frame.FrameConfig{
			InitialEpoch:   1,
			EpochsPerFrame: 10,
		},
		Limits: sanity.Limits{
			ExitedValidatorsPerDayLimit:      1 << 32,
			MaxItemsPerExtraDataTransaction:  16,
			MaxNodeOperatorsPerExtraDataItem: 100,
		},
	}
}

// Copy returns a deep copy of the rules.
func (r Rules) Copy() Rules {
	cp := r
	return cp
}

// String returns a JSON representation of Rules for logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
