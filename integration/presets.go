// Package integration provides named network presets and assembles an
// in-process oracle deployment (committee, oracle, collaborators) from them.
//
// Usage:
//	preset := integration.FakeNetPreset() // for development
//	preset, err := integration.GetPresetByName("holesky")
//	network, err := integration.NewNetwork(integration.NetworkConfig{Preset: preset})
//
// Each preset bundles the network rules with the committee layout an
// operator would start from.
package integration

import (
	"fmt"

	"github.com/rony4d/go-accounting-oracle/rules"
)

// Preset captures a network and the committee that reports on it.
type Preset struct {
	Name          string      `yaml:"name"`          // human-readable identifier (e.g., "mainnet")
	Rules         rules.Rules `yaml:"rules"`         // chain clock, frame layout, sanity limits
	CommitteeSize int         `yaml:"committeeSize"` // number of committee members
	Quorum        uint64      `yaml:"quorum"`        // votes needed for consensus; 0 means a simple majority
	ChunkSize     int         `yaml:"chunkSize"`     // extra data items per chunk
}

// MajorityQuorum is the smallest quorum above half of size members.
func MajorityQuorum(size int) uint64 {
	return uint64(size/2 + 1)
}

// EffectiveQuorum resolves a zero quorum to a simple majority.
func (p Preset) EffectiveQuorum() uint64 {
	if p.Quorum == 0 {
		return MajorityQuorum(p.CommitteeSize)
	}
	return p.Quorum
}

// MainnetPreset mirrors a production committee: nine members, five of
// which must agree, and chunks as large as the default sanity limits allow.
func MainnetPreset() Preset {
	return Preset{
		Name:          "mainnet",
		Rules:         rules.MainNetRules(),
		CommitteeSize: 9,
		Quorum:        5,
		ChunkSize:     int(rules.MainNetRules().Limits.MaxItemsPerExtraDataTransaction),
	}
}

// HoleskyPreset is a smaller testnet committee.
func HoleskyPreset() Preset {
	return Preset{
		Name:          "holesky",
		Rules:         rules.HoleskyRules(),
		CommitteeSize: 5,
		Quorum:        3,
		ChunkSize:     int(rules.HoleskyRules().Limits.MaxItemsPerExtraDataTransaction),
	}
}

// FakeNetPreset returns a lightweight network for development, tests and
// simulations: three members, a majority quorum, and small chunks so that
// multi-chunk extra data shows up early.
func FakeNetPreset() Preset {
	return Preset{
		Name:          "fakenet",
		Rules:         rules.FakeNetRules(),
		CommitteeSize: 3,
		ChunkSize:     2,
	}
}

// DefaultPreset is the preset used when none is named.
func DefaultPreset() Preset {
	return FakeNetPreset()
}

// GetPresetByName looks up a preset by its string identifier. This helper
// backs the --network flag.
//
// Example:
//
//	preset, err := integration.GetPresetByName("holesky")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetPresetByName(name string) (Preset, error) {
	switch name {
	case "mainnet":
		return MainnetPreset(), nil
	case "holesky":
		return HoleskyPreset(), nil
	case "fakenet", "default", "":
		return FakeNetPreset(), nil
	default:
		return Preset{}, fmt.Errorf("unknown preset: %q (valid: mainnet, holesky, fakenet)", name)
	}
}

// ApplyPreset merges preset into target. Non-zero committee settings of the
// preset override the target; the rules are always replaced.
func ApplyPreset(target *Preset, preset Preset) {
	if preset.Name != "" {
		target.Name = preset.Name
	}
	target.Rules = preset.Rules.Copy()
	if preset.CommitteeSize > 0 {
		target.CommitteeSize = preset.CommitteeSize
	}
	if preset.Quorum > 0 {
		target.Quorum = preset.Quorum
	}
	if preset.ChunkSize > 0 {
		target.ChunkSize = preset.ChunkSize
	}
}
