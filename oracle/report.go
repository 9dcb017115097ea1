package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ConsensusReport is the report the committee agreed on.
type ConsensusReport struct {
	Hash                   common.Hash
	RefSlot                uint64
	ProcessingDeadlineTime uint64
}

// ReportData is the main report plaintext. Its canonical hash is what
// committee members vote for.
type ReportData struct {
	ConsensusVersion uint64 `json:"consensusVersion"`
	RefSlot          uint64 `json:"refSlot"`

	NumValidators uint64 `json:"numValidators"`
	ClBalanceGwei uint64 `json:"clBalanceGwei"`

	// Modules with newly exited validators and their total exited counts,
	// sorted by module id.
	StakingModuleIdsWithNewlyExitedValidators []uint64 `json:"stakingModuleIdsWithNewlyExitedValidators"`
	NumExitedValidatorsByStakingModule        []uint64 `json:"numExitedValidatorsByStakingModule"`

	WithdrawalVaultBalance        *big.Int `json:"withdrawalVaultBalance"`
	ElRewardsVaultBalance         *big.Int `json:"elRewardsVaultBalance"`
	SharesRequestedToBurn         *big.Int `json:"sharesRequestedToBurn"`
	WithdrawalFinalizationBatches []uint64 `json:"withdrawalFinalizationBatches"`
	SimulatedShareRate            *big.Int `json:"simulatedShareRate"`
	IsBunkerMode                  bool     `json:"isBunkerMode"`

	ExtraDataFormat     uint64      `json:"extraDataFormat"`
	ExtraDataHash       common.Hash `json:"extraDataHash"`
	ExtraDataItemsCount uint64      `json:"extraDataItemsCount"`
}

// reportTuple mirrors ReportData with the Go types the abi packer expects
// for the tuple. Field names must match the camel cased abi names.
type reportTuple struct {
	ConsensusVersion                          *big.Int
	RefSlot                                   *big.Int
	NumValidators                             *big.Int
	ClBalanceGwei                             *big.Int
	StakingModuleIdsWithNewlyExitedValidators []*big.Int
	NumExitedValidatorsByStakingModule        []*big.Int
	WithdrawalVaultBalance                    *big.Int
	ElRewardsVaultBalance                     *big.Int
	SharesRequestedToBurn                     *big.Int
	WithdrawalFinalizationBatches             []*big.Int
	SimulatedShareRate                        *big.Int
	IsBunkerMode                              bool
	ExtraDataFormat                           *big.Int
	ExtraDataHash                             [32]byte
	ExtraDataItemsCount                       *big.Int
}

var reportArgs = func() abi.Arguments {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "consensusVersion", Type: "uint256"},
		{Name: "refSlot", Type: "uint256"},
		{Name: "numValidators", Type: "uint256"},
		{Name: "clBalanceGwei", Type: "uint256"},
		{Name: "stakingModuleIdsWithNewlyExitedValidators", Type: "uint256[]"},
		{Name: "numExitedValidatorsByStakingModule", Type: "uint256[]"},
		{Name: "withdrawalVaultBalance", Type: "uint256"},
		{Name: "elRewardsVaultBalance", Type: "uint256"},
		{Name: "sharesRequestedToBurn", Type: "uint256"},
		{Name: "withdrawalFinalizationBatches", Type: "uint256[]"},
		{Name: "simulatedShareRate", Type: "uint256"},
		{Name: "isBunkerMode", Type: "bool"},
		{Name: "extraDataFormat", Type: "uint256"},
		{Name: "extraDataHash", Type: "bytes32"},
		{Name: "extraDataItemsCount", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func u256s(vv []uint64) []*big.Int {
	res := make([]*big.Int, len(vv))
	for i, v := range vv {
		res[i] = u256(v)
	}
	return res
}

// orZero treats a missing amount as zero.
func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (d *ReportData) tuple() reportTuple {
	return reportTuple{
		ConsensusVersion:                          u256(d.ConsensusVersion),
		RefSlot:                                   u256(d.RefSlot),
		NumValidators:                             u256(d.NumValidators),
		ClBalanceGwei:                             u256(d.ClBalanceGwei),
		StakingModuleIdsWithNewlyExitedValidators: u256s(d.StakingModuleIdsWithNewlyExitedValidators),
		NumExitedValidatorsByStakingModule:        u256s(d.NumExitedValidatorsByStakingModule),
		WithdrawalVaultBalance:                    orZero(d.WithdrawalVaultBalance),
		ElRewardsVaultBalance:                     orZero(d.ElRewardsVaultBalance),
		SharesRequestedToBurn:                     orZero(d.SharesRequestedToBurn),
		WithdrawalFinalizationBatches:             u256s(d.WithdrawalFinalizationBatches),
		SimulatedShareRate:                        orZero(d.SimulatedShareRate),
		IsBunkerMode:                              d.IsBunkerMode,
		ExtraDataFormat:                           u256(d.ExtraDataFormat),
		ExtraDataHash:                             d.ExtraDataHash,
		ExtraDataItemsCount:                       u256(d.ExtraDataItemsCount),
	}
}

// Validate rejects amounts that do not fit a uint256. The abi packer would
// wrap them, so two different plaintexts could share a hash.
func (d *ReportData) Validate() error {
	amounts := []struct {
		name string
		v    *big.Int
	}{
		{"withdrawalVaultBalance", d.WithdrawalVaultBalance},
		{"elRewardsVaultBalance", d.ElRewardsVaultBalance},
		{"sharesRequestedToBurn", d.SharesRequestedToBurn},
		{"simulatedShareRate", d.SimulatedShareRate},
	}
	for _, a := range amounts {
		if a.v == nil {
			continue
		}
		if a.v.Sign() < 0 || a.v.BitLen() > 256 {
			return fmt.Errorf("%w: %s %v out of uint256 range", ErrInvalidReportData, a.name, a.v)
		}
	}
	return nil
}

// Encode returns abi.encode of the report as a single tuple argument.
// Amounts are expected to pass Validate.
func (d *ReportData) Encode() []byte {
	b, err := reportArgs.Pack(d.tuple())
	if err != nil {
		// every field is set and typed, so packing cannot fail
		panic(err)
	}
	return b
}

// Hash is keccak256 of Encode.
func (d *ReportData) Hash() common.Hash {
	return crypto.Keccak256Hash(d.Encode())
}

// ClBalanceWei converts the reported consensus layer balance to wei.
func (d *ReportData) ClBalanceWei() *big.Int {
	return new(big.Int).Mul(u256(d.ClBalanceGwei), big.NewInt(1e9))
}
