package oracle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func TestReportData_Encode(t *testing.T) {
	require := require.New(t)

	data := testReport(100)
	data.StakingModuleIdsWithNewlyExitedValidators = []uint64{1, 2}
	data.NumExitedValidatorsByStakingModule = []uint64{3, 4}
	enc := data.Encode()

	// a dynamic tuple is encoded behind an offset
	require.Equal(common.LeftPadBytes([]byte{0x20}, 32), enc[:32])
	word := func(i int) []byte { return enc[32+32*i : 64+32*i] }
	require.Equal(common.LeftPadBytes([]byte{1}, 32), word(0), "consensusVersion")
	require.Equal(common.LeftPadBytes([]byte{100}, 32), word(1), "refSlot")
	require.Equal(common.LeftPadBytes([]byte{10}, 32), word(2), "numValidators")
	require.Equal(common.LeftPadBytes([]byte{0}, 32), word(11), "isBunkerMode")
	require.Equal(crypto.Keccak256Hash(enc), data.Hash())
}

func TestReportData_Hash(t *testing.T) {
	require := require.New(t)

	a := testReport(100)
	b := testReport(100)
	require.Equal(a.Hash(), b.Hash())

	b.IsBunkerMode = true
	require.NotEqual(a.Hash(), b.Hash())

	b = testReport(100)
	b.WithdrawalFinalizationBatches = []uint64{1}
	require.NotEqual(a.Hash(), b.Hash())

	b = testReport(100)
	b.ExtraDataHash = common.HexToHash("0x01")
	require.NotEqual(a.Hash(), b.Hash())

	// missing amounts hash as zero
	a.SharesRequestedToBurn = nil
	b = testReport(100)
	b.SharesRequestedToBurn = new(big.Int)
	require.Equal(a.Hash(), b.Hash())
}

func TestReportData_Validate(t *testing.T) {
	tooBig := new(big.Int).Add(maxUint256, big.NewInt(1))

	tests := []struct {
		name  string
		set   func(d *ReportData)
		valid bool
	}{
		{name: "defaults", set: func(*ReportData) {}, valid: true},
		{name: "missing amount", set: func(d *ReportData) { d.ElRewardsVaultBalance = nil }, valid: true},
		{name: "max uint256", set: func(d *ReportData) { d.SharesRequestedToBurn = maxUint256 }, valid: true},
		{name: "overflowing burn", set: func(d *ReportData) { d.SharesRequestedToBurn = tooBig }},
		{name: "overflowing share rate", set: func(d *ReportData) { d.SimulatedShareRate = tooBig }},
		{name: "negative withdrawal vault", set: func(d *ReportData) { d.WithdrawalVaultBalance = big.NewInt(-1) }},
		{name: "negative el rewards", set: func(d *ReportData) { d.ElRewardsVaultBalance = big.NewInt(-5) }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := testReport(100)
			test.set(&data)
			err := data.Validate()
			if test.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidReportData)
			}
		})
	}
}

func TestReportData_ClBalanceWei(t *testing.T) {
	data := ReportData{ClBalanceGwei: 32}
	require.Equal(t, big.NewInt(32e9), data.ClBalanceWei())
}
