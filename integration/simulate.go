package integration

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/oracle"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
)

// FrameResult summarises one simulated frame.
type FrameResult struct {
	Frame      frame.Frame
	ReportHash common.Hash
	Items      int
	Chunks     int
}

const (
	simModuleID  = 1
	gweiPerEther = 1e9
)

// SimulatedReport builds a deterministic report for f. Exited counts only
// grow with the frame index so consecutive reports stay acceptable to the
// Ledger. Every third frame carries no extra data.
func SimulatedReport(f frame.Frame) (oracle.ReportData, []extradata.Item) {
	i := f.Index
	validators := 100 + 10*i
	data := oracle.ReportData{
		ConsensusVersion: ConsensusVersion,
		RefSlot:          f.RefSlot,
		NumValidators:    validators,
		ClBalanceGwei:    validators*32*gweiPerEther + i*1e7,

		StakingModuleIdsWithNewlyExitedValidators: []uint64{simModuleID},
		NumExitedValidatorsByStakingModule:        []uint64{i + 1},

		WithdrawalVaultBalance: new(big.Int).Mul(big.NewInt(int64(i+1)), big.NewInt(1e18)),
		ElRewardsVaultBalance:  new(big.Int).Mul(big.NewInt(int64(i%5)), big.NewInt(1e17)),
		SharesRequestedToBurn:  new(big.Int),
		IsBunkerMode:           i%7 == 6,
	}
	if i%2 == 1 {
		data.WithdrawalFinalizationBatches = []uint64{i, i + 1}
		data.SimulatedShareRate = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	}
	if i%3 == 2 {
		return data, nil
	}

	items := extradata.Normalize([]extradata.Item{
		{
			Type:            extradata.TypeStuckValidators,
			ModuleID:        simModuleID,
			NodeOperatorIDs: []uint64{0, 1},
			KeyCounts:       []uint64{i % 2, i % 3},
		},
		{
			Type:            extradata.TypeExitedValidators,
			ModuleID:        simModuleID,
			NodeOperatorIDs: []uint64{0, 1, 2},
			KeyCounts:       []uint64{i + 1, i, 1},
		},
		{
			Type:            extradata.TypeExitedValidators,
			ModuleID:        simModuleID + 1,
			NodeOperatorIDs: []uint64{5},
			KeyCounts:       []uint64{2 * i},
		},
	})
	return data, items
}

// RunFrame reports on the current frame: it moves the clock past the fast
// lane, lets every member vote, submits the main data and then the extra
// data. Afterwards the clock is at the first slot of the next frame.
func (n *Network) RunFrame() (FrameResult, error) {
	f, err := n.Committee.CurrentFrame()
	if err != nil {
		return FrameResult{}, err
	}
	if voteSlot := f.RefSlot + n.Committee.FrameConfig().FastLaneLengthSlots + 1; n.CurrentSlot() < voteSlot {
		n.Clock.AdvanceToSlot(n.Schedule, voteSlot)
	}

	data, items := SimulatedReport(f)
	var chunks [][]byte
	if len(items) != 0 {
		var first common.Hash
		chunks, first, err = extradata.EncodeChunks(items, n.Preset.ChunkSize)
		if err != nil {
			return FrameResult{}, err
		}
		data.ExtraDataFormat = extradata.FormatList
		data.ExtraDataHash = first
		data.ExtraDataItemsCount = uint64(len(items))
	}
	hash := data.Hash()

	for _, m := range n.Members {
		if err := n.Committee.SubmitVote(m, f.RefSlot, hash, ConsensusVersion); err != nil {
			return FrameResult{}, fmt.Errorf("vote of %s for frame %d: %w", m, f.Index, err)
		}
	}
	submitter := n.Members[0]
	if err := n.Oracle.SubmitReportData(submitter, data, n.Oracle.ContractVersion()); err != nil {
		return FrameResult{}, fmt.Errorf("main data of frame %d: %w", f.Index, err)
	}
	if len(chunks) == 0 {
		if err := n.Oracle.SubmitReportExtraDataEmpty(submitter); err != nil {
			return FrameResult{}, fmt.Errorf("empty extra data of frame %d: %w", f.Index, err)
		}
	}
	for i, chunk := range chunks {
		if err := n.Oracle.SubmitReportExtraDataList(submitter, chunk); err != nil {
			return FrameResult{}, fmt.Errorf("extra data chunk %d of frame %d: %w", i, f.Index, err)
		}
	}

	n.Clock.AdvanceToSlot(n.Schedule, f.ReportProcessingDeadlineSlot+1)
	n.log.Debug("Frame reported", "index", f.Index, "refSlot", f.RefSlot, "hash", hash, "items", len(items), "chunks", len(chunks))
	return FrameResult{Frame: f, ReportHash: hash, Items: len(items), Chunks: len(chunks)}, nil
}

// Run reports on frames consecutive frames.
func (n *Network) Run(frames int) ([]FrameResult, error) {
	res := make([]FrameResult, 0, frames)
	for i := 0; i < frames; i++ {
		r, err := n.RunFrame()
		if err != nil {
			return res, err
		}
		res = append(res, r)
	}
	n.log.Info("Simulation finished", "frames", len(res), "warnings", len(n.Recorder.Warnings()))
	return res, nil
}
