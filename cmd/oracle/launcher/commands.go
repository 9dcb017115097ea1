package launcher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/flags"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/integration"
	"github.com/rony4d/go-accounting-oracle/oracle"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
	"github.com/rony4d/go-accounting-oracle/store"
)

var (
	frameCommand = cli.Command{
		Action:    withConfig(frameInfo),
		Name:      "frame",
		Usage:     "Print the reporting frame at a point in time",
		ArgsUsage: " ",
		Flags:     []cli.Flag{flags.AtFlag},
	}
	reportHashCommand = cli.Command{
		Action:    withConfig(reportHash),
		Name:      "report-hash",
		Usage:     "Print the canonical hash of a report",
		ArgsUsage: "<report.json>",
	}
	extraDataCommand = cli.Command{
		Action:    withConfig(extraData),
		Name:      "extra-data",
		Usage:     "Encode extra data items into chunks",
		ArgsUsage: "<items.json>",
	}
	simulateCommand = cli.Command{
		Action:    withConfig(simulate),
		Name:      "simulate",
		Usage:     "Run an in-process committee and oracle through several frames",
		ArgsUsage: " ",
		Flags:     []cli.Flag{flags.FramesFlag},
		Description: `
Builds a committee and an accounting oracle for the selected network, lets
every member vote on a generated report in each frame, submits the main data
and the extra data, and journals every notification to <datadir>/history.db.`,
	}
	historyCommand = cli.Command{
		Action:    withConfig(history),
		Name:      "history",
		Usage:     "Print the journal of a previous simulation",
		ArgsUsage: " ",
		Flags:     []cli.Flag{flags.FromFlag, flags.LimitFlag},
	}
)

type commandFunc func(ctx *cli.Context, cfg Config) error

// withConfig builds the config and the loggers before running fn.
func withConfig(fn commandFunc) func(ctx *cli.Context) error {
	return func(ctx *cli.Context) error {
		cfg, err := MakeAllConfigs(ctx)
		if err != nil {
			return err
		}
		if err := setupLogging(cfg.Logging, os.Stderr); err != nil {
			return err
		}
		return fn(ctx, cfg)
	}
}

func frameInfo(ctx *cli.Context, cfg Config) error {
	r := cfg.Network.Rules
	s, err := frame.NewSchedule(r.Chain, r.Frame)
	if err != nil {
		return err
	}
	now := uint64(time.Now().Unix())
	if ctx.IsSet(flags.AtFlag.Name) {
		at := ctx.Int64(flags.AtFlag.Name)
		if at < 0 {
			return errors.Errorf("negative time %d", at)
		}
		now = uint64(at)
	}
	f, err := s.FrameAt(now)
	if err != nil {
		return errors.Wrapf(err, "initial epoch %d starts at %d", r.Frame.InitialEpoch, s.TimestampAtSlot(s.StartSlotAtEpoch(r.Frame.InitialEpoch)))
	}

	w := ctx.App.Writer
	fmt.Fprintf(w, "network:        %s\n", cfg.Network.Name)
	fmt.Fprintf(w, "time:           %d\n", now)
	fmt.Fprintf(w, "slot:           %d\n", s.SlotAt(now))
	fmt.Fprintf(w, "epoch:          %d\n", s.EpochAt(now))
	fmt.Fprintf(w, "frame:          %d\n", f.Index)
	fmt.Fprintf(w, "refSlot:        %d\n", f.RefSlot)
	fmt.Fprintf(w, "deadlineSlot:   %d\n", f.ReportProcessingDeadlineSlot)
	fmt.Fprintf(w, "deadlineTime:   %d\n", s.TimestampAtSlot(f.ReportProcessingDeadlineSlot))
	fmt.Fprintf(w, "fastLaneUntil:  %d\n", f.RefSlot+r.Frame.FastLaneLengthSlots)
	return nil
}

func readJSONArg(ctx *cli.Context, v interface{}) error {
	if ctx.NArg() != 1 {
		return errors.Errorf("expected exactly one file argument, got %d", ctx.NArg())
	}
	raw, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return errors.Wrap(err, "read input")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(err, "decode %s", ctx.Args().First())
	}
	return nil
}

func reportHash(ctx *cli.Context, _ Config) error {
	var data oracle.ReportData
	if err := readJSONArg(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "hash:    %s\n", data.Hash().Hex())
	fmt.Fprintf(w, "encoded: %s\n", hexutil.Encode(data.Encode()))
	return nil
}

// itemJSON is the input format of the extra-data command.
type itemJSON struct {
	Type            uint16   `json:"type"`
	ModuleID        uint32   `json:"moduleId"`
	NodeOperatorIDs []uint64 `json:"nodeOperatorIds"`
	KeyCounts       []uint64 `json:"keyCounts"`
}

func extraData(ctx *cli.Context, cfg Config) error {
	var in []itemJSON
	if err := readJSONArg(ctx, &in); err != nil {
		return err
	}
	items := make([]extradata.Item, len(in))
	for i, it := range in {
		if len(it.NodeOperatorIDs) != len(it.KeyCounts) {
			return errors.Errorf("item %d: %d node operators but %d key counts", i, len(it.NodeOperatorIDs), len(it.KeyCounts))
		}
		items[i] = extradata.Item{Type: it.Type, ModuleID: it.ModuleID, NodeOperatorIDs: it.NodeOperatorIDs, KeyCounts: it.KeyCounts}
	}
	items = extradata.Normalize(items)
	chunks, first, err := extradata.EncodeChunks(items, cfg.Network.ChunkSize)
	if err != nil {
		return err
	}

	w := ctx.App.Writer
	fmt.Fprintf(w, "format:     %d\n", extradata.FormatList)
	fmt.Fprintf(w, "hash:       %s\n", first.Hex())
	fmt.Fprintf(w, "itemsCount: %d\n", len(items))
	for i, chunk := range chunks {
		fmt.Fprintf(w, "chunk %d:    %s\n", i, hexutil.Encode(chunk))
	}
	return nil
}

func openHistory(cfg Config) (*store.History, error) {
	if err := ensureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	h, err := store.Open(cfg.HistoryPath(), cfg.Network.Rules, nil)
	if errors.Is(err, store.ErrRulesMismatch) {
		return nil, errors.Wrapf(err, "%s belongs to another network, pick another --datadir", cfg.HistoryPath())
	}
	return h, err
}

func simulate(ctx *cli.Context, cfg Config) error {
	frames := ctx.Int(flags.FramesFlag.Name)
	if frames <= 0 {
		return errors.Errorf("frames must be positive, got %d", frames)
	}
	alerter, err := newAlerter(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()
	first, err := h.Len()
	if err != nil {
		return err
	}

	n, err := integration.NewNetwork(integration.NetworkConfig{
		Preset: cfg.Network,
		Sink:   events.Multi{h, alertSink{log: alerter}},
	})
	if err != nil {
		return err
	}
	res, err := n.Run(frames)
	w := ctx.App.Writer
	for _, r := range res {
		fmt.Fprintf(w, "frame %d refSlot %d hash %s items %d chunks %d\n", r.Frame.Index, r.Frame.RefSlot, r.ReportHash.Hex(), r.Items, r.Chunks)
	}
	if err != nil {
		return err
	}
	return printRecords(w, h, uint64(first)+1, 0)
}

func history(ctx *cli.Context, cfg Config) error {
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()
	return printRecords(ctx.App.Writer, h, ctx.Uint64(flags.FromFlag.Name), ctx.Int(flags.LimitFlag.Name))
}

func printRecords(w io.Writer, h *store.History, from uint64, limit int) error {
	recs, err := h.Records(from, limit)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		ev, err := rec.Event()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%6d %d %s", rec.Seq, rec.Time, rec.Name)
		kv := events.Fields(ev)
		for i := 0; i+1 < len(kv); i += 2 {
			fmt.Fprintf(w, " %s=%s", kv[i], kv[i+1])
		}
		fmt.Fprintln(w)
	}
	return nil
}
