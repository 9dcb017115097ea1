package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// CommitteeFlags shape the committee and its reporting frames.
func CommitteeFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "committee.size",
			Usage: "Number of committee members",
		},
		cli.Uint64Flag{
			Name:  "committee.quorum",
			Usage: "Votes needed for consensus (0 = simple majority)",
		},
		cli.Uint64Flag{
			Name:  "frame.initial-epoch",
			Usage: "Epoch the first reporting frame starts at",
		},
		cli.Uint64Flag{
			Name:  "frame.epochs",
			Usage: "Epochs per reporting frame",
		},
		cli.Uint64Flag{
			Name:  "frame.fast-lane",
			Usage: "Fast lane length in slots",
		},
		cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Extra data items per chunk",
		},
	}
}

var (
	AtFlag = cli.Int64Flag{
		Name:  "at",
		Usage: "Unix time to evaluate at instead of now",
	}
	FramesFlag = cli.IntFlag{
		Name:  "frames",
		Usage: "Number of frames to simulate",
		Value: 3,
	}
	LimitFlag = cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of records to print (0 = all)",
	}
	FromFlag = cli.Uint64Flag{
		Name:  "from",
		Usage: "First record sequence number to print",
		Value: 1,
	}
)
