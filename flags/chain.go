package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// ChainFlags select the network and override its chain clock.
func ChainFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Network preset (mainnet|holesky|fakenet)",
			Value: "fakenet",
		},
		cli.StringFlag{
			Name:  "beacon.url",
			Usage: "Beacon node API endpoint to read genesis time and slot parameters from",
		},
		cli.DurationFlag{
			Name:  "beacon.timeout",
			Usage: "Timeout for beacon node requests",
			Value: 30 * time.Second,
		},
		cli.Uint64Flag{
			Name:  "chain.genesis",
			Usage: "Genesis time in unix seconds",
		},
		cli.Uint64Flag{
			Name:  "chain.slots-per-epoch",
			Usage: "Slots per epoch",
		},
		cli.Uint64Flag{
			Name:  "chain.seconds-per-slot",
			Usage: "Slot length in seconds",
		},
	}
}
