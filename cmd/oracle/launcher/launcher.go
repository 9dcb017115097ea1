package launcher

import (
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-accounting-oracle/flags"
)

var (
	// Git SHA1 commit hash of the release (set via linker flags).
	gitCommit = ""

	app = flags.NewApp(gitCommit, "accounting oracle committee toolkit")
)

func init() {
	app.Flags = flags.AllGlobalFlags()
	app.Commands = []cli.Command{
		frameCommand,
		reportHashCommand,
		extraDataCommand,
		simulateCommand,
		historyCommand,
	}
	app.Action = withConfig(frameInfo)
}

// Launch runs the command line tool with the given arguments.
func Launch(args []string) error {
	return app.Run(args)
}
