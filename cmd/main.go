package main

import (
	"fmt"
	"os"

	"github.com/rony4d/go-accounting-oracle/cmd/oracle/launcher"
)

func main() {
	if err := launcher.Launch(os.Args); err != nil {
		// Report the issue to stderr so the user sees it
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
