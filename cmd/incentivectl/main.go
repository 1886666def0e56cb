package main

import (
	"fmt"
	"os"

	"github.com/warp/contribution-engine/cli"
)

// Set via ldflags
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
