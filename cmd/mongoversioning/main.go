// Command mongoversioning appends a version history for MongoDB collections
// by tailing the replication oplog.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/mongoversioning/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
