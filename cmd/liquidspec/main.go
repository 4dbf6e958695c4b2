// Command liquidspec runs Liquid template conformance suites against
// an engine under test.
package main

import (
	"fmt"
	"os"

	"github.com/liquidlab/liquidspec/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
