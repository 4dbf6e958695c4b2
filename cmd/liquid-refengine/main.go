// Command liquid-refengine is the reference engine: a minimal Liquid
// implementation speaking the line-delimited JSON protocol on
// stdin/stdout. It exists so the harness can be exercised end to end
// without an external engine, and doubles as a protocol example for
// engine authors.
package main

import (
	"fmt"
	"os"

	"github.com/liquidlab/liquidspec/internal/refengine"
)

func main() {
	if err := refengine.New(os.Stdin, os.Stdout).Serve(); err != nil {
		fmt.Fprintln(os.Stderr, "liquid-refengine:", err)
		os.Exit(1)
	}
}
