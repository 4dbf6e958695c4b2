package testutil

import (
	"io"

	"github.com/liquidlab/liquidspec/internal/refengine"
)

// EnginePipe runs the reference engine in-process over a pair of pipes.
//
// Tests that need a live peer on the other end of the protocol attach the
// returned reader/writer to a session instead of spawning a subprocess. This
// keeps protocol tests hermetic: no binary to build, no PATH dependence, and
// failures surface as Go errors rather than exit codes.
type EnginePipe struct {
	// In carries engine output toward the harness.
	In io.Reader
	// Out carries harness traffic toward the engine.
	Out io.WriteCloser

	done chan error
}

// StartEngine launches a reference engine serving on in-memory pipes.
// The engine goroutine exits when Out is closed or a quit notification
// arrives; Wait reports how it exited.
func StartEngine() *EnginePipe {
	toEngine, fromHarness := io.Pipe()
	toHarness, fromEngine := io.Pipe()

	p := &EnginePipe{
		In:   toHarness,
		Out:  fromHarness,
		done: make(chan error, 1),
	}

	go func() {
		err := refengine.New(toEngine, fromEngine).Serve()
		fromEngine.Close()
		p.done <- err
	}()

	return p
}

// Wait blocks until the engine goroutine exits and returns its error.
func (p *EnginePipe) Wait() error {
	return <-p.done
}

// Close shuts the harness-side pipe, which drives the engine to EOF.
func (p *EnginePipe) Close() error {
	return p.Out.Close()
}
