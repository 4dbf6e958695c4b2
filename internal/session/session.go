// Package session owns the engine subprocess: its pipes, the
// read-dispatch loop, request-id sequencing, and shutdown.
//
// The concurrency model is deliberately narrow. One compile or render
// call is outstanding at a time, and all protocol I/O happens on the
// calling goroutine except for a single line-reader goroutine that
// feeds the pipe into a channel (the only way to bound a blocking pipe
// read with a deadline). Callback requests that arrive while a call is
// waiting for its response are serviced synchronously, in arrival
// order, before the loop continues.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/liquidlab/liquidspec/internal/drop"
	"github.com/liquidlab/liquidspec/internal/wire"
)

// ProtocolVersion is announced in the initialize handshake.
const ProtocolVersion = "1"

// State tracks the session lifecycle. A session moves forward through
// these states and can jump to StateTerminated from anywhere when the
// process dies or Shutdown runs.
type State string

const (
	StateNotStarted   State = "not_started"
	StateStarted      State = "started"
	StateInitialized  State = "initialized"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateTerminated   State = "terminated"
)

// SubprocessError reports that the engine process failed to start,
// died, or timed out. The session is unusable afterwards and the owner
// must call Shutdown and discard it.
type SubprocessError struct {
	Message string
	Err     error
}

func (e *SubprocessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine subprocess: %s: %v", e.Message, e.Err)
	}
	return "engine subprocess: " + e.Message
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// Recorder observes every envelope that crosses the pipe. Used by the
// harness to build protocol transcripts for golden comparison.
type Recorder interface {
	Record(direction string, m *wire.Message)
}

// Config describes how to run and talk to an engine process.
type Config struct {
	// Command and Args launch the engine binary.
	Command string
	Args    []string

	// Timeout bounds one whole Call, including any callbacks serviced
	// while waiting. Zero means DefaultTimeout.
	Timeout time.Duration

	// Stderr receives the engine's diagnostic stream. Defaults to the
	// harness stderr.
	Stderr io.Writer

	// Recorder, when set, sees every sent and received envelope.
	Recorder Recorder

	Logger *slog.Logger
}

// DefaultTimeout bounds a single compile or render call.
const DefaultTimeout = 10 * time.Second

type readResult struct {
	line []byte
	err  error
}

// Session drives one engine process over newline-delimited envelopes.
// Not safe for concurrent use; the harness runs cases sequentially.
type Session struct {
	cfg    Config
	logger *slog.Logger
	drops  *drop.Registry

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan readResult
	nextID int64

	state    State
	features []string
	dead     bool

	shutdownOnce sync.Once
}

// New creates a session that will spawn cfg.Command on first use.
func New(cfg Config) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "session"),
		drops:  drop.NewRegistry(),
		state:  StateNotStarted,
	}
}

// NewWithPipes creates a session over pre-established streams instead
// of a spawned process. Tests use this to script the engine side
// in-process; Shutdown then only closes the write end.
func NewWithPipes(in io.Reader, out io.WriteCloser, cfg Config) *Session {
	s := New(cfg)
	s.stdin = out
	s.startReader(in)
	s.state = StateStarted
	return s
}

// Drops exposes the session's registry for callback resolution and for
// wrapping environments bound to this session.
func (s *Session) Drops() *drop.Registry { return s.drops }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Features returns the feature names the engine declared during the
// initialize handshake.
func (s *Session) Features() []string { return s.features }

// start spawns the engine process and wires its pipes.
func (s *Session) start() error {
	if s.state != StateNotStarted {
		return nil
	}
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Stderr = s.cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SubprocessError{Message: "stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &SubprocessError{Message: "stdout pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return &SubprocessError{Message: "failed to start " + s.cfg.Command, Err: err}
	}

	s.cmd = cmd
	s.stdin = stdin
	s.startReader(stdout)
	s.state = StateStarted
	s.logger.Debug("engine started", "command", s.cfg.Command, "pid", cmd.Process.Pid)
	return nil
}

// startReader pumps lines from the engine's stdout into s.lines. The
// goroutine exits when the pipe closes; the closed channel is how the
// dispatch loop learns the process went away.
func (s *Session) startReader(r io.Reader) {
	lines := make(chan readResult)
	s.lines = lines
	go func() {
		defer close(lines)
		br := bufio.NewReaderSize(r, 1<<20)
		for {
			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				lines <- readResult{line: line}
			}
			if err != nil {
				if err != io.EOF {
					lines <- readResult{err: err}
				}
				return
			}
		}
	}()
}

// Initialize performs the handshake. Idempotent after first success.
func (s *Session) Initialize(ctx context.Context) error {
	if s.state == StateInitialized || s.state == StateRunning {
		return nil
	}
	if s.dead || s.state == StateTerminated {
		return &SubprocessError{Message: "session is dead"}
	}
	if err := s.start(); err != nil {
		return err
	}
	resp, err := s.Call(ctx, wire.MethodInitialize, wire.InitializeParams{Version: ProtocolVersion})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return &SubprocessError{Message: "initialize rejected: " + resp.Error.Message}
	}
	var result wire.InitializeResult
	if err := wire.DecodeResult(resp, &result); err != nil {
		return &SubprocessError{Message: "initialize response malformed", Err: err}
	}
	if result.Features == nil {
		return &SubprocessError{Message: "initialize response missing features"}
	}
	s.features = result.Features
	s.state = StateInitialized
	s.logger.Debug("engine initialized", "version", result.Version, "features", result.Features)
	return nil
}

// Call sends one correlated request and runs the read-dispatch loop
// until the matching response arrives or the timeout elapses. Callbacks
// received meanwhile are serviced against the drop registry before the
// outer response is consumed.
func (s *Session) Call(ctx context.Context, method string, params any) (*wire.Message, error) {
	if s.dead || s.state == StateTerminated || s.state == StateShuttingDown {
		return nil, &SubprocessError{Message: "session is dead"}
	}

	s.nextID++
	id := s.nextID
	req, err := wire.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	if err := s.writeMessage(req); err != nil {
		s.dead = true
		return nil, &SubprocessError{Message: "write to engine failed", Err: err}
	}

	prev := s.state
	s.state = StateRunning
	defer func() {
		if s.state == StateRunning {
			s.state = prev
		}
	}()

	// One timer spans the whole loop: the per-call timeout covers the
	// response and every callback serviced on the way to it.
	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	want := string(wire.NumberID(id))
	for {
		select {
		case res, ok := <-s.lines:
			if !ok {
				s.dead = true
				return nil, &SubprocessError{Message: "engine closed the pipe unexpectedly"}
			}
			if res.err != nil {
				s.dead = true
				return nil, &SubprocessError{Message: "read from engine failed", Err: res.err}
			}
			msg, err := wire.DecodeLine(res.line)
			if err != nil {
				// A malformed line fails this call but not the session;
				// correlation ids keep advancing on the next call.
				return nil, err
			}
			if s.cfg.Recorder != nil {
				s.cfg.Recorder.Record("recv", msg)
			}
			switch {
			case msg.IsRequest():
				if err := s.serviceCallback(msg); err != nil {
					s.dead = true
					return nil, err
				}
			case msg.IsResponse() && string(msg.ID) == want:
				return msg, nil
			default:
				// Mismatched correlation id. A slow or reordering
				// engine should not immediately fail the harness.
				s.logger.Warn("dropping response with mismatched id",
					"got", string(msg.ID), "want", want)
			}
		case <-ctx.Done():
			s.dead = true
			return nil, &SubprocessError{Message: "call cancelled", Err: ctx.Err()}
		case <-timer.C:
			s.dead = true
			return nil, &SubprocessError{
				Message: fmt.Sprintf("no response to %s after %s", method, s.cfg.Timeout),
			}
		}
	}
}

// Notify sends a fire-and-forget envelope. Write errors are returned
// but do not mark the session dead; Notify is only used on the way out.
func (s *Session) Notify(method string, params any) error {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.writeMessage(msg)
}

func (s *Session) writeMessage(m *wire.Message) error {
	line, err := wire.EncodeLine(m)
	if err != nil {
		return err
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.Record("send", m)
	}
	if _, err := s.stdin.Write(line); err != nil {
		return err
	}
	return nil
}

// ClearDrops resets the drop registry. Called once per test case so
// callback ids never collide across cases.
func (s *Session) ClearDrops() {
	s.drops.Clear()
}

// Shutdown stops the engine: a best-effort quit notification, then an
// interrupt, then a hard kill if the process lingers. Safe to call any
// number of times and never fails.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.state = StateShuttingDown
		if s.stdin != nil {
			// The pipe may already be broken; quit is advisory.
			_ = s.Notify(wire.MethodQuit, struct{}{})
			_ = s.stdin.Close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(os.Interrupt)
			done := make(chan struct{})
			go func() {
				// cmd.Wait, not Process.Wait: it also reaps the
				// stderr-copying goroutine exec.Cmd starts when Stderr
				// is not an *os.File.
				_ = s.cmd.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				_ = s.cmd.Process.Kill()
				<-done
			}
		}
		s.dead = true
		s.state = StateTerminated
		s.logger.Debug("engine shut down")
	})
}
