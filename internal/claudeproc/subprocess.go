package claudeproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kandev/claude-acp-agent/internal/common/constants"
	"github.com/kandev/claude-acp-agent/internal/common/logger"
)

// maxLineSize bounds the stdout scanner's buffer; Claude CLI lines carry
// full assistant turns and can run well past bufio.Scanner's 64KiB default.
const maxLineSize = 10 * 1024 * 1024

// Spec is the set of knobs needed to spawn a Claude CLI child for one
// session: binary path, extra args, MCP config, and working directory.
type Spec struct {
	Bin        string
	ExtraArgs  []string
	Cwd        string
	McpConfig  string // path to a generated --mcp-config JSON file, if any
	Env        []string
}

// Subprocess wraps one running Claude CLI child process (C5): a single
// writer (WriteLine) and a single reader (Lines) around its stdin/stdout,
// plus graceful-then-forceful termination. Grounded on pkg/claudecode's
// Client send/readLoop split and process.Manager's Start/Stop lifecycle,
// collapsed into one type since this proxy only ever drives one ACP role.
type Subprocess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	log *logger.Logger

	lines chan string
	done  chan struct{}

	writeMu sync.Mutex

	exitErr   error
	exitOnce  sync.Once
	exitCh    chan struct{}

	readErr error
}

// Spawn starts the Claude CLI child described by spec and begins streaming
// its stdout lines. The caller must range over Lines() (or drain it) to
// avoid blocking the child on a full stdout pipe, and must eventually call
// Terminate.
func Spawn(spec Spec, log *logger.Logger) (*Subprocess, error) {
	args := append([]string{"--output-format", "stream-json", "--input-format", "stream-json", "--verbose"}, spec.ExtraArgs...)
	if spec.McpConfig != "" {
		args = append(args, "--mcp-config", spec.McpConfig)
	}

	cmd := exec.Command(spec.Bin, args...)
	cmd.Dir = spec.Cwd
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("claudeproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("claudeproc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("claudeproc: stderr pipe: %w", err)
	}

	// exec.Command, not CommandContext: a context-cancelled SIGKILL would
	// race the graceful stdin-close path in Terminate. Lifetime is managed
	// explicitly below instead.
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("claudeproc: start %s: %w", spec.Bin, err)
	}

	sp := &Subprocess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		log:    log,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
		exitCh: make(chan struct{}),
	}

	// readStdout and readStderr run under an errgroup so a scanner failure on
	// either pipe surfaces as one diagnosable error rather than a silently
	// swallowed log line; waitExit drives the process lifecycle independently
	// since it must observe cmd.Wait() regardless of how the pipes behave.
	var eg errgroup.Group
	eg.Go(func() error { return sp.readStdout() })
	eg.Go(func() error { return sp.readStderr() })
	go func() {
		if err := eg.Wait(); err != nil {
			sp.readErr = err
		}
	}()
	go sp.waitExit()

	return sp, nil
}

// WriteLine marshals v to JSON and writes it as one stream-json line. Safe
// for concurrent use; writes are serialized since stdin is a single stream.
func (s *Subprocess) WriteLine(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("claudeproc: marshal line: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("claudeproc: write stdin: %w", err)
	}
	return nil
}

// Lines returns the channel of raw stdout lines (one JSON object each,
// newline already stripped). The channel is closed when the child's stdout
// reaches EOF or the process exits.
func (s *Subprocess) Lines() <-chan string {
	return s.lines
}

// Done is closed once the child process has exited, for callers (procmanager)
// that need to detect an unexpected exit without consuming Lines().
func (s *Subprocess) Done() <-chan struct{} {
	return s.exitCh
}

// ExitErr returns the error the child exited with, if any. Only meaningful
// after Done() is closed.
func (s *Subprocess) ExitErr() error {
	return s.exitErr
}

// ReadErr returns the first stdout/stderr scanner error, if either pipe
// failed (e.g. a line past maxLineSize). Only meaningful after Done() is
// closed; nil on a clean EOF.
func (s *Subprocess) ReadErr() error {
	return s.readErr
}

func (s *Subprocess) readStdout() error {
	defer close(s.lines)
	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("claude CLI stdout scan error")
		}
		return fmt.Errorf("claudeproc: stdout: %w", err)
	}
	return nil
}

func (s *Subprocess) readStderr() error {
	scanner := bufio.NewScanner(s.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if s.log != nil {
			s.log.Sugar().Debugw("claude CLI stderr", "line", scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("claudeproc: stderr: %w", err)
	}
	return nil
}

func (s *Subprocess) waitExit() {
	err := s.cmd.Wait()
	s.exitOnce.Do(func() {
		s.exitErr = err
		close(s.done)
		close(s.exitCh)
	})
}

// Terminate closes stdin and sends SIGTERM (requesting a graceful exit),
// waits up to constants.SubprocessGracefulTimeout, then kills the process
// (not its process group) if it hasn't exited. Idempotent: safe to call
// after the process already exited on its own.
func (s *Subprocess) Terminate(ctx context.Context) error {
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
	}

	timeout := constants.SubprocessGracefulTimeout
	select {
	case <-s.exitCh:
		return nil
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	select {
	case <-s.exitCh:
		return nil
	default:
	}

	if s.log != nil {
		s.log.Warn("claude CLI did not exit after stdin close and SIGTERM, killing")
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	select {
	case <-s.exitCh:
	case <-time.After(constants.SubprocessGracefulTimeout):
	}
	return nil
}
