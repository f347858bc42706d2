// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
)

// Size is a terminal window size in character cells.
type Size struct {
	Rows uint16
	Cols uint16
}

// DefaultSize is the window size of a freshly spawned shell. Clients
// do not negotiate a size; full-screen programs see 24x80.
var DefaultSize = Size{Rows: 24, Cols: 80}

// DefaultTerm is set in the shell's environment when TERM is unset.
const DefaultTerm = "xterm-256color"

// SpawnError reports that a shell could not be started: the PTY could
// not be allocated or the command could not be executed. It is fatal
// to one connection only.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Process is a running shell attached to a PTY master.
type Process struct {
	command string
	cmd     *exec.Cmd
	master  *os.File

	exited  chan struct{}
	waitErr error

	terminateOnce sync.Once
	terminateErr  error
}

// Spawn starts command on a new PTY of the given size. An empty command
// runs [LoginShell]. The command string is split on whitespace into a
// program and its arguments; no shell quoting is interpreted. A zero
// size means [DefaultSize].
func Spawn(command string, size Size) (*Process, error) {
	if strings.TrimSpace(command) == "" {
		command = LoginShell()
	}
	if size.Rows == 0 || size.Cols == 0 {
		size = DefaultSize
	}

	fields := strings.Fields(command)
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Env = environment(os.Environ())
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	process := &Process{
		command: command,
		cmd:     cmd,
		master:  master,
		exited:  make(chan struct{}),
	}
	go func() {
		process.waitErr = cmd.Wait()
		close(process.exited)
	}()
	return process, nil
}

// environment returns env with TERM defaulted.
func environment(env []string) []string {
	for _, variable := range env {
		if value, ok := strings.CutPrefix(variable, "TERM="); ok && value != "" {
			return env
		}
	}
	return append(env, "TERM="+DefaultTerm)
}

// Command returns the command line the process was started with.
func (p *Process) Command() string { return p.command }

// Pid returns the operating system process ID.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Read reads shell output from the PTY master.
func (p *Process) Read(buffer []byte) (int, error) { return p.master.Read(buffer) }

// Write sends input to the shell through the PTY master.
func (p *Process) Write(buffer []byte) (int, error) { return p.master.Write(buffer) }

// Resize changes the PTY window size, delivering SIGWINCH to the
// shell's foreground process group.
func (p *Process) Resize(size Size) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// Exited is closed once the shell process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// ExitError returns the result of waiting on the process. It is only
// meaningful after [Process.Exited] is closed.
func (p *Process) ExitError() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Terminate kills the shell, closes the PTY master, and waits for the
// child to be reaped. Safe to call more than once and concurrently;
// every call returns the first call's result.
func (p *Process) Terminate() error {
	p.terminateOnce.Do(func() {
		var errs []error
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill shell: %w", err))
		}
		if err := p.master.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pty master: %w", err))
		}
		<-p.exited
		p.terminateErr = errors.Join(errs...)
	})
	return p.terminateErr
}

// Close terminates the process. It lets a Process be interrupted as an
// io.Closer.
func (p *Process) Close() error { return p.Terminate() }
