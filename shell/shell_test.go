// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package shell

import (
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/backtor/backtor/lib/testutil"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no PTY support")
	}
}

func TestLookupPasswdShell(t *testing.T) {
	passwd := strings.Join([]string{
		"# comment line",
		"root:x:0:0:root:/root:/bin/bash",
		"daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin",
		"",
		"broken:x:1000",
		"alice:x:1000:1000:Alice,,,:/home/alice:/usr/bin/zsh",
		"noshell:x:1001:1001::/home/noshell:",
	}, "\n")

	tests := []struct {
		uid  int
		want string
	}{
		{0, "/bin/bash"},
		{1000, "/usr/bin/zsh"},
		{1001, ""},
		{4242, ""},
	}
	for _, test := range tests {
		if got := lookupPasswdShell(strings.NewReader(passwd), test.uid); got != test.want {
			t.Errorf("lookupPasswdShell(uid %d) = %q, want %q", test.uid, got, test.want)
		}
	}
}

func TestLoginShell_PrefersEnvironment(t *testing.T) {
	t.Setenv("SHELL", "/opt/custom/fish")
	if got := LoginShell(); got != "/opt/custom/fish" {
		t.Errorf("LoginShell() = %q, want $SHELL", got)
	}
}

func TestLoginShell_FallsBack(t *testing.T) {
	t.Setenv("SHELL", "")
	if got := LoginShell(); got == "" {
		t.Error("LoginShell() returned an empty command")
	}
}

func TestEnvironment(t *testing.T) {
	withoutTerm := environment([]string{"HOME=/root"})
	if !slices.Contains(withoutTerm, "TERM="+DefaultTerm) {
		t.Errorf("environment without TERM = %v, want TERM=%s added", withoutTerm, DefaultTerm)
	}

	withTerm := environment([]string{"TERM=screen"})
	if len(withTerm) != 1 || withTerm[0] != "TERM=screen" {
		t.Errorf("environment with TERM = %v, want unchanged", withTerm)
	}

	emptyTerm := environment([]string{"TERM="})
	if !slices.Contains(emptyTerm, "TERM="+DefaultTerm) {
		t.Errorf("environment with empty TERM = %v, want default added", emptyTerm)
	}
}

func TestSpawn_Interactive(t *testing.T) {
	requireShell(t)

	process, err := Spawn("/bin/sh", Size{Rows: 30, Cols: 100})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer process.Terminate()

	if process.Pid() <= 0 {
		t.Errorf("Pid() = %d", process.Pid())
	}
	if process.Command() != "/bin/sh" {
		t.Errorf("Command() = %q", process.Command())
	}

	// The arithmetic keeps the echoed input from matching.
	if _, err := process.Write([]byte("echo backtor-$((6*7))\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	testutil.ReadUntil(t, process, "backtor-42", 5*time.Second)
}

func TestSpawn_DefaultSize(t *testing.T) {
	requireShell(t)

	process, err := Spawn("/bin/sh", Size{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer process.Terminate()

	transcript := testutil.NewTranscript(process)
	if _, err := process.Write([]byte("stty size\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	transcript.WaitFor(t, "24 80", 5*time.Second)

	if err := process.Resize(Size{Rows: 50, Cols: 132}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if _, err := process.Write([]byte("stty size\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	transcript.WaitFor(t, "50 132", 5*time.Second)
}

func TestSpawn_CommandNotFound(t *testing.T) {
	_, err := Spawn("/nonexistent/backtor-shell", DefaultSize)
	if err == nil {
		t.Fatal("Spawn succeeded for a missing command")
	}
	var spawnError *SpawnError
	if !errors.As(err, &spawnError) {
		t.Fatalf("error %T is not a *SpawnError", err)
	}
	if spawnError.Command != "/nonexistent/backtor-shell" {
		t.Errorf("SpawnError.Command = %q", spawnError.Command)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v does not wrap os.ErrNotExist", err)
	}
}

func TestTerminate_Idempotent(t *testing.T) {
	requireShell(t)

	process, err := Spawn("/bin/sh", DefaultSize)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	first := process.Terminate()
	if first != nil {
		t.Errorf("Terminate: %v", first)
	}
	testutil.RequireClosed(t, process.Exited(), 5*time.Second, "shell was not reaped")
	if second := process.Terminate(); second != first {
		t.Errorf("second Terminate = %v, want %v", second, first)
	}
	if err := process.Close(); err != first {
		t.Errorf("Close after Terminate = %v, want %v", err, first)
	}
	if process.ExitError() == nil {
		t.Error("ExitError() = nil for a killed shell")
	}
}

func TestTerminate_AfterExit(t *testing.T) {
	requireShell(t)

	process, err := Spawn("/bin/sh", DefaultSize)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := process.Write([]byte("exit 0\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	testutil.RequireClosed(t, process.Exited(), 5*time.Second, "shell did not exit")
	if err := process.Terminate(); err != nil {
		t.Errorf("Terminate after exit: %v", err)
	}
}
