// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package shell

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	passwdPath   = "/etc/passwd"
	fallbackUnix = "/bin/sh"
)

// LoginShell returns the shell to run for the current user: $SHELL if
// set, otherwise the login shell for the current uid in /etc/passwd,
// otherwise /bin/sh.
func LoginShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if file, err := os.Open(passwdPath); err == nil {
		defer file.Close()
		if shell := lookupPasswdShell(file, os.Getuid()); shell != "" {
			return shell
		}
	}
	return fallbackUnix
}

// lookupPasswdShell scans passwd(5) entries for uid and returns its
// login shell, or "" if there is no entry or the field is empty.
func lookupPasswdShell(passwd io.Reader, uid int) string {
	want := strconv.Itoa(uid)
	scanner := bufio.NewScanner(passwd)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// name:password:uid:gid:gecos:home:shell
		fields := strings.Split(line, ":")
		if len(fields) != 7 || fields[2] != want {
			continue
		}
		return strings.TrimSpace(fields[6])
	}
	return ""
}
