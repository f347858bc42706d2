// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package shell

import (
	"os"
	"path/filepath"
)

// LoginShell returns Windows PowerShell from System32 if present, then
// PowerShell 7 from Program Files, then cmd.exe.
func LoginShell() string {
	systemRoot := os.Getenv("SystemRoot")
	if systemRoot == "" {
		systemRoot = `C:\Windows`
	}
	candidates := []string{
		filepath.Join(systemRoot, "System32", "WindowsPowerShell", "v1.0", "powershell.exe"),
		`C:\Program Files\PowerShell\7\pwsh.exe`,
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return "cmd.exe"
}
