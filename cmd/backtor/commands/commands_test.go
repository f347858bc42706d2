// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/lib/config"
)

func TestRoot_Help(t *testing.T) {
	root := Root()
	var help bytes.Buffer
	root.HelpOutput = &help

	if err := root.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute(--help): %v", err)
	}
	for _, want := range []string{"serve", "connect", "list", "stop", "address", "keygen", "version", "--key-file", "--forward"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("root help missing %q", want)
		}
	}
}

func TestRoot_ValidationBeforeStartingTor(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	tests := [][]string{
		{"--key", "not-hex"},
		{"serve", "--key", "00ff"},
		{"serve", "--forward", "22"},
		{"serve", "unexpected"},
		{"serve", "--kye", zeroSeedHex},
		{"connect"},
		{"connect", "example.onion"},
		{"stop"},
		{"address"},
		{"keygen", "--recipient", "age1example"},
		{"conect", zeroSeedAddress},
	}
	for _, args := range tests {
		err := Root().Execute(args)
		if cli.CategoryOf(err) != cli.CategoryValidation {
			t.Errorf("Execute(%q) = %v, want a validation error", args, err)
		}
	}
}

func TestRoot_ConfigErrorsAreValidation(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	err := Root().Execute([]string{"address", "--config", "/nonexistent/backtor.yaml", "--key", zeroSeedHex})
	if cli.CategoryOf(err) != cli.CategoryValidation {
		t.Errorf("Execute with a missing config file = %v, want a validation error", err)
	}
}
