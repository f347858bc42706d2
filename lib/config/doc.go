// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for backtor.
//
// Configuration is optional. When used, it is loaded from a single file
// named by the --config flag (via [LoadFile]) or the BACKTOR_CONFIG
// environment variable (via [Load]). There is no automatic discovery.
// Files ending in .json or .jsonc are parsed as JSON with comments and
// trailing commas; everything else is parsed as YAML.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${BACKTOR_DATA} (the Tor data directory) and
// ${VAR:-default} patterns are expanded. Command-line flags override
// file values; no other environment variables do.
//
// This package depends on no other backtor packages.
package config
