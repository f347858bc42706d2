// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for [Load].
const EnvironmentVariable = "BACKTOR_CONFIG"

// Config is the complete backtor configuration.
type Config struct {
	Tor    TorConfig    `yaml:"tor" json:"tor"`
	Server ServerConfig `yaml:"server" json:"server"`
	Client ClientConfig `yaml:"client" json:"client"`
}

// TorConfig configures the tor process backtor drives.
type TorConfig struct {
	// Executable is the tor binary, looked up in PATH when it has no
	// directory component. Default: tor
	Executable string `yaml:"executable" json:"executable"`

	// DataDirectory holds tor's state and the control socket.
	// Default: .backtor (relative to the working directory)
	DataDirectory string `yaml:"data_directory" json:"data_directory"`

	// ExtraArgs are appended to tor's command line.
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`
}

// ServerConfig configures `backtor serve`.
type ServerConfig struct {
	// Shell is the command line run per session. Empty runs the user's
	// login shell.
	Shell string `yaml:"shell" json:"shell"`

	// ShellPort is the virtual port of the shell service. Default: 23
	ShellPort uint16 `yaml:"shell_port" json:"shell_port"`

	// PTYRows and PTYCols size each session's terminal. Default: 24x80
	PTYRows uint16 `yaml:"pty_rows" json:"pty_rows"`
	PTYCols uint16 `yaml:"pty_cols" json:"pty_cols"`

	// ControlSocket is the Unix socket for `list` and `stop`.
	// Default: ${BACKTOR_DATA}/control.sock
	ControlSocket string `yaml:"control_socket" json:"control_socket"`

	// KeyFile holds the service seed, plain hex or age-encrypted.
	KeyFile string `yaml:"key_file" json:"key_file"`

	// Identity is the age identity file that decrypts KeyFile.
	Identity string `yaml:"identity" json:"identity"`

	// Forward switches to forward mode. Each entry is PORT=HOST:PORT.
	Forward []string `yaml:"forward" json:"forward"`
}

// ClientConfig configures `backtor connect`.
type ClientConfig struct {
	// Port is the virtual port to dial. Default: 23
	Port uint16 `yaml:"port" json:"port"`
}

// Default returns the configuration used when no file is given, and the
// base that a file is merged into.
func Default() *Config {
	return &Config{
		Tor: TorConfig{
			Executable:    "tor",
			DataDirectory: ".backtor",
		},
		Server: ServerConfig{
			ShellPort:     23,
			PTYRows:       24,
			PTYCols:       80,
			ControlSocket: "${BACKTOR_DATA}/control.sock",
		},
		Client: ClientConfig{
			Port: 23,
		},
	}
}

// Load loads the file named by BACKTOR_CONFIG, or returns the expanded
// defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of [Default] and
// expands variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Tor.DataDirectory = expandVars(c.Tor.DataDirectory, vars)
	vars["BACKTOR_DATA"] = c.Tor.DataDirectory

	c.Tor.Executable = expandVars(c.Tor.Executable, vars)
	c.Server.ControlSocket = expandVars(c.Server.ControlSocket, vars)
	c.Server.KeyFile = expandVars(c.Server.KeyFile, vars)
	c.Server.Identity = expandVars(c.Server.Identity, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Forward rules are
// checked for shape only; their full syntax is parsed by the serve
// command.
func (c *Config) Validate() error {
	var errs []error

	if c.Tor.Executable == "" {
		errs = append(errs, errors.New("tor.executable is required"))
	}
	if c.Tor.DataDirectory == "" {
		errs = append(errs, errors.New("tor.data_directory is required"))
	}
	if c.Server.ShellPort == 0 {
		errs = append(errs, errors.New("server.shell_port must be between 1 and 65535"))
	}
	if c.Server.PTYRows == 0 || c.Server.PTYCols == 0 {
		errs = append(errs, errors.New("server.pty_rows and server.pty_cols must be positive"))
	}
	if c.Server.ControlSocket == "" {
		errs = append(errs, errors.New("server.control_socket is required"))
	}
	if c.Server.Identity != "" && c.Server.KeyFile == "" {
		errs = append(errs, errors.New("server.identity requires server.key_file"))
	}
	for i, rule := range c.Server.Forward {
		if !strings.Contains(rule, "=") {
			errs = append(errs, fmt.Errorf("server.forward[%d]: %q is not PORT=HOST:PORT", i, rule))
		}
	}
	if c.Client.Port == 0 {
		errs = append(errs, errors.New("client.port must be between 1 and 65535"))
	}

	return errors.Join(errs...)
}
