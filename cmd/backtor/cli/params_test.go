// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type CounterFlags struct {
	Verbosity int
}

func (c *CounterFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.CountVarP(&c.Verbosity, "verbose", "v", "more logging")
}

type serveLikeParams struct {
	CounterFlags
	JSONOutput
	Key     string        `flag:"key" desc:"hex seed"`
	Port    uint16        `flag:"port,p" desc:"virtual port" default:"23"`
	Rows    int           `flag:"rows" default:"24"`
	Debug   bool          `flag:"debug"`
	Timeout time.Duration `flag:"timeout" default:"10s"`
	Forward []string      `flag:"forward" desc:"PORT=HOST:PORT"`
	Ignored string
}

func TestBindFlags_Types(t *testing.T) {
	var params serveLikeParams
	flagSet := FlagsFromParams("serve", &params)

	err := flagSet.Parse([]string{
		"-vv",
		"--json",
		"--key", "00ff",
		"-p", "2222",
		"--rows=40",
		"--debug",
		"--timeout", "1m",
		"--forward", "22=127.0.0.1:22",
		"--forward", "80=localhost:8080",
		"positional",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", params.Verbosity)
	}
	if !params.OutputJSON {
		t.Error("OutputJSON = false")
	}
	if params.Key != "00ff" || params.Port != 2222 || params.Rows != 40 || !params.Debug {
		t.Errorf("params = %+v", params)
	}
	if params.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", params.Timeout)
	}
	if len(params.Forward) != 2 || params.Forward[1] != "80=localhost:8080" {
		t.Errorf("Forward = %v", params.Forward)
	}
	if args := flagSet.Args(); len(args) != 1 || args[0] != "positional" {
		t.Errorf("Args() = %v, want [positional]", args)
	}
	if flagSet.Lookup("ignored") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	var params serveLikeParams
	if err := FlagsFromParams("serve", &params).Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Port != 23 || params.Rows != 24 || params.Timeout != 10*time.Second {
		t.Errorf("defaults not applied: %+v", params)
	}
	if params.Forward != nil {
		t.Errorf("Forward = %v, want nil", params.Forward)
	}
}

func TestBindFlags_Errors(t *testing.T) {
	var notStruct int
	if err := BindFlags(&notStruct, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a pointer to int")
	}
	if err := BindFlags(serveLikeParams{}, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a struct value")
	}

	var badDefault struct {
		Port uint16 `flag:"port" default:"70000"`
	}
	err := BindFlags(&badDefault, pflag.NewFlagSet("x", pflag.ContinueOnError))
	if err == nil || !strings.Contains(err.Error(), "--port") {
		t.Errorf("BindFlags with an out-of-range default = %v", err)
	}

	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a float32 field")
	}
}

func TestFlagsFromParams_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FlagsFromParams did not panic on a non-pointer")
		}
	}()
	FlagsFromParams("bad", serveLikeParams{})
}
