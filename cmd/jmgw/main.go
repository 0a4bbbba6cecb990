// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/jimengapi/jimeng-gateway/internal/version"
)

type (
	// cmd corresponds to the top-level `jmgw` command.
	cmd struct {
		// Version is the sub-command to show the version.
		Version struct{} `cmd:"" help:"Show version."`
		// Run is the sub-command parsed by the `cmdRun` struct.
		Run cmdRun `cmd:"" help:"Run the gateway."`
		// Healthcheck is the sub-command to check if the jmgw server is healthy.
		Healthcheck cmdHealthcheck `cmd:"" help:"Docker HEALTHCHECK command."`
	}
	// cmdRun corresponds to the `jmgw run` command.
	cmdRun struct {
		Debug          bool   `help:"Enable debug logging emitted to stderr."`
		Addr           string `help:"Listen address of the public API server." default:":8000"`
		AdminPort      int    `help:"HTTP port for the admin server (serves /metrics and /health endpoints)." default:"1064"`
		FailCodeTable  string `name:"fail-code-table" help:"Path to a YAML file replacing the default fail-code classification." type:"path"`
		Tokens         string `help:"Comma-separated session tokens used when a request carries no Authorization header." env:"JIMENG_API_TOKEN"`
		StrictModelMap bool   `name:"strict-model-map" help:"Reject unknown models on international backends instead of falling back to the default." env:"JMGW_STRICT_MODEL_MAP"`
	}
	// cmdHealthcheck corresponds to the `jmgw healthcheck` command.
	cmdHealthcheck struct {
		AdminPort int `help:"Admin port to probe." default:"1064"`
	}
)

type (
	runFn         func(context.Context, cmdRun, io.Writer, io.Writer) error
	healthcheckFn func(context.Context, int, io.Writer, io.Writer) error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, run, healthcheck)
}

// doMain parses the command line arguments and executes the selected
// command. stdout, stderr, exitFn, rf and hf are parameters for testing.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int),
	rf runFn,
	hf healthcheckFn,
) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("jmgw"),
		kong.Description("Jimeng Gateway CLI"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch parsed.Command() {
	case "version":
		_, _ = fmt.Fprintf(stdout, "Jimeng Gateway CLI: %s\n", version.Parse())
	case "run":
		if err := rf(ctx, c.Run, stdout, stderr); err != nil {
			log.Fatalf("Error running: %v", err)
		}
	case "healthcheck":
		if err := hf(ctx, c.Healthcheck.AdminPort, stdout, stderr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	default:
		panic("unreachable")
	}
}
