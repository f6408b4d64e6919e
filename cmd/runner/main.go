package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/stringintech/mcp-conformance-tests/runner"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaults := runner.DefaultConfig()

	configPath := pflag.String("config", "", "YAML file with base_url, timeout, protocol_version, command, tool_name, extended")
	baseURL := pflag.String("base-url", defaults.BaseURL, "MCP endpoint URL")
	timeout := pflag.Float64("timeout", defaults.Timeout.Seconds(), "HTTP timeout in seconds for each request")
	protocolVersion := pflag.String("protocol-version", defaults.ProtocolVersion, "Value for the MCP-Protocol-Version request header")
	command := pflag.String("command", defaults.Command, "Tool command used in the tools/call result shape case")
	toolName := pflag.String("tool-name", defaults.ToolName, "Name of the tool the endpoint must expose")
	extended := pflag.Bool("extended", false, "Also run the extended cases (invalid requests, schema validation, id echo)")
	list := pflag.Bool("list", false, "Print the case names and exit")
	logLevel := pflag.String("log-level", "warn", "Log level for diagnostics on stderr (debug, info, warn, error)")
	verboseCount := pflag.CountP("verbose", "v", "Verbose mode: -v prints the HTTP exchanges of failed cases; -vv prints them for all cases")
	pflag.Parse()

	// Convert verbose count to verbosity level
	verbosity := runner.VerbosityQuiet
	if *verboseCount >= 2 {
		verbosity = runner.VerbosityAlways
	} else if *verboseCount == 1 {
		verbosity = runner.VerbosityOnFailure
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --log-level: %v\n", err)
		return 2
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	cfg := defaults
	if *configPath != "" {
		cfg, err = runner.LoadConfigFile(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 2
		}
	}

	// Flags given on the command line win over the config file
	flags := pflag.CommandLine
	if flags.Changed("base-url") {
		cfg.BaseURL = *baseURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = runner.SecondsToDuration(*timeout)
	}
	if flags.Changed("protocol-version") {
		cfg.ProtocolVersion = *protocolVersion
	}
	if flags.Changed("command") {
		cfg.Command = *command
	}
	if flags.Changed("tool-name") {
		cfg.ToolName = *toolName
	}
	if flags.Changed("extended") {
		cfg.Extended = *extended
	}

	cases := runner.Catalog(cfg.Extended)
	if *list {
		for _, c := range cases {
			fmt.Println(c.Name)
		}
		return 0
	}

	testRunner, err := runner.NewTestRunner(cfg, os.Stdout, runner.WithLogger(log), runner.WithVerbosity(verbosity))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating test runner: %v\n", err)
		if errors.Is(err, runner.ErrInvalidConfig) {
			pflag.Usage()
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := testRunner.Run(ctx, cases)
	return result.ExitCode()
}
