package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/sakashimaa/sales-pipeline/pkg/config"
)

const (
	modeBatch  = "batch"
	modeStream = "stream"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage")

const usage = `Usage: generator <mode> [options]

Modes:
  batch    write historical sales records to a CSV file
  stream   publish live sales records to an event stream until stopped

Run "generator <mode> -h" for the options of a mode.
`

// parseArgs applies the command line on top of cfg and returns the mode.
// Flags default to the loaded configuration.
func parseArgs(args []string, cfg *config.Config, stderr io.Writer) (string, error) {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return "", errUsage
	}

	mode, rest := args[0], args[1:]

	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch mode {
	case modeBatch:
		fs.IntVar(&cfg.Batch.Records, "records", cfg.Batch.Records, "Number of records to generate")
		fs.StringVar(&cfg.Batch.Filename, "filename", cfg.Batch.Filename, "Output CSV file name")
	case modeStream:
		fs.StringVar(&cfg.Stream.Name, "stream-name", cfg.Stream.Name, "Name of the destination stream, topic or exchange (required)")
		fs.StringVar(&cfg.Stream.Region, "region", cfg.Stream.Region, "Region of the destination stream (required)")
		fs.StringVar(&cfg.Stream.Driver, "driver", cfg.Stream.Driver, "Destination driver: kinesis, kafka, rabbitmq or memory")
		fs.StringVar(&cfg.Stream.Pacing, "pacing", cfg.Stream.Pacing, "Pause policy between records: fixed or random")
		fs.IntVar(&cfg.Stream.MaxEvents, "max-events", cfg.Stream.MaxEvents, "Stop after this many published records, 0 for no limit")
	default:
		fmt.Fprintf(stderr, "unknown mode %q\n\n%s", mode, usage)
		return "", errUsage
	}

	if err := fs.Parse(rest); err != nil {
		return "", err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return "", errUsage
	}

	var err error
	if mode == modeStream {
		err = cfg.ValidateStream()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		fs.Usage()
		return "", errUsage
	}

	return mode, nil
}
