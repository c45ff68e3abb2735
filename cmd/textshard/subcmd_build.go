package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gitlab.com/gitlab-org/textshard/internal/coordinator"
)

const buildCmdName = "build"

var errNoInputFile = errors.New("the -file flag must be passed, use - to read from stdin")

type buildSubcommand struct {
	in    io.Reader
	out   io.Writer
	count int
	file  string
}

func newBuildSubcommand(in io.Reader, out io.Writer) *buildSubcommand {
	return &buildSubcommand{in: in, out: out}
}

func (cmd *buildSubcommand) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(buildCmdName, flag.ContinueOnError)
	fs.IntVar(&cmd.count, "count", 1, "number of shards to split the data into")
	fs.StringVar(&cmd.file, "file", "", "file to shard, - reads from stdin")
	fs.Usage = func() {
		printfErr("Description:\n" +
			"	Splits the file into count shards and records the byte range of every shard.\n" +
			"	Fails if shards were built already.\n")
		fs.PrintDefaults()
	}
	return fs
}

func (cmd *buildSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	data, err := cmd.readInput()
	if err != nil {
		return err
	}

	if err := c.Build(ctx, cmd.count, data); err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "built %d shards from %d bytes\n", cmd.count, len(data))
	return nil
}

func (cmd *buildSubcommand) readInput() ([]byte, error) {
	switch cmd.file {
	case "":
		return nil, errNoInputFile
	case "-":
		data, err := io.ReadAll(cmd.in)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(cmd.file)
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
		return data, nil
	}
}
