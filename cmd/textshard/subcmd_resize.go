package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gitlab.com/gitlab-org/textshard/internal/coordinator"
)

const (
	addShardCmdName    = "add-shard"
	removeShardCmdName = "remove-shard"
)

// resizeSubcommand grows or shrinks the shard set by a single shard.
type resizeSubcommand struct {
	name        string
	description string
	resize      func(*coordinator.Coordinator, context.Context) error
	out         io.Writer
}

func newAddShardSubcommand(out io.Writer) *resizeSubcommand {
	return &resizeSubcommand{
		name:        addShardCmdName,
		description: "Adds one shard and rebalances the data across all shards.",
		resize:      (*coordinator.Coordinator).AddShard,
		out:         out,
	}
}

func newRemoveShardSubcommand(out io.Writer) *resizeSubcommand {
	return &resizeSubcommand{
		name:        removeShardCmdName,
		description: "Removes the shard with the highest id and rebalances the data across the remaining shards.",
		resize:      (*coordinator.Coordinator).RemoveShard,
		out:         out,
	}
}

func (cmd *resizeSubcommand) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.Usage = func() {
		printfErr("Description:\n	%s\n", cmd.description)
		fs.PrintDefaults()
	}
	return fs
}

func (cmd *resizeSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	if err := cmd.resize(c, ctx); err != nil {
		return err
	}

	mapping, err := c.GetAllShards(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "shard count is now %d\n", len(mapping))
	return nil
}
