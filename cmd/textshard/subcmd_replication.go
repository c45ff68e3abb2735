package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gitlab.com/gitlab-org/textshard/internal/coordinator"
)

const (
	addReplicationCmdName    = "add-replication"
	removeReplicationCmdName = "remove-replication"
	syncCmdName              = "sync"
)

type addReplicationSubcommand struct {
	out io.Writer
}

func newAddReplicationSubcommand(out io.Writer) *addReplicationSubcommand {
	return &addReplicationSubcommand{out: out}
}

func (cmd *addReplicationSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(addReplicationCmdName, flag.ContinueOnError)
}

func (cmd *addReplicationSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	level, err := c.AddReplicationLevel(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "added replication level %d\n", level)
	return nil
}

type removeReplicationSubcommand struct {
	out io.Writer
}

func newRemoveReplicationSubcommand(out io.Writer) *removeReplicationSubcommand {
	return &removeReplicationSubcommand{out: out}
}

func (cmd *removeReplicationSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(removeReplicationCmdName, flag.ContinueOnError)
}

func (cmd *removeReplicationSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	level, err := c.RemoveReplicationLevel(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "removed replication level %d\n", level)
	return nil
}

type syncSubcommand struct {
	out io.Writer
}

func newSyncSubcommand(out io.Writer) *syncSubcommand {
	return &syncSubcommand{out: out}
}

func (cmd *syncSubcommand) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(syncCmdName, flag.ContinueOnError)
	fs.Usage = func() {
		printfErr("Description:\n" +
			"	Restores missing primaries from their replicas and replicates every shard to the\n" +
			"	highest replication level found.\n")
		fs.PrintDefaults()
	}
	return fs
}

func (cmd *syncSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	report, err := c.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "restored %d primaries, rewrote %d replicas, pruned %d files, replication level %d\n",
		len(report.Restored), len(report.Rewritten), len(report.Pruned), report.MaxLevel)

	for _, id := range report.Unrecoverable {
		fmt.Fprintf(cmd.out, "shard %d is lost: neither primary nor replica found\n", id)
	}

	return nil
}
