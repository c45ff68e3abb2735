package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gitlab.com/gitlab-org/textshard/internal/coordinator"
)

const (
	getShardCmdName   = "get-shard"
	listShardsCmdName = "list-shards"
	statusCmdName     = "status"
	catCmdName        = "cat"
)

var errNoShardID = errors.New("the -id flag must be passed")

type getShardSubcommand struct {
	out io.Writer
	id  int
}

func newGetShardSubcommand(out io.Writer) *getShardSubcommand {
	return &getShardSubcommand{out: out}
}

func (cmd *getShardSubcommand) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(getShardCmdName, flag.ContinueOnError)
	fs.IntVar(&cmd.id, "id", -1, "id of the shard to print")
	return fs
}

func (cmd *getShardSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	if cmd.id < 0 {
		return errNoShardID
	}

	r, err := c.GetShard(ctx, cmd.id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "shard %d: %s, %d bytes\n", cmd.id, r, r.Len())
	return nil
}

type listShardsSubcommand struct {
	out io.Writer
}

func newListShardsSubcommand(out io.Writer) *listShardsSubcommand {
	return &listShardsSubcommand{out: out}
}

func (cmd *listShardsSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(listShardsCmdName, flag.ContinueOnError)
}

func (cmd *listShardsSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	mapping, err := c.GetAllShards(ctx)
	if err != nil {
		return err
	}

	if len(mapping) == 0 {
		fmt.Fprintln(cmd.out, "no shards have been built yet")
		return nil
	}

	table := tablewriter.NewWriter(cmd.out)
	table.SetHeader([]string{"Shard", "Start", "End", "Bytes"})
	for _, id := range mapping.IDs() {
		r := mapping[id]
		table.Append([]string{
			strconv.Itoa(id),
			strconv.FormatInt(r.Start, 10),
			strconv.FormatInt(r.End, 10),
			strconv.FormatInt(r.Len(), 10),
		})
	}
	table.Render()

	return nil
}

type statusSubcommand struct {
	out io.Writer
}

func newStatusSubcommand(out io.Writer) *statusSubcommand {
	return &statusSubcommand{out: out}
}

func (cmd *statusSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(statusCmdName, flag.ContinueOnError)
}

func (cmd *statusSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	mappingState := "valid"
	if status.MappingErr != nil {
		mappingState = status.MappingErr.Error()
	}

	fmt.Fprintf(cmd.out, "shards: %d\n", status.Shards)
	fmt.Fprintf(cmd.out, "bytes: %d\n", status.Bytes)
	fmt.Fprintf(cmd.out, "replication level: %d\n", status.MaxLevel)
	fmt.Fprintf(cmd.out, "mapping: %s\n", mappingState)

	for id := 0; id < status.Shards; id++ {
		if levels := status.Levels[id]; len(levels) != status.MaxLevel {
			fmt.Fprintf(cmd.out, "shard %d is replicated to levels %v, run sync to repair\n", id, levels)
		}
	}

	return nil
}

type catSubcommand struct {
	out io.Writer
}

func newCatSubcommand(out io.Writer) *catSubcommand {
	return &catSubcommand{out: out}
}

func (cmd *catSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(catCmdName, flag.ContinueOnError)
}

func (cmd *catSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, c *coordinator.Coordinator) error {
	data, err := c.ReadAll(ctx)
	if err != nil {
		return err
	}

	_, err = cmd.out.Write(data)
	return err
}
