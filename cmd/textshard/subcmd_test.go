package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/textshard/internal/config"
	"gitlab.com/gitlab-org/textshard/internal/coordinator"
	"gitlab.com/gitlab-org/textshard/internal/replication"
	"gitlab.com/gitlab-org/textshard/internal/testhelper"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = filepath.Join(testhelper.TempDir(t), "data")
	require.NoError(t, cfg.Validate())

	return cfg
}

// run executes the subcommand created by newCmd and returns what it printed.
func run(t *testing.T, cfg config.Config, newCmd func(out *bytes.Buffer) subcmd, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := testhelper.Context()
	defer cancel()

	var out bytes.Buffer
	err := runSubcommand(ctx, cfg, prometheus.NewRegistry(), newCmd(&out), args)

	return out.String(), err
}

func buildFrom(in string) func(*bytes.Buffer) subcmd {
	return func(out *bytes.Buffer) subcmd { return newBuildSubcommand(strings.NewReader(in), out) }
}

func addShard(out *bytes.Buffer) subcmd          { return newAddShardSubcommand(out) }
func removeShard(out *bytes.Buffer) subcmd       { return newRemoveShardSubcommand(out) }
func addReplication(out *bytes.Buffer) subcmd    { return newAddReplicationSubcommand(out) }
func removeReplication(out *bytes.Buffer) subcmd { return newRemoveReplicationSubcommand(out) }
func syncShards(out *bytes.Buffer) subcmd        { return newSyncSubcommand(out) }
func getShard(out *bytes.Buffer) subcmd          { return newGetShardSubcommand(out) }
func listShards(out *bytes.Buffer) subcmd        { return newListShardsSubcommand(out) }
func status(out *bytes.Buffer) subcmd            { return newStatusSubcommand(out) }
func cat(out *bytes.Buffer) subcmd               { return newCatSubcommand(out) }

func TestSubcommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, buildFrom("abcdefghij"), "-count", "3", "-file", "-")
	require.NoError(t, err)
	require.Equal(t, "built 3 shards from 10 bytes\n", out)

	_, err = run(t, cfg, buildFrom("abcdefghij"), "-count", "3", "-file", "-")
	require.True(t, errors.Is(err, coordinator.ErrAlreadyBuilt))

	out, err = run(t, cfg, getShard, "-id", "2")
	require.NoError(t, err)
	require.Equal(t, "shard 2: [6, 10), 4 bytes\n", out)

	_, err = run(t, cfg, getShard, "-id", "3")
	var notFound *coordinator.NotFoundError
	require.True(t, errors.As(err, &notFound))

	out, err = run(t, cfg, addReplication)
	require.NoError(t, err)
	require.Equal(t, "added replication level 1\n", out)

	out, err = run(t, cfg, addShard)
	require.NoError(t, err)
	require.Equal(t, "shard count is now 4\n", out)

	out, err = run(t, cfg, removeShard)
	require.NoError(t, err)
	require.Equal(t, "shard count is now 3\n", out)

	require.NoError(t, os.Remove(filepath.Join(cfg.DataDir, "0.txt")))

	out, err = run(t, cfg, syncShards)
	require.NoError(t, err)
	require.Equal(t, "restored 1 primaries, rewrote 0 replicas, pruned 0 files, replication level 1\n", out)

	out, err = run(t, cfg, status)
	require.NoError(t, err)
	require.Equal(t, "shards: 3\nbytes: 10\nreplication level: 1\nmapping: valid\n", out)

	out, err = run(t, cfg, listShards)
	require.NoError(t, err)
	require.Contains(t, out, "SHARD")
	require.Contains(t, out, "BYTES")
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 7)

	out, err = run(t, cfg, cat)
	require.NoError(t, err)
	require.Equal(t, "abcdefghij", out)

	out, err = run(t, cfg, removeReplication)
	require.NoError(t, err)
	require.Equal(t, "removed replication level 1\n", out)

	_, err = run(t, cfg, removeReplication)
	require.Equal(t, replication.ErrReplicationExhausted, err)

	require.Equal(t, map[string]string{
		"0.txt":        "abc",
		"1.txt":        "def",
		"2.txt":        "ghij",
		"mapping.json": "{\n  \"0\": {\n    \"start\": 0,\n    \"end\": 3\n  },\n  \"1\": {\n    \"start\": 3,\n    \"end\": 6\n  },\n  \"2\": {\n    \"start\": 6,\n    \"end\": 10\n  }\n}\n",
	}, testhelper.DirContents(t, cfg.DataDir))
}

func TestBuildSubcommand_file(t *testing.T) {
	cfg := testConfig(t)

	input := filepath.Join(testhelper.TempDir(t), "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("abcdefghijklmnopqrstuvwxyz"), 0o644))

	out, err := run(t, cfg, buildFrom(""), "-count", "4", "-file", input)
	require.NoError(t, err)
	require.Equal(t, "built 4 shards from 26 bytes\n", out)

	require.Equal(t, map[string]string{
		"0.txt": "abcdef",
		"1.txt": "ghijkl",
		"2.txt": "mnopqr",
		"3.txt": "stuvwxyz",
	}, shardFiles(t, cfg.DataDir))
}

func TestBuildSubcommand_errors(t *testing.T) {
	for _, tc := range []struct {
		desc        string
		args        []string
		expectedErr error
	}{
		{
			desc:        "no input",
			args:        []string{"-count", "2"},
			expectedErr: errNoInputFile,
		},
		{
			desc:        "missing input",
			args:        []string{"-count", "2", "-file", "/does/not/exist"},
			expectedErr: os.ErrNotExist,
		},
		{
			desc:        "positional arguments",
			args:        []string{"-count", "2", "-file", "-", "extra"},
			expectedErr: unexpectedPositionalArgsError{Command: buildCmdName},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := run(t, testConfig(t), buildFrom("abc"), tc.args...)
			require.True(t, errors.Is(err, tc.expectedErr), "unexpected error: %v", err)
		})
	}
}

func TestSubcommands_notBuilt(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, listShards)
	require.NoError(t, err)
	require.Equal(t, "no shards have been built yet\n", out)

	for _, newCmd := range []func(*bytes.Buffer) subcmd{addShard, removeShard, cat} {
		_, err := run(t, cfg, newCmd)
		require.True(t, errors.Is(err, coordinator.ErrNotBuilt))
	}

	_, err = run(t, cfg, getShard)
	require.Equal(t, errNoShardID, err)
}

func TestRunSubcommand_metricsTextfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prometheus.Textfile = filepath.Join(testhelper.TempDir(t), "textshard.prom")

	_, err := run(t, cfg, buildFrom("abcd"), "-count", "2", "-file", "-")
	require.NoError(t, err)

	metrics := string(testhelper.MustReadFile(t, cfg.Prometheus.Textfile))
	require.Contains(t, metrics, `textshard_operations_total{operation="build",result="success"} 1`)
	require.Contains(t, metrics, "textshard_shards 2")
}

func TestRunSubcommand_memoryIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = config.IndexBackendMemory

	_, err := run(t, cfg, buildFrom("abcd"), "-count", "2", "-file", "-")
	require.NoError(t, err)

	_, statErr := os.Stat(cfg.IndexPath())
	require.True(t, os.IsNotExist(statErr))

	// Every invocation starts with an empty index, the shard files of the first build must survive.
	_, err = run(t, cfg, buildFrom("wxyz"), "-count", "2", "-file", "-")
	require.True(t, errors.Is(err, coordinator.ErrUnmappedShards))

	out, err := run(t, cfg, syncShards)
	require.NoError(t, err)
	require.Equal(t, "restored 0 primaries, rewrote 0 replicas, pruned 0 files, replication level 0\n", out)

	require.Equal(t, map[string]string{
		"0.txt": "ab",
		"1.txt": "cd",
	}, testhelper.DirContents(t, cfg.DataDir))
}

func shardFiles(t *testing.T, dir string) map[string]string {
	files := testhelper.DirContents(t, dir)
	delete(files, "mapping.json")
	return files
}
