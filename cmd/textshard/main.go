// Command textshard splits a text file into shards stored in a data directory, keeps a mapping
// of the byte range every shard covers and maintains replicas of the shards.
//
// All subcommands read the configuration file given by -config. Without it, the defaults apply
// and environment variables prefixed with TEXTSHARD_ may override them.
//
// Build
//
// The subcommand "build" splits a file, or stdin when the file is "-", into count shards:
//
//     textshard -config PATH_TO_CONFIG build -count 4 -file data.txt
//
// Building fails if shards exist already.
//
// Resize
//
// The subcommands "add-shard" and "remove-shard" grow or shrink the shard set by one shard and
// rebalance the data across all shards:
//
//     textshard -config PATH_TO_CONFIG add-shard
//     textshard -config PATH_TO_CONFIG remove-shard
//
// Replication
//
// The subcommands "add-replication" and "remove-replication" add or remove one replication
// level. The subcommand "sync" restores lost primaries from their replicas and brings every
// shard to the same replication level:
//
//     textshard -config PATH_TO_CONFIG add-replication
//     textshard -config PATH_TO_CONFIG sync
//
// Inspection
//
// The subcommands "get-shard", "list-shards", "status" and "cat" print a single shard range,
// all shard ranges, a summary of the data directory and the reconstituted data respectively:
//
//     textshard -config PATH_TO_CONFIG get-shard -id 2
//     textshard -config PATH_TO_CONFIG cat > data.txt
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gitlab.com/gitlab-org/textshard/internal/config"
	"gitlab.com/gitlab-org/textshard/internal/log"
	"gitlab.com/gitlab-org/textshard/internal/version"
)

var (
	flagConfig  = flag.String("config", "", "Location for the config.toml")
	flagVersion = flag.Bool("version", false, "Print version and exit")
	logger      = log.Default()
)

const progname = "textshard"

func main() {
	flag.Usage = func() {
		cmds := make([]string, 0, len(subcommands))
		for k := range subcommands {
			cmds = append(cmds, k)
		}
		sort.Strings(cmds)

		printfErr("Usage of %s:\n", progname)
		flag.PrintDefaults()
		printfErr("  subcommand\n")
		printfErr("\tOne of %s\n", strings.Join(cmds, ", "))
	}
	flag.Parse()

	// If invoked with -version
	if *flagVersion {
		fmt.Println(version.GetVersionString())
		os.Exit(0)
	}

	conf, err := initConfig(*flagConfig)
	if err != nil {
		printfErr("%s: configuration error: %v\n", progname, err)
		os.Exit(1)
	}

	closers, err := configureLogging(conf)
	if err != nil {
		printfErr("%s: %v\n", progname, err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	code := subCommand(conf, args[0], args[1:])

	for _, closer := range closers {
		closer.Close()
	}

	os.Exit(code)
}

func initConfig(path string) (config.Config, error) {
	var conf config.Config
	var err error

	if path == "" {
		conf, err = config.FromEnvironment()
	} else {
		conf, err = config.FromFile(path)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("error reading config: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return config.Config{}, err
	}

	return conf, nil
}

func configureLogging(conf config.Config) ([]io.Closer, error) {
	log.Configure(log.Loggers, conf.Logging.Format, conf.Logging.Level)

	dir := conf.Logging.Dir
	if dir == "" {
		dir = os.Getenv(log.LogDirEnvKey)
	}
	if dir == "" {
		return nil, nil
	}

	closers := make([]io.Closer, 0, len(log.Loggers))
	for _, l := range log.Loggers {
		closer, err := log.AddFileOutput(l, dir)
		if err != nil {
			return closers, err
		}
		closers = append(closers, closer)
	}

	return closers, nil
}

func printfErr(format string, a ...interface{}) (int, error) {
	return fmt.Fprintf(os.Stderr, format, a...)
}
