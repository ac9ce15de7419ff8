// Command walctl inspects and recovers paged write-ahead logs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haorendashu/pagewal/src/record"
)

type globalOptions struct {
	dir      string
	name     string
	pageSize int
	verbose  bool
}

func (g *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (g *globalOptions) codec() (record.Codec, error) {
	return record.NewCodec(g.pageSize)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "walctl",
		Short:         "Inspect, validate and recover paged write-ahead logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dir, "dir", "", "WAL directory")
	rootCmd.PersistentFlags().StringVar(&opts.name, "name", "wal", "Segment file prefix")
	rootCmd.PersistentFlags().IntVar(&opts.pageSize, "page-size", 4096, "Page size of UpdatePage records")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newValidateCmd(opts))
	rootCmd.AddCommand(newDumpCmd(opts))
	rootCmd.AddCommand(newFrameCmd(opts))
	rootCmd.AddCommand(newRecoverCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
