package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
	"github.com/haorendashu/pagewal/src/wal"
)

func describe(r record.Record) string {
	switch r := r.(type) {
	case *record.UpdatePage:
		return fmt.Sprintf("file=%d page=%d initial=%s chunks=%d", r.FileID, r.PageIndex, r.InitialLSN, r.Changes.ChunkCount())
	case *record.FileCreated:
		return fmt.Sprintf("file=%d name=%q", r.FileID, r.FileName)
	case *record.FileDeleted:
		return fmt.Sprintf("file=%d", r.FileID)
	case *record.FileTruncated:
		return fmt.Sprintf("file=%d", r.FileID)
	case *record.AtomicUnitStart:
		return fmt.Sprintf("rollback_supported=%v", r.RollbackSupported)
	case *record.AtomicUnitStartMetadata:
		return fmt.Sprintf("rollback_supported=%v metadata=%d bytes", r.RollbackSupported, len(r.Metadata))
	case *record.AtomicUnitEnd:
		return fmt.Sprintf("rollback=%v metadata=%d", r.Rollback, len(r.Metadata))
	case *record.HighLevelTransactionChange:
		return fmt.Sprintf("payload=%d bytes", len(r.Payload))
	case *record.Metadata:
		return fmt.Sprintf("payload=%d bytes", len(r.Payload))
	}
	return ""
}

func printEntry(out io.Writer, lsn types.LSN, r record.Record) {
	unit := "-"
	if u, ok := r.(record.UnitRecord); ok {
		unit = fmt.Sprint(u.UnitID())
	}
	fmt.Fprintf(out, "%s\t%s\tunit=%s\t%s\n", lsn, r.Kind(), unit, describe(r))
}

func newDumpCmd(opts *globalOptions) *cobra.Command {
	var skipEmpty bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print one line per record: LSN, kind, unit and a short description",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dir == "" {
				return fmt.Errorf("--dir is required")
			}
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			paths, err := wal.SegmentPaths(opts.dir, opts.name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range paths {
				_, err := wal.ScanSegment(path, codec, func(lsn types.LSN, r record.Record) error {
					if skipEmpty && r.Kind() == record.KindEmpty {
						return nil
					}
					printEntry(out, lsn, r)
					return nil
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEmpty, "skip-empty", false, "Do not print Empty filler records")
	return cmd
}

func newFrameCmd(opts *globalOptions) *cobra.Command {
	var (
		file   string
		offset int64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Hex dump the frame at an offset of a segment file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			fr, err := wal.ReadFrame(file, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "LSN: %s\n", fr.LSN)
			fmt.Fprintf(out, "Kind: %s\n", fr.Kind)
			fmt.Fprintf(out, "Payload: %d bytes\n", len(fr.Payload))
			fmt.Fprintf(out, "Next frame at: %d\n", offset+int64(fr.Size))

			payload := fr.Payload
			if limit > 0 && len(payload) > limit {
				payload = payload[:limit]
			}
			fmt.Fprintf(out, "\n%s", hex.Dump(payload))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Segment file")
	cmd.Flags().Int64Var(&offset, "offset", 24, "Frame offset (the LSN position)")
	cmd.Flags().IntVar(&limit, "limit", 256, "Maximum payload bytes to dump, 0 for all")
	return cmd
}
