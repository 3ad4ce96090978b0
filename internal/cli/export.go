package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/soulbound/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Dir string // write to a local directory
	S3  bool   // upload to export.s3.bucket
	Key string // object or file name; default derives from the digest
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the canonical state snapshot to a directory or S3",
		Long: `Write the canonical JSON snapshot of every record and owner list.

The snapshot is byte-identical for identical states, and its SHA-256 is the
digest reported by replay. With --s3 the snapshot is uploaded to the bucket
configured under export.s3 (endpoint and path_style support MinIO).

Examples:
  soulbound export --db ./soulbound.db --dir ./exports
  soulbound export --db ./soulbound.db --s3 --key daily/latest.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmdContext(cmd), opts, cmd)
		},
	}

	addBackendFlags(cmd, rootOpts)
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "export directory")
	cmd.Flags().BoolVar(&opts.S3, "s3", false, "upload to the configured S3 bucket")
	cmd.Flags().StringVar(&opts.Key, "key", "", "file or object name (default snapshot-<digest>.json)")
	cmd.MarkFlagsMutuallyExclusive("dir", "s3")
	cmd.MarkFlagsOneRequired("dir", "s3")

	return cmd
}

func runExport(ctx context.Context, opts *ExportOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return withRuntime(ctx, opts.RootOptions, f, func(rt *Runtime) error {
		var sink export.Sink = export.FileSink{Dir: opts.Dir}
		if opts.S3 {
			s3Sink, err := export.NewS3Sink(ctx, rt.Config.Export.S3)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), err)
			}
			sink = s3Sink
		}

		res, err := export.Snapshot(ctx, rt.Backend, sink, opts.Key)
		if err != nil {
			return f.FailErr(err)
		}
		return f.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "✓ exported %d record(s), %d owner(s) to %s\n", res.Records, res.Owners, res.Location)
			fmt.Fprintf(w, "  digest: %s\n", res.Digest)
		})
	})
}
