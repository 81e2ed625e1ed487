package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/core/export"
	"github.com/gaze-network/dust-indexer/internal/config"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/spf13/cobra"
)

type exportCmdOptions struct {
	Input    string
	Output   string
	S3Bucket string
	S3Key    string
	S3Region string
}

func NewExportCommand() *cobra.Command {
	opts := &exportCmdOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the dust dataset to parquet, optionally uploading it to S3",
		Example: `dust-indexer export --output results/dust_records.parquet
dust-indexer export --s3-bucket my-bucket --s3-key dust/dust_records.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportHandler(opts, cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Input, "input", "", "Path to the dust CSV dataset. Default is sink.csv.path from config")
	flags.StringVar(&opts.Output, "output", "results/dust_records.parquet", "Path to the parquet output file. Set empty to upload only")
	flags.StringVar(&opts.S3Bucket, "s3-bucket", "", "Upload the parquet file to this S3 bucket")
	flags.StringVar(&opts.S3Key, "s3-key", "", "S3 object key. Default is the output file name")
	flags.StringVar(&opts.S3Region, "s3-region", "", "S3 region. Default is resolved from the AWS config chain")

	return cmd
}

func exportHandler(opts *exportCmdOptions, cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	input := opts.Input
	if input == "" {
		input = config.Load().Sink.CSV.Path
	}

	var uploader export.Uploader
	if opts.S3Bucket != "" {
		s3Uploader, err := export.NewS3Uploader(ctx, opts.S3Region)
		if err != nil {
			return errors.Wrap(err, "can't create s3 uploader")
		}
		uploader = s3Uploader
	}

	result, err := export.Export(ctx, export.Options{
		CSVPath:     input,
		ParquetPath: opts.Output,
		Bucket:      opts.S3Bucket,
		Key:         opts.S3Key,
	}, uploader)
	if err != nil {
		return errors.Wrap(err, "export failed")
	}

	logger.InfoContext(ctx, "Export completed",
		slogx.String("input", input),
		slogx.Int("records", result.Records),
		slogx.Int("bytes", result.Bytes),
		slogx.String("location", result.Location),
	)
	return nil
}
