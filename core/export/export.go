// Package export converts the dust dataset into a parquet file and optionally
// uploads it to S3.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gaze-network/dust-indexer/pkg/parquetutils"
	"github.com/samber/lo"
)

// Row is the parquet representation of a dust record.
type Row struct {
	Position   int64  `parquet:"name=position, type=INT64"`
	Hash       string `parquet:"name=hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	ValueEther string `parquet:"name=value_ether, type=BYTE_ARRAY, convertedtype=UTF8"`
	From       string `parquet:"name=from_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	To         string `parquet:"name=to_address, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toRow(r types.DustRecord, _ int) Row {
	return Row{
		Position:   int64(r.Position),
		Hash:       r.Hash.Hex(),
		ValueEther: r.ValueEther.String(),
		From:       r.From.Hex(),
		To:         r.To.Hex(),
	}
}

type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body []byte) (location string, err error)
}

type Options struct {
	// CSVPath is the dust dataset to read.
	CSVPath string

	// ParquetPath is the output parquet file. Optional if uploading only.
	ParquetPath string

	// Bucket and Key are the S3 upload target. Upload is skipped if Bucket is empty.
	Bucket string
	Key    string
}

type Result struct {
	Records  int
	Bytes    int
	Location string
}

// Export reads the dust dataset, writes it as parquet to the output path and
// uploads it if a bucket is set. Records are deduplicated by hash, keeping the
// first occurrence.
func Export(ctx context.Context, opts Options, uploader Uploader) (Result, error) {
	ctx = logger.WithContext(ctx, slogx.String("package", "export"))

	if opts.ParquetPath == "" && opts.Bucket == "" {
		return Result{}, errors.Wrap(errs.InvalidArgument, "either an output path or an upload bucket is required")
	}
	if opts.Bucket != "" && uploader == nil {
		return Result{}, errors.Wrap(errs.InvalidArgument, "uploader is required to upload to a bucket")
	}

	records, err := ReadCSV(opts.CSVPath)
	if err != nil {
		return Result{}, errors.WithStack(err)
	}
	records = lo.UniqBy(records, func(r types.DustRecord) string { return r.Hash.Hex() })

	buf := parquetutils.NewBufferFile()
	if err := parquetutils.WriteAll(buf, lo.Map(records, toRow)); err != nil {
		return Result{}, errors.Wrap(err, "failed to encode parquet")
	}
	data := buf.Bytes()
	result := Result{Records: len(records), Bytes: len(data)}

	if opts.ParquetPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.ParquetPath), 0o755); err != nil {
			return Result{}, errors.Wrap(err, "can't create output directory")
		}
		if err := os.WriteFile(opts.ParquetPath, data, 0o644); err != nil {
			return Result{}, errors.Wrapf(err, "can't write parquet file %q", opts.ParquetPath)
		}
		logger.InfoContext(ctx, "Wrote parquet file",
			slogx.String("path", opts.ParquetPath),
			slogx.Int("records", result.Records),
			slogx.Int("bytes", result.Bytes),
		)
	}

	if opts.Bucket != "" {
		key := opts.Key
		if key == "" {
			key = filepath.Base(lo.Ternary(opts.ParquetPath != "", opts.ParquetPath, "dust_records.parquet"))
		}
		location, err := uploader.Upload(ctx, opts.Bucket, key, data)
		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to upload parquet to bucket %q and key %q", opts.Bucket, key)
		}
		result.Location = location
		logger.InfoContext(ctx, "Uploaded parquet file", slogx.String("location", location))
	}

	return result, nil
}

// ReadCSV reads all records of a dust dataset, ordered by position.
func ReadCSV(path string) ([]types.DustRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errs.NotFound, "dataset %q not found", path)
		}
		return nil, errors.Wrapf(err, "can't open dataset %q", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(types.DustRecordColumns)
	r.ReuseRecord = true

	records := make([]types.DustRecord, 0)
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errs.InvalidArgument, "invalid dataset %q: %v", path, err)
		}
		if line == 1 && slices.Equal(row, types.DustRecordColumns) {
			continue
		}
		record, err := types.ParseDustRecordRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid row at line %d", line)
		}
		records = append(records, record)
	}

	slices.SortStableFunc(records, func(a, b types.DustRecord) int {
		switch {
		case a.Position < b.Position:
			return -1
		case a.Position > b.Position:
			return 1
		}
		return 0
	})
	return records, nil
}
