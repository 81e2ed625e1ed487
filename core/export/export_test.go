package export

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/sink"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/gaze-network/dust-indexer/pkg/decimals"
	"github.com/gaze-network/dust-indexer/pkg/parquetutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	bucket string
	key    string
	body   []byte
	err    error
}

func (u *fakeUploader) Upload(_ context.Context, bucket, key string, body []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.bucket, u.key, u.body = bucket, key, body
	return "s3://" + bucket + "/" + key, nil
}

func record(position uint64, seed int64, value string) types.DustRecord {
	return types.DustRecord{
		Position:   position,
		Hash:       common.BigToHash(big.NewInt(seed)),
		ValueEther: decimals.MustFromString(value),
		From:       common.HexToAddress("0xaa"),
		To:         common.HexToAddress("0xbb"),
	}
}

func writeDataset(t *testing.T, records ...types.DustRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results", "dust_records.csv")
	s, err := sink.NewCSVSink(path)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, s.Append(context.Background(), r))
	}
	require.NoError(t, s.Close())
	return path
}

func TestReadCSV(t *testing.T) {
	t.Run("ordered by position", func(t *testing.T) {
		path := writeDataset(t, record(12, 2, "0.002"), record(10, 1, "0.005"))
		records, err := ReadCSV(path)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.EqualValues(t, 10, records[0].Position)
		assert.EqualValues(t, 12, records[1].Position)
		assert.Equal(t, "0.005", records[0].ValueEther.String())
	})
	t.Run("missing", func(t *testing.T) {
		_, err := ReadCSV(filepath.Join(t.TempDir(), "missing.csv"))
		assert.ErrorIs(t, err, errs.NotFound)
	})
	t.Run("invalid row", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("position,hash,valueEther,from,to\nabc,0x1,1,0x2,0x3\n"), 0o644))
		_, err := ReadCSV(path)
		assert.ErrorIs(t, err, errs.InvalidArgument)
	})
	t.Run("wrong column count", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("position,hash\n1,2\n"), 0o644))
		_, err := ReadCSV(path)
		assert.ErrorIs(t, err, errs.InvalidArgument)
	})
}

func TestExport(t *testing.T) {
	t.Run("parquet file", func(t *testing.T) {
		path := writeDataset(t, record(10, 1, "0.005"), record(11, 2, "0.00001"), record(12, 1, "0.005"))
		out := filepath.Join(t.TempDir(), "out", "dust_records.parquet")

		result, err := Export(context.Background(), Options{CSVPath: path, ParquetPath: out}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Records)
		assert.Empty(t, result.Location)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, result.Bytes, len(data))

		rows, err := parquetutils.ReadAll[Row](parquetutils.NewBufferFileFrom(data))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.EqualValues(t, 10, rows[0].Position)
		assert.Equal(t, "0.005", rows[0].ValueEther)
		assert.Equal(t, common.HexToAddress("0xaa").Hex(), rows[0].From)
		assert.EqualValues(t, 11, rows[1].Position)
		assert.Equal(t, "0.00001", rows[1].ValueEther)
	})
	t.Run("upload", func(t *testing.T) {
		path := writeDataset(t, record(10, 1, "0.005"))
		uploader := &fakeUploader{}

		result, err := Export(context.Background(), Options{CSVPath: path, Bucket: "dust", Key: "exports/latest.parquet"}, uploader)
		require.NoError(t, err)
		assert.Equal(t, "s3://dust/exports/latest.parquet", result.Location)
		assert.Equal(t, "dust", uploader.bucket)
		assert.Equal(t, "exports/latest.parquet", uploader.key)
		assert.Len(t, uploader.body, result.Bytes)
	})
	t.Run("upload default key", func(t *testing.T) {
		path := writeDataset(t, record(10, 1, "0.005"))
		uploader := &fakeUploader{}

		_, err := Export(context.Background(), Options{CSVPath: path, Bucket: "dust"}, uploader)
		require.NoError(t, err)
		assert.Equal(t, "dust_records.parquet", uploader.key)
	})
	t.Run("upload error", func(t *testing.T) {
		path := writeDataset(t, record(10, 1, "0.005"))
		uploader := &fakeUploader{err: errors.New("denied")}

		_, err := Export(context.Background(), Options{CSVPath: path, Bucket: "dust"}, uploader)
		assert.ErrorContains(t, err, "denied")
	})
	t.Run("no target", func(t *testing.T) {
		_, err := Export(context.Background(), Options{CSVPath: "x.csv"}, nil)
		assert.ErrorIs(t, err, errs.InvalidArgument)
	})
	t.Run("bucket without uploader", func(t *testing.T) {
		_, err := Export(context.Background(), Options{CSVPath: "x.csv", Bucket: "dust"}, nil)
		assert.ErrorIs(t, err, errs.InvalidArgument)
	})
}
