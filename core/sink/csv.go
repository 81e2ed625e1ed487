package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/types"
)

// Make sure to implement the Sink interface
var _ Sink = (*CSVSink)(nil)

// CSVSink appends dust records to a CSV file. The header row is written only
// when the file is new or empty.
//
// A failed append or flush truncates the file back to the last synced size,
// so a retried batch leaves no partial rows.
type CSVSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	synced int64
	closed bool
}

// NewCSVSink opens (or creates) the CSV file at path in append mode.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "can't create output directory %q", dir)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open output file %q", path)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "can't stat output file %q", path)
	}

	synced := stat.Size()
	writer := csv.NewWriter(file)
	if synced == 0 {
		if err := writer.Write(types.DustRecordColumns); err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, "can't write header")
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, "can't write header")
		}
		if synced, err = fileSize(file); err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "can't stat output file %q", path)
		}
	}

	return &CSVSink{
		path:   path,
		file:   file,
		writer: writer,
		synced: synced,
	}, nil
}

func (s *CSVSink) Name() string {
	return "csv"
}

// Path returns the output file path.
func (s *CSVSink) Path() string {
	return s.path
}

func (s *CSVSink) Append(_ context.Context, record types.DustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WithStack(errs.Closed)
	}
	if err := s.writer.Write(record.Row()); err != nil {
		return errors.Wrapf(s.rollback(err), "can't write record %s", record.Hash)
	}
	return nil
}

func (s *CSVSink) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WithStack(errs.Closed)
	}
	return s.flush()
}

func (s *CSVSink) flush() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.Wrap(s.rollback(err), "can't flush records")
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrap(s.rollback(err), "can't sync output file")
	}
	size, err := fileSize(s.file)
	if err != nil {
		return errors.Wrap(s.rollback(err), "can't stat output file")
	}
	s.synced = size
	return nil
}

// rollback discards every row written since the last successful flush and
// replaces the writer, whose buffered write errors are sticky. It returns cause,
// combined with the truncate error if any.
func (s *CSVSink) rollback(cause error) error {
	s.writer = csv.NewWriter(s.file)
	if err := s.file.Truncate(s.synced); err != nil {
		return errors.CombineErrors(cause, errors.Wrapf(err, "can't truncate output file to %d bytes", s.synced))
	}
	return cause
}

func fileSize(file *os.File) (int64, error) {
	stat, err := file.Stat()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return stat.Size(), nil
}

// Close flushes pending records and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.flush()
	if err := s.file.Close(); err != nil {
		return errors.Wrap(err, "can't close output file")
	}
	return flushErr
}
