// Package coretest provides in-memory datasource, sink and checkpoint store
// implementations for tests.
package coretest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/checkpoint"
	"github.com/gaze-network/dust-indexer/core/types"
	"github.com/holiman/uint256"
)

// WeiPerEther is 1e18.
const WeiPerEther = 1_000_000_000_000_000_000

// Transfer returns a transfer with a hash derived from seed, sending valueWei to a fixed recipient.
func Transfer(seed uint64, valueWei uint64) types.Transfer {
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	return types.Transfer{
		Hash:     common.BigToHash(new(uint256.Int).SetUint64(seed).ToBig()),
		From:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		To:       &to,
		ValueWei: uint256.NewInt(valueWei),
	}
}

// DustTransfer returns a transfer of 0.005 ether.
func DustTransfer(seed uint64) types.Transfer {
	return Transfer(seed, WeiPerEther/200)
}

// Datasource is an in-memory datasource.
type Datasource struct {
	mu          sync.Mutex
	head        uint64
	headErr     error
	chainID     uint64
	items       map[uint64][]types.Transfer
	unavailable map[uint64]bool
	fetches     map[uint64]int

	// Delay is applied to every fetch.
	Delay time.Duration

	// OnFetch is called at the start of every fetch.
	OnFetch func(position uint64)

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func NewDatasource(head uint64) *Datasource {
	return &Datasource{
		head:        head,
		chainID:     1,
		items:       make(map[uint64][]types.Transfer),
		unavailable: make(map[uint64]bool),
		fetches:     make(map[uint64]int),
	}
}

func (d *Datasource) Name() string { return "memory" }

// SetHead moves the head position.
func (d *Datasource) SetHead(head uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.head = head
}

// SetHeadError makes Head fail with err until cleared with nil.
func (d *Datasource) SetHeadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.headErr = err
}

func (d *Datasource) SetChainID(chainID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chainID = chainID
}

// AddTransfers adds transfers to the item at position.
func (d *Datasource) AddTransfers(position uint64, transfers ...types.Transfer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[position] = append(d.items[position], transfers...)
}

// SetUnavailable makes fetching position fail.
func (d *Datasource) SetUnavailable(position uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unavailable[position] = true
}

func (d *Datasource) Head(context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.headErr != nil {
		return 0, d.headErr
	}
	return d.head, nil
}

func (d *Datasource) ChainID(context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chainID, nil
}

func (d *Datasource) Fetch(ctx context.Context, position uint64) types.FetchResult {
	inFlight := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		current := d.maxInFlight.Load()
		if inFlight <= current || d.maxInFlight.CompareAndSwap(current, inFlight) {
			break
		}
	}

	if d.OnFetch != nil {
		d.OnFetch(position)
	}
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return types.Unavailable(position, ctx.Err())
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches[position]++
	if d.unavailable[position] {
		return types.Unavailable(position, errors.Newf("position %d is unavailable", position))
	}
	return types.Fetched(types.Item{
		Position:  position,
		Transfers: append([]types.Transfer(nil), d.items[position]...),
	})
}

// Fetches returns how many times position was fetched.
func (d *Datasource) Fetches(position uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches[position]
}

// MaxInFlight returns the highest number of concurrent fetches observed.
func (d *Datasource) MaxInFlight() int {
	return int(d.maxInFlight.Load())
}

// Sink is an in-memory sink. Appended records become visible in Records after Flush.
type Sink struct {
	mu       sync.Mutex
	pending  []types.DustRecord
	records  []types.DustRecord
	flushes  int
	closed   bool
	flushErr error
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Name() string { return "memory" }

func (s *Sink) Append(_ context.Context, record types.DustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WithStack(errs.Closed)
	}
	s.pending = append(s.pending, record)
	return nil
}

func (s *Sink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WithStack(errs.Closed)
	}
	if s.flushErr != nil {
		s.pending = nil
		return s.flushErr
	}
	s.records = append(s.records, s.pending...)
	s.pending = nil
	s.flushes++
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetFlushError makes Flush fail with err (dropping pending records) until cleared with nil.
func (s *Sink) SetFlushError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushErr = err
}

// Records returns the flushed records.
func (s *Sink) Records() []types.DustRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.DustRecord(nil), s.records...)
}

// Flushes returns the number of successful flushes.
func (s *Sink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Store is an in-memory checkpoint store that keeps every saved position.
type Store struct {
	mu      sync.Mutex
	saved   bool
	current uint64
	saves   []uint64
	saveErr error
}

// NewStore returns a store holding position, or an empty store if position is nil.
func NewStore(position *uint64) *Store {
	s := &Store{}
	if position != nil {
		s.saved, s.current = true, *position
	}
	return s
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Load(context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.saved, nil
}

func (s *Store) Save(_ context.Context, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.saved && position < s.current {
		return errors.Wrapf(checkpoint.ErrBehind, "last: %d, given: %d", s.current, position)
	}
	s.saved, s.current = true, position
	s.saves = append(s.saves, position)
	return nil
}

// SetSaveError makes Save fail with err until cleared with nil.
func (s *Store) SetSaveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns every saved position in order.
func (s *Store) Saves() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.saves...)
}

// Current returns the stored position.
func (s *Store) Current() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.saved
}
