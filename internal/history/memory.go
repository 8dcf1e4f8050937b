package history

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/model"
)

// MemoryStore is an in-memory, thread-safe correlation history.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.HistoryRecord
	now     func() time.Time
}

// NewMemoryStore constructs an empty history.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Seed writes the first record. It fails if the history has any records.
func (s *MemoryStore) Seed(ctx context.Context, rec model.HistoryRecord) (model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.HistoryRecord{}, err
	}
	if err := checkSeed(rec); err != nil {
		return model.HistoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) > 0 {
		return model.HistoryRecord{}, ErrAlreadySeeded
	}
	rec.Seq = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.records = append(s.records, rec)
	return rec, nil
}

// Tail returns the last record.
func (s *MemoryStore) Tail(ctx context.Context) (model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.HistoryRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return model.HistoryRecord{}, core.ErrEmptyHistory
	}
	return s.records[len(s.records)-1], nil
}

// Count returns the number of records, seed included.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// RecordAtOrBefore returns the most recent non-sentinel record at least
// minLookBackHours older than tdtG.
func (s *MemoryStore) RecordAtOrBefore(ctx context.Context, tdtG, minLookBackHours float64) (model.HistoryRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.HistoryRecord{}, false, err
	}
	limit := lookBackLimit(tdtG, minLookBackHours)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.TdtG <= limit && !r.IsSeedSentinel() {
			return r, true, nil
		}
	}
	return model.HistoryRecord{}, false, nil
}

// Records returns a snapshot of the history in sequence order.
func (s *MemoryStore) Records(ctx context.Context) ([]model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.HistoryRecord(nil), s.records...), nil
}

// Commit applies c atomically.
func (s *MemoryStore) Commit(ctx context.Context, c core.Commit) (model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.HistoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return model.HistoryRecord{}, core.ErrEmptyHistory
	}
	tail := s.records[len(s.records)-1]
	rec, err := prepareCommit(tail, c)
	if err != nil {
		return model.HistoryRecord{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if c.TailRate != "" {
		s.records[len(s.records)-1].ClockChangeRate = c.TailRate
	}
	s.records = append(s.records, rec)
	return rec, nil
}
