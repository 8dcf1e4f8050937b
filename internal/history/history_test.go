package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/model"
)

// store is the surface shared by both history implementations.
type store interface {
	core.HistoryStore
	Seed(ctx context.Context, rec model.HistoryRecord) (model.HistoryRecord, error)
	Records(ctx context.Context) ([]model.HistoryRecord, error)
}

var (
	_ store = (*MemoryStore)(nil)
	_ store = (*SQLiteStore)(nil)
)

// StoreSuite exercises the history contract against one implementation.
type StoreSuite struct {
	suite.Suite
	open  func(t *testing.T) store
	store store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.open(s.T())
}

func (s *StoreSuite) seed() model.HistoryRecord {
	rec, err := s.store.Seed(s.ctx, model.HistoryRecord{
		SclkCoarse:      1000,
		EncodedSclk:     1000 * 65536,
		TdtG:            7.0e8,
		ClockChangeRate: "1.00000000000",
		RateMode:        model.RateModeAssigned,
	})
	s.Require().NoError(err)
	return rec
}

func (s *StoreSuite) commit(tdt, encoded float64, rate string) model.HistoryRecord {
	rec, err := s.store.Commit(s.ctx, core.Commit{Record: model.HistoryRecord{
		SclkCoarse:      int64(encoded / 65536),
		EncodedSclk:     encoded,
		TdtG:            tdt,
		ClockChangeRate: rate,
		RateMode:        model.RateModePredicted,
	}})
	s.Require().NoError(err)
	return rec
}

func (s *StoreSuite) TestEmptyHistory() {
	_, err := s.store.Tail(s.ctx)
	s.Require().ErrorIs(err, core.ErrEmptyHistory)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, n)

	_, err = s.store.Commit(s.ctx, core.Commit{Record: model.HistoryRecord{TdtG: 1, EncodedSclk: 1, ClockChangeRate: "1"}})
	s.Require().ErrorIs(err, core.ErrEmptyHistory)
}

func (s *StoreSuite) TestSeedOnce() {
	rec := s.seed()
	s.Equal(int64(1), rec.Seq)
	s.False(rec.CreatedAt.IsZero())

	_, err := s.store.Seed(s.ctx, model.HistoryRecord{ClockChangeRate: "1"})
	s.Require().ErrorIs(err, ErrAlreadySeeded)
}

func (s *StoreSuite) TestSeedRejectsBadRate() {
	_, err := s.store.Seed(s.ctx, model.HistoryRecord{ClockChangeRate: "fast"})
	s.Require().Error(err)
	_, err = s.store.Seed(s.ctx, model.HistoryRecord{ClockChangeRate: "-1"})
	s.Require().Error(err)
}

func (s *StoreSuite) TestCommitAppendsAndPreservesRateText() {
	s.seed()
	rec := s.commit(7.0e8+86400, 1000*65536+86400*65536, "0.99999999001")
	s.Equal(int64(2), rec.Seq)

	tail, err := s.store.Tail(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), tail.Seq)
	s.Equal("0.99999999001", tail.ClockChangeRate)
	s.Equal(model.RateModePredicted, tail.RateMode)
	s.InDelta(7.0e8+86400, tail.TdtG, 1e-6)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *StoreSuite) TestCommitRejectsNonMonotonicRecord() {
	s.seed()
	s.commit(7.0e8+100, 2000*65536, "1")

	_, err := s.store.Commit(s.ctx, core.Commit{Record: model.HistoryRecord{
		EncodedSclk: 3000 * 65536, TdtG: 7.0e8 + 50, ClockChangeRate: "1",
	}})
	var mono *core.MonotonicityError
	s.Require().ErrorAs(err, &mono)
	s.Equal(int64(2), mono.PriorRecordSeq)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n, "failed commit must leave the history untouched")
}

func (s *StoreSuite) TestCommitUpdatesTailRateAtomically() {
	s.seed()
	prev := s.commit(7.0e8+3600, 2000*65536, "1.00000000000")

	rec, err := s.store.Commit(s.ctx, core.Commit{
		TailSeq:  prev.Seq,
		TailRate: "1.00000000123",
		Record: model.HistoryRecord{
			EncodedSclk: 3000 * 65536, TdtG: 7.0e8 + 7200,
			ClockChangeRate: "1.00000000456", RateMode: model.RateModeInterpolated,
		},
	})
	s.Require().NoError(err)
	s.Equal(int64(3), rec.Seq)

	records, err := s.store.Records(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("1.00000000000", records[0].ClockChangeRate, "seed rate must survive")
	s.Equal("1.00000000123", records[1].ClockChangeRate)
	s.Equal("1.00000000456", records[2].ClockChangeRate)
}

func (s *StoreSuite) TestCommitRejectsStaleTailUpdate() {
	s.seed()
	s.commit(7.0e8+3600, 2000*65536, "1")

	_, err := s.store.Commit(s.ctx, core.Commit{
		TailSeq:  1,
		TailRate: "1.1",
		Record:   model.HistoryRecord{EncodedSclk: 3000 * 65536, TdtG: 7.0e8 + 7200, ClockChangeRate: "1"},
	})
	s.Require().ErrorIs(err, ErrStaleTail)

	records, err := s.store.Records(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("1.00000000000", records[0].ClockChangeRate)
}

func (s *StoreSuite) TestRecordAtOrBefore() {
	s.seed()
	s.commit(7.0e8+1*3600, 2000*65536, "1")
	s.commit(7.0e8+10*3600, 3000*65536, "1")
	s.commit(7.0e8+30*3600, 4000*65536, "1")

	rec, ok, err := s.store.RecordAtOrBefore(s.ctx, 7.0e8+36*3600, 24)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(int64(3), rec.Seq)

	rec, ok, err = s.store.RecordAtOrBefore(s.ctx, 7.0e8+30*3600, 0)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(int64(4), rec.Seq)

	_, ok, err = s.store.RecordAtOrBefore(s.ctx, 7.0e8+1000, 24)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StoreSuite) TestRecordAtOrBeforeSkipsZeroSeed() {
	_, err := s.store.Seed(s.ctx, model.HistoryRecord{ClockChangeRate: "1"})
	s.Require().NoError(err)

	_, ok, err := s.store.RecordAtOrBefore(s.ctx, 7.0e8, 24)
	s.Require().NoError(err)
	s.False(ok)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(*testing.T) store { return NewMemoryStore() }})
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(t *testing.T) store {
		st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	}})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	st, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = st.Seed(ctx, model.HistoryRecord{
		SclkCoarse: 42, EncodedSclk: 42 * 256, TdtG: 5.0e8,
		ClockChangeRate: "0.99999999999", RateMode: model.RateModeAssigned, CreatedAt: created,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	tail, err := st.Tail(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tail.SclkCoarse)
	assert.Equal(t, "0.99999999999", tail.ClockChangeRate)
	assert.True(t, tail.CreatedAt.Equal(created))
}

func TestMemoryStoreConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	_, err := st.Seed(ctx, model.HistoryRecord{ClockChangeRate: "1"})
	require.NoError(t, err)

	// Writers race on the same tail; exactly one commit per tail may win.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Commit(ctx, core.Commit{Record: model.HistoryRecord{
				EncodedSclk: 100, TdtG: 100, ClockChangeRate: "1",
			}})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, core.ErrMonotonicity), "unexpected error: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
