package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"roomsplit/internal/cache"
	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/metrics"
	"roomsplit/internal/settlement"
	"roomsplit/internal/store"
)

const statisticsTimeout = 7 * time.Second

// StatisticsService builds the monthly report: it reads the month's records,
// aggregates them and settles the balances. Reports are cached per month
// until a write invalidates them or the TTL passes.
type StatisticsService struct {
	reader store.ExpenseReader
	roster core.Roster
	loc    *time.Location
	cache  cache.Cache[core.Statistics]
	group  singleflight.Group
	// mu orders cache fills against invalidations; gen counts invalidations.
	mu      sync.Mutex
	gen     uint64
	metrics *metrics.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// StatisticsOption configures a StatisticsService.
type StatisticsOption func(*StatisticsService)

// WithCache enables caching; without it every call recomputes.
func WithCache(c cache.Cache[core.Statistics]) StatisticsOption {
	return func(s *StatisticsService) { s.cache = c }
}

func WithStatisticsMetrics(m *metrics.Metrics) StatisticsOption {
	return func(s *StatisticsService) { s.metrics = m }
}

func WithStatisticsLogger(l *log.Logger) StatisticsOption {
	return func(s *StatisticsService) { s.logger = l.WithComponent(log.ComponentStatistics) }
}

func WithStatisticsClock(now func() time.Time) StatisticsOption {
	return func(s *StatisticsService) { s.now = now }
}

func NewStatisticsService(reader store.ExpenseReader, roster core.Roster, loc *time.Location, opts ...StatisticsOption) *StatisticsService {
	if loc == nil {
		loc = time.Local
	}
	s := &StatisticsService{
		reader: reader,
		roster: roster,
		loc:    loc,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentStatistics),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the report for the current calendar month.
func (s *StatisticsService) Current(ctx context.Context) (core.Statistics, error) {
	return s.Month(ctx, s.now())
}

// Month returns the report for the calendar month containing t, in the
// configured location.
func (s *StatisticsService) Month(ctx context.Context, t time.Time) (core.Statistics, error) {
	w := settlement.MonthWindow(t.In(s.loc))
	key := monthKey(w.From)

	if s.cache != nil {
		if st, ok := s.cache.Get(key); ok {
			s.lookup("hit")
			return st, nil
		}
		s.lookup("miss")
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()

		st, err := s.compute(ctx, w)
		if err != nil {
			return core.Statistics{}, err
		}
		s.fill(key, gen, st)
		return st, nil
	})
	if err != nil {
		return core.Statistics{}, err
	}
	return v.(core.Statistics), nil
}

func (s *StatisticsService) compute(ctx context.Context, w settlement.Window) (core.Statistics, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, statisticsTimeout)
	defer cancel()

	records, err := s.reader.ListBetween(ctx, w.From, w.To)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("read %s expenses: %w", w.Label(), err)
	}

	totals, err := settlement.Aggregate(records, s.roster, &w)
	if err != nil {
		s.logger.ErrorContext(ctx, "Cannot aggregate expenses",
			log.FieldMonth, w.Label(),
			log.FieldError, err)
		return core.Statistics{}, fmt.Errorf("aggregate %s: %w", w.Label(), err)
	}

	result, err := settlement.Settle(totals, s.roster)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("settle %s: %w", w.Label(), err)
	}

	if s.metrics != nil {
		s.metrics.SettlementTransfers.Observe(float64(len(result.Transfers)))
		s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.DebugContext(ctx, "Statistics computed",
		log.FieldMonth, w.Label(),
		log.FieldCount, len(records),
		"transfers", len(result.Transfers))

	return core.Statistics{
		Label:      w.Label(),
		From:       w.From,
		To:         w.To,
		Totals:     totals,
		Settlement: result,
	}, nil
}

// fill caches st unless a write landed since gen was read.
func (s *StatisticsService) fill(key string, gen uint64, st core.Statistics) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.cache.Set(key, st)
	}
}

// Invalidate drops the cached report for the month containing t.
func (s *StatisticsService) Invalidate(t time.Time) {
	key := monthKey(t.In(s.loc))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.group.Forget(key)
	if s.cache != nil {
		s.cache.Delete(key)
	}
}

// InvalidateAll drops every cached report.
func (s *StatisticsService) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *StatisticsService) lookup(result string) {
	if s.metrics != nil {
		s.metrics.StatsCache.WithLabelValues(result).Inc()
	}
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
