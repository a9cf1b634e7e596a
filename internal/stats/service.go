package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/driverscout/driverscout/internal/config"
	"github.com/driverscout/driverscout/internal/iracing"
	"github.com/driverscout/driverscout/internal/observability"
	"github.com/driverscout/driverscout/internal/store"
	"github.com/driverscout/driverscout/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// IngestionService owns the upstream client, the snapshot store and the
// leaderboard cache. One instance is constructed at process start and passed
// by reference; there is no package-level state.
type IngestionService struct {
	client  iracing.Client
	store   store.SnapshotStore
	cfg     config.Settings
	cache   *growersCache
	metrics *observability.Metrics

	// now is swapped out in tests to pin date resolution and cache expiry.
	now func() time.Time
}

func New(client iracing.Client, snapshots store.SnapshotStore, cfg config.Settings, metrics *observability.Metrics) *IngestionService {
	if metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	s := &IngestionService{
		client:  client,
		store:   snapshots,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
	s.cache = newGrowersCache(cfg.CacheCycle, func() time.Time { return s.now() })
	return s
}

// today returns the current snapshot day at UTC midnight.
func (s *IngestionService) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// FetchAndStore runs one ingestion pass. An empty category means every
// configured category, fanned out concurrently with a fixed launch delay
// between siblings. One category's failure never aborts the others: counts
// reports the successes and the returned error aggregates the failures.
func (s *IngestionService) FetchAndStore(ctx context.Context, category string) (map[string]int, error) {
	categories := s.cfg.Categories
	if category != "" {
		if !s.cfg.SupportsCategory(category) {
			return nil, fmt.Errorf("unsupported category: %s", category)
		}
		categories = []string{category}
	}

	runLog := logrus.WithField("run_id", uuid.NewString())
	snapshotDay := s.today()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		counts = make(map[string]int)
		errs   error
	)
	for i, cat := range categories {
		wg.Add(1)
		go func(i int, cat string) {
			defer wg.Done()
			// Stagger launches for upstream rate fairness.
			if i > 0 && s.cfg.CategoryDelay > 0 {
				select {
				case <-ctx.Done():
					mu.Lock()
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", cat, ctx.Err()))
					mu.Unlock()
					return
				case <-time.After(time.Duration(i) * s.cfg.CategoryDelay):
				}
			}

			runLog.Infof("Starting fetch for category %s", cat)
			count, err := s.ingestCategory(ctx, cat, snapshotDay)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				runLog.WithError(err).Warnf("Fetch failed for category %s", cat)
				s.metrics.FetchFailures.WithLabelValues(cat).Inc()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", cat, err))
				return
			}
			counts[cat] = count
			s.metrics.FetchPasses.WithLabelValues(cat).Inc()
			s.metrics.RowsIngested.WithLabelValues(cat).Add(float64(count))
			runLog.Infof("Completed fetch for category %s with %d rows stored", cat, count)
		}(i, cat)
	}
	wg.Wait()

	return counts, errs
}

// ingestCategory streams one category's CSV and persists it under date,
// returning the stored row count.
func (s *IngestionService) ingestCategory(ctx context.Context, category string, date time.Time) (int, error) {
	stream, err := s.client.StreamCategoryCSV(ctx, category)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	var rows []models.NormalizedRow
	for {
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	if err := s.store.Store(category, date, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// EnsureSnapshot resolves target to a stored snapshot date: the exact date
// when present, a freshly fetched one when fetchIfMissing, otherwise the
// closest stored date. All read paths share this fallback so "latest",
// "history", "delta" and "leaderboard" behave identically.
func (s *IngestionService) EnsureSnapshot(ctx context.Context, category string, target time.Time, fetchIfMissing bool) (time.Time, error) {
	if s.store.Exists(category, target) {
		return target, nil
	}

	if fetchIfMissing {
		if _, err := s.ingestCategory(ctx, category, target); err != nil {
			logrus.WithError(err).Warnf("Failed to fetch snapshot for %s on %s", category, target.Format(store.DATE_FORMAT))
		} else {
			return target, nil
		}
	}

	return s.store.FindClosest(category, target)
}

// LatestSnapshotRow returns the member's row from today's snapshot,
// fetching it live when absent, along with the snapshot date actually used.
func (s *IngestionService) LatestSnapshotRow(ctx context.Context, custID int, category string) (models.NormalizedRow, time.Time, error) {
	resolved, err := s.EnsureSnapshot(ctx, category, s.today(), true)
	if err != nil {
		return models.NormalizedRow{}, time.Time{}, err
	}
	snapshot, err := s.store.LoadMap(category, resolved)
	if err != nil {
		return models.NormalizedRow{}, time.Time{}, err
	}
	row, ok := snapshot[custID]
	if !ok {
		return models.NormalizedRow{}, time.Time{}, ErrNoData
	}
	return row, resolved, nil
}

// History returns the member's stored values for every snapshot date within
// [start, end], ascending. A live fetch happens only when end is today.
func (s *IngestionService) History(ctx context.Context, custID int, category string, start, end time.Time) ([]models.HistoryPoint, error) {
	if end.IsZero() {
		end = s.today()
	}
	if _, err := s.EnsureSnapshot(ctx, category, end, end.Equal(s.today())); err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			return nil, nil
		}
		return nil, err
	}

	dates, err := s.store.Dates(category)
	if err != nil {
		return nil, err
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var points []models.HistoryPoint
	for _, date := range dates {
		if date.Before(start) || date.After(end) {
			continue
		}
		snapshot, err := s.store.LoadMap(category, date)
		if err != nil {
			logrus.WithError(err).Warnf("Skipping unreadable snapshot for %s on %s", category, date.Format(store.DATE_FORMAT))
			continue
		}
		row, ok := snapshot[custID]
		if !ok {
			continue
		}
		points = append(points, models.HistoryPoint{
			SnapshotDate: date,
			Driver:       row.Driver,
			Location:     row.Location,
			IRating:      row.IRating,
			Starts:       row.Starts,
			Wins:         row.Wins,
		})
	}
	return points, nil
}

// DeltaOptions selects the comparison window: Days relative to End, or
// explicit Start/End dates. Zero values take the documented defaults (End:
// today, Start: End minus one day).
type DeltaOptions struct {
	Days  int
	Start time.Time
	End   time.Time
}

// Delta computes one member's rating movement between two resolved
// snapshots. The end snapshot may be fetched live; the start snapshot is
// only resolved against stored data.
func (s *IngestionService) Delta(ctx context.Context, custID int, category string, opts DeltaOptions) (models.DeltaResult, error) {
	end := opts.End
	if end.IsZero() {
		end = s.today()
	}
	start := opts.Start
	if opts.Days > 0 {
		start = end.AddDate(0, 0, -opts.Days)
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -1)
	}

	endUsed, err := s.EnsureSnapshot(ctx, category, end, true)
	if err != nil {
		return models.DeltaResult{}, ErrNoData
	}
	startUsed, err := s.EnsureSnapshot(ctx, category, start, false)
	if err != nil {
		return models.DeltaResult{}, ErrNoData
	}

	startMap, err := s.store.LoadMap(category, startUsed)
	if err != nil {
		return models.DeltaResult{}, err
	}
	endMap, err := s.store.LoadMap(category, endUsed)
	if err != nil {
		return models.DeltaResult{}, err
	}

	startRow, ok := startMap[custID]
	if !ok {
		return models.DeltaResult{}, ErrNoData
	}
	endRow, ok := endMap[custID]
	if !ok {
		return models.DeltaResult{}, ErrNoData
	}
	if endRow.IRating == nil || *endRow.IRating == models.UnrankedRating || startRow.IRating == nil {
		return models.DeltaResult{}, ErrNoData
	}

	startValue := *startRow.IRating
	if startValue == models.UnrankedRating {
		startValue = models.BaselineRating
	}
	endValue := *endRow.IRating
	delta := endValue - startValue

	return models.DeltaResult{
		CustID:        custID,
		Category:      category,
		StartDateUsed: startUsed,
		EndDateUsed:   endUsed,
		StartValue:    startValue,
		EndValue:      endValue,
		Delta:         delta,
		PercentChange: percentChange(delta, startValue),
	}, nil
}

// TopGrowers computes the full-population rating-gain leaderboard over the
// trailing window, serving an unexpired cached payload when one exists for
// the same (category, resolved start, limit, min rating).
func (s *IngestionService) TopGrowers(ctx context.Context, category string, days, limit int, minCurrentRating *int) (models.LeaderboardPayload, error) {
	endDate := s.today()
	startDate := endDate.AddDate(0, 0, -days)

	// Clamp the lookback so it never predates available data.
	if oldest, err := s.store.OldestDate(category); err == nil && startDate.Before(oldest) {
		startDate = oldest
	}

	logrus.Infof("Fetching top growers: category=%s days=%d limit=%d", category, days, limit)

	key := growersKey(category, startDate, limit, minCurrentRating)
	if payload, ok := s.cache.get(key); ok {
		s.metrics.GrowersCacheHits.Inc()
		return payload, nil
	}

	endUsed, err := s.EnsureSnapshot(ctx, category, endDate, true)
	if err != nil {
		logrus.Warnf("No snapshots available for %s", category)
		return emptyLeaderboard(), nil
	}
	startUsed, err := s.EnsureSnapshot(ctx, category, startDate, false)
	if err != nil {
		logrus.Warnf("No starting snapshot found for %s", category)
		return emptyLeaderboard(), nil
	}

	// Re-probe under the key the resolution actually produced.
	key = growersKey(category, startUsed, limit, minCurrentRating)
	if payload, ok := s.cache.get(key); ok {
		s.metrics.GrowersCacheHits.Inc()
		return payload, nil
	}
	s.metrics.GrowersCacheMisses.Inc()

	// Compute outside the cache lock; a duplicate concurrent compute on a
	// miss race is tolerated, only the map mutation is serialized.
	results, err := s.computeGrowers(category, startUsed, endUsed, limit, minCurrentRating)
	if err != nil {
		return models.LeaderboardPayload{}, err
	}
	logrus.Infof("Prepared %d top grower results for category=%s (requested limit=%d)", len(results), category, limit)

	age := int(endUsed.Sub(startUsed).Hours() / 24)
	payload := models.LeaderboardPayload{
		Results:         results,
		SnapshotAgeDays: &age,
		StartDateUsed:   startUsed,
		EndDateUsed:     endUsed,
	}
	s.cache.put(key, payload)
	return payload, nil
}

func (s *IngestionService) computeGrowers(category string, startDate, endDate time.Time, limit int, minCurrentRating *int) ([]models.GrowerRow, error) {
	startMap, err := s.store.LoadMap(category, startDate)
	if err != nil {
		return nil, err
	}
	// Ordered rows keep the sort's tie-break deterministic (encounter order
	// is upstream CSV order).
	endRows, err := s.store.LoadRows(category, endDate)
	if err != nil {
		return nil, err
	}

	results := make([]models.GrowerRow, 0)
	for _, endRow := range endRows {
		if endRow.IRating == nil || *endRow.IRating == models.UnrankedRating {
			continue
		}
		endValue := *endRow.IRating
		if minCurrentRating != nil && endValue < *minCurrentRating {
			continue
		}
		startRow, ok := startMap[endRow.CustID]
		if !ok || startRow.IRating == nil {
			continue
		}
		startValue := *startRow.IRating
		if startValue == models.UnrankedRating {
			startValue = models.BaselineRating
		}
		delta := endValue - startValue
		results = append(results, models.GrowerRow{
			CustID:        endRow.CustID,
			Driver:        endRow.Driver,
			Location:      endRow.Location,
			EndValue:      endValue,
			Delta:         delta,
			PercentChange: percentChange(delta, startValue),
			StartsGained:  countGain(endRow.Starts, startRow.Starts),
			WinsGained:    countGain(endRow.Wins, startRow.Wins),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Delta > results[j].Delta })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func growersKey(category string, startDate time.Time, limit int, minCurrentRating *int) cacheKey {
	key := cacheKey{
		category:  category,
		startDate: startDate.Format(store.DATE_FORMAT),
		limit:     limit,
	}
	if minCurrentRating != nil {
		key.minRating = *minCurrentRating
		key.hasMin = true
	}
	return key
}

func emptyLeaderboard() models.LeaderboardPayload {
	return models.LeaderboardPayload{Results: []models.GrowerRow{}}
}

func percentChange(delta, startValue int) *float64 {
	if startValue == 0 {
		return nil
	}
	pct := float64(delta) / float64(startValue) * 100
	return &pct
}

// countGain is the change in a starts/wins counter over the window, with
// absent counts treated as 0.
func countGain(end, start *int) int {
	var e, st int
	if end != nil {
		e = *end
	}
	if start != nil {
		st = *start
	}
	return e - st
}
