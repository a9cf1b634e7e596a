package store

import (
	"errors"
	"sort"
	"time"

	"github.com/driverscout/driverscout/models"
)

const (
	DATE_FORMAT        = "2006-01-02"
	SNAPSHOT_EXT       = ".csv"
	SNAPSHOT_INDEX_EXT = ".json"
)

// ErrNoSnapshot is returned by read paths when neither an exact nor a
// nearby snapshot exists for the category.
var ErrNoSnapshot = errors.New("store: no snapshot available")

// SnapshotStore persists one snapshot per (category, date) and resolves
// read requests to the best available date. Store is an idempotent upsert:
// writing the same key twice overwrites, last write wins.
type SnapshotStore interface {
	Store(category string, date time.Time, rows []models.NormalizedRow) error
	Exists(category string, date time.Time) bool
	Dates(category string) ([]time.Time, error)
	FindClosest(category string, target time.Time) (time.Time, error)
	OldestDate(category string) (time.Time, error)
	LoadRows(category string, date time.Time) ([]models.NormalizedRow, error)
	LoadMap(category string, date time.Time) (map[int]models.NormalizedRow, error)
}

func dateKey(date time.Time) string {
	return date.Format(DATE_FORMAT)
}

func parseDateKey(name string) (time.Time, bool) {
	date, err := time.Parse(DATE_FORMAT, name)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// closestDate picks the stored date minimizing absolute day distance to
// target; ties prefer the earlier date.
func closestDate(dates []time.Time, target time.Time) (time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, ErrNoSnapshot
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := dayDistance(sorted[i], target), dayDistance(sorted[j], target)
		if di != dj {
			return di < dj
		}
		return sorted[i].Before(sorted[j])
	})
	return sorted[0], nil
}

func oldestDate(dates []time.Time) (time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, ErrNoSnapshot
	}
	oldest := dates[0]
	for _, d := range dates[1:] {
		if d.Before(oldest) {
			oldest = d
		}
	}
	return oldest, nil
}

func dayDistance(a, b time.Time) int {
	hours := a.Sub(b).Hours()
	if hours < 0 {
		hours = -hours
	}
	return int(hours / 24)
}

func rowsToMap(rows []models.NormalizedRow) map[int]models.NormalizedRow {
	m := make(map[int]models.NormalizedRow, len(rows))
	for _, row := range rows {
		m[row.CustID] = row
	}
	return m
}
