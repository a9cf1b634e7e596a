package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/driverscout/driverscout/internal/utils"
	"github.com/driverscout/driverscout/models"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

// LocalStore keeps one CSV file per (category, date) under
// <dir>/<category>/<YYYY-MM-DD>.csv, with a derived JSON map index alongside.
// The CSV is the source of truth; the index is rebuilt from it on demand.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	if err := utils.CreateDirectoryIfNotExists(dir); err != nil {
		logrus.WithError(err).Fatal("Failed to create snapshot directory")
	}
	return &LocalStore{dir: dir}
}

func (s *LocalStore) categoryDir(category string) string {
	return filepath.Join(s.dir, category)
}

func (s *LocalStore) csvPath(category string, date time.Time) string {
	return filepath.Join(s.categoryDir(category), dateKey(date)+SNAPSHOT_EXT)
}

func (s *LocalStore) indexPath(category string, date time.Time) string {
	return filepath.Join(s.categoryDir(category), dateKey(date)+SNAPSHOT_INDEX_EXT)
}

func (s *LocalStore) Store(category string, date time.Time, rows []models.NormalizedRow) error {
	if err := utils.CreateDirectoryIfNotExists(s.categoryDir(category)); err != nil {
		return err
	}

	path := s.csvPath(category, date)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to marshal snapshot %s/%s: %w", category, dateKey(date), err)
	}
	logrus.Infof("Stored %d rows for %s at %s", len(rows), category, path)

	// Derived index; CSV remains authoritative so failure here is advisory.
	if err := utils.WriteJSONFile(s.indexPath(category, date), rowsToMap(rows)); err != nil {
		logrus.WithError(err).Warnf("Failed to write snapshot index for %s on %s", category, dateKey(date))
	}
	return nil
}

func (s *LocalStore) Exists(category string, date time.Time) bool {
	return utils.LocalFileExists(s.csvPath(category, date))
}

func (s *LocalStore) Dates(category string) ([]time.Time, error) {
	entries, err := os.ReadDir(s.categoryDir(category))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dates []time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, SNAPSHOT_EXT) {
			continue
		}
		date, ok := parseDateKey(strings.TrimSuffix(name, SNAPSHOT_EXT))
		if !ok {
			logrus.Warnf("Skipping snapshot with unexpected name: %s", name)
			continue
		}
		dates = append(dates, date)
	}
	return dates, nil
}

func (s *LocalStore) FindClosest(category string, target time.Time) (time.Time, error) {
	dates, err := s.Dates(category)
	if err != nil {
		return time.Time{}, err
	}
	return closestDate(dates, target)
}

func (s *LocalStore) OldestDate(category string) (time.Time, error) {
	dates, err := s.Dates(category)
	if err != nil {
		return time.Time{}, err
	}
	return oldestDate(dates)
}

func (s *LocalStore) LoadRows(category string, date time.Time) ([]models.NormalizedRow, error) {
	file, err := os.Open(s.csvPath(category, date))
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []models.NormalizedRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s/%s: %w", category, dateKey(date), err)
	}
	return rows, nil
}

func (s *LocalStore) LoadMap(category string, date time.Time) (map[int]models.NormalizedRow, error) {
	indexPath := s.indexPath(category, date)
	if utils.LocalFileExists(indexPath) {
		var m map[int]models.NormalizedRow
		if err := utils.ReadJSONFile(indexPath, &m); err == nil {
			return m, nil
		}
		logrus.Warnf("Failed to load snapshot index %s, falling back to CSV", indexPath)
	}

	rows, err := s.LoadRows(category, date)
	if err != nil {
		return nil, err
	}
	return rowsToMap(rows), nil
}
