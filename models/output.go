package models

import "time"

// UnrankedRating is the upstream sentinel for a provisionally unranked
// member. As a starting value it is normalized to BaselineRating before a
// delta is computed; a member whose current value is the sentinel is
// excluded from growth results entirely.
const (
	UnrankedRating = -1
	BaselineRating = 1500
)

// NormalizedRow is one member's parsed record for one category and date.
// Pointer fields encode "absent": a value that failed to parse upstream is
// nil, never zero. The csv tags match the normalized column names used for
// stored snapshot files.
type NormalizedRow struct {
	CustID       int      `csv:"cust_id"`
	Driver       string   `csv:"driver"`
	Location     string   `csv:"location"`
	IRating      *int     `csv:"irating"`
	Starts       *int     `csv:"starts"`
	Wins         *int     `csv:"wins"`
	LicenseClass string   `csv:"license_class"`
	SafetyRating *float64 `csv:"safety_rating"`
	TTRating     *int     `csv:"ttrating"`
}

// DeltaResult is the point-in-time rating movement for one member.
type DeltaResult struct {
	CustID        int       `json:"cust_id"`
	Category      string    `json:"category"`
	StartDateUsed time.Time `json:"start_date_used"`
	EndDateUsed   time.Time `json:"end_date_used"`
	StartValue    int       `json:"start_value"`
	EndValue      int       `json:"end_value"`
	Delta         int       `json:"delta"`
	PercentChange *float64  `json:"percent_change"`
}

// GrowerRow is one leaderboard entry in a TopGrowers payload.
type GrowerRow struct {
	CustID        int      `json:"cust_id"`
	Driver        string   `json:"driver"`
	Location      string   `json:"location"`
	EndValue      int      `json:"end_value"`
	Delta         int      `json:"delta"`
	PercentChange *float64 `json:"percent_change"`
	StartsGained  int      `json:"starts_gained"`
	WinsGained    int      `json:"wins_gained"`
}

// LeaderboardPayload is the full TopGrowers response, including the two
// snapshot dates that were actually used after nearest-date resolution.
type LeaderboardPayload struct {
	Results         []GrowerRow `json:"results"`
	SnapshotAgeDays *int        `json:"snapshot_age_days"`
	StartDateUsed   time.Time   `json:"start_date_used"`
	EndDateUsed     time.Time   `json:"end_date_used"`
}

// HistoryPoint is one member's stored values on one snapshot date.
type HistoryPoint struct {
	SnapshotDate time.Time `json:"snapshot_date"`
	Driver       string    `json:"driver"`
	Location     string    `json:"location"`
	IRating      *int      `json:"irating"`
	Starts       *int      `json:"starts"`
	Wins         *int      `json:"wins"`
}
