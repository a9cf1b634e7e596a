package iracing

import (
	"strconv"
	"strings"

	"github.com/driverscout/driverscout/models"
)

// Upstream CSV column names as served behind the signed link.
const (
	colCustID   = "CUSTID"
	colDriver   = "DRIVER"
	colLocation = "LOCATION"
	colIRating  = "IRATING"
	colStarts   = "STARTS"
	colWins     = "WINS"
	colClass    = "CLASS"
	colTTRating = "TTRATING"
)

// headerIndex maps upper-cased column names to their position in the header
// row, so rows can be normalized positionally.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	return index
}

// NormalizeRow converts one upstream CSV record into a NormalizedRow. The
// second return value is false when the record has no parseable member
// identifier, in which case the row is dropped.
func NormalizeRow(index map[string]int, record []string) (models.NormalizedRow, bool) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	custID, err := strconv.Atoi(field(colCustID))
	if err != nil {
		return models.NormalizedRow{}, false
	}

	row := models.NormalizedRow{
		CustID:   custID,
		Driver:   field(colDriver),
		Location: field(colLocation),
		IRating:  parseOptionalInt(field(colIRating)),
		Starts:   parseOptionalInt(field(colStarts)),
		Wins:     parseOptionalInt(field(colWins)),
		TTRating: parseOptionalInt(field(colTTRating)),
	}
	row.LicenseClass, row.SafetyRating = splitLicense(field(colClass))

	return row, true
}

// parseOptionalInt returns nil for anything that is not a clean integer. A
// missing or malformed value must never silently become 0.
func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// splitLicense splits a combined license field such as "A 4.50" into the
// class letter and the numeric safety rating. When the numeric part does not
// parse the class is kept and the rating is absent.
func splitLicense(combined string) (string, *float64) {
	parts := strings.Fields(combined)
	if len(parts) == 0 {
		return "", nil
	}
	class := parts[0]
	if len(parts) < 2 {
		return class, nil
	}
	rating, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return class, nil
	}
	return class, &rating
}
