package iracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRow_Basic(t *testing.T) {
	index := headerIndex([]string{"CUSTID", "DRIVER", "LOCATION", "IRATING", "STARTS", "WINS", "CLASS", "TTRATING"})
	record := []string{"11", "Jane Doe", "CH", "1200", "40", "3", "A 4.50", "1100"}

	row, ok := NormalizeRow(index, record)
	assert.True(t, ok)
	assert.Equal(t, 11, row.CustID)
	assert.Equal(t, "Jane Doe", row.Driver)
	assert.Equal(t, "CH", row.Location)
	assert.Equal(t, 1200, *row.IRating)
	assert.Equal(t, 40, *row.Starts)
	assert.Equal(t, 3, *row.Wins)
	assert.Equal(t, "A", row.LicenseClass)
	assert.Equal(t, 4.5, *row.SafetyRating)
	assert.Equal(t, 1100, *row.TTRating)
}

func TestNormalizeRow_DropsRowWithoutCustID(t *testing.T) {
	index := headerIndex([]string{"CUSTID", "DRIVER"})

	_, ok := NormalizeRow(index, []string{"", "No ID"})
	assert.False(t, ok)

	_, ok = NormalizeRow(index, []string{"abc", "Bad ID"})
	assert.False(t, ok)
}

func TestNormalizeRow_UnparseableNumbersAreAbsentNotZero(t *testing.T) {
	index := headerIndex([]string{"CUSTID", "IRATING", "STARTS", "WINS"})

	row, ok := NormalizeRow(index, []string{"7", "n/a", "", "2"})
	assert.True(t, ok)
	assert.Nil(t, row.IRating)
	assert.Nil(t, row.Starts)
	assert.Equal(t, 2, *row.Wins)
}

func TestNormalizeRow_CaseInsensitiveHeader(t *testing.T) {
	index := headerIndex([]string{"custid", " Irating "})

	row, ok := NormalizeRow(index, []string{"5", "1700"})
	assert.True(t, ok)
	assert.Equal(t, 5, row.CustID)
	assert.Equal(t, 1700, *row.IRating)
}

func TestSplitLicense(t *testing.T) {
	class, rating := splitLicense("A 4.50")
	assert.Equal(t, "A", class)
	assert.Equal(t, 4.5, *rating)

	class, rating = splitLicense("B")
	assert.Equal(t, "B", class)
	assert.Nil(t, rating)

	class, rating = splitLicense("C x.y")
	assert.Equal(t, "C", class)
	assert.Nil(t, rating)

	class, rating = splitLicense("")
	assert.Equal(t, "", class)
	assert.Nil(t, rating)
}
