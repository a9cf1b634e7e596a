package iracing

import (
	"bufio"
	"encoding/csv"
	"io"

	"github.com/driverscout/driverscout/models"
	"github.com/sirupsen/logrus"
)

const progressLogInterval = 10000

// RowStream is a lazy, forward-only sequence of normalized rows read
// incrementally from an HTTP response body. The first non-empty line is the
// header; memory stays bounded regardless of roster size.
type RowStream struct {
	body    io.ReadCloser
	reader  *csv.Reader
	index   map[string]int
	yielded int
}

// NewRowStream wraps an already-open CSV body. Ingestion uses it over the
// signed-link response; tests feed it in-memory readers.
func NewRowStream(body io.ReadCloser) *RowStream {
	reader := csv.NewReader(bufio.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return &RowStream{body: body, reader: reader}
}

// Next returns the next normalized row, or io.EOF when the stream is
// exhausted. Records without a parseable member identifier are skipped.
func (s *RowStream) Next() (models.NormalizedRow, error) {
	for {
		record, err := s.reader.Read()
		if err != nil {
			return models.NormalizedRow{}, err
		}
		if s.index == nil {
			s.index = headerIndex(record)
			continue
		}
		row, ok := NormalizeRow(s.index, record)
		if !ok {
			continue
		}
		s.yielded++
		if s.yielded%progressLogInterval == 0 {
			logrus.Debugf("Streamed %d rows so far", s.yielded)
		}
		return row, nil
	}
}

// Close releases the underlying response body.
func (s *RowStream) Close() error {
	return s.body.Close()
}
