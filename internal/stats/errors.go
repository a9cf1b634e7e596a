package stats

import "errors"

// ErrNoData means a snapshot was found but the member was absent from it or
// the value was the unranked sentinel. Deterministic given current storage,
// never retried; callers map it to "insufficient data".
var ErrNoData = errors.New("stats: insufficient data")
