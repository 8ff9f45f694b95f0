package types

import "time"

// DefaultQueryLimit is the number of readings the history endpoint returns
// when no limit is given.
const DefaultQueryLimit = 100

// Reading is one persisted measurement. ID and Timestamp are assigned by the store.
type Reading struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Pressure    float64   `json:"pressure"`
	Humidity    float64   `json:"humidity"`
}

// Retention bounds the stored log. A zero field disables that bound.
type Retention struct {
	MaxRows int
	MaxAge  time.Duration
}

func (r Retention) Enabled() bool {
	return r.MaxRows > 0 || r.MaxAge > 0
}
