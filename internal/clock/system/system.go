// Package system provides the wall clock that stamps persisted records.
package system

import "time"

// Clock implements crawler.Clock. Timestamps are UTC and truncated to the
// millisecond, the finest precision an Elasticsearch date keeps, so a record
// reads back the same from either sink.
type Clock struct {
	precision time.Duration
}

// New creates a Clock with millisecond precision.
func New() *Clock {
	return &Clock{precision: time.Millisecond}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now().UTC().Truncate(c.precision)
}
