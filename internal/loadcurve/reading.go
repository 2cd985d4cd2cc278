// Package loadcurve reads per-customer smart-meter series ("load curves").
//
// A Source lists the known customer ids and returns one customer's readings
// in the order they are stored. Sources never filter or aggregate. Two
// implementations exist: CSVSource over a directory of per-customer CSV
// files, and SQLiteSource over an imported database.
package loadcurve

import (
	"errors"
	"time"
)

// TimestampLayout is the layout of the timestamp column in load-curve files.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	// ErrNotFound is returned when no series exists for a customer id.
	ErrNotFound = errors.New("series not found")

	// ErrMalformedRecord is returned when a timestamp or value in a series
	// cannot be parsed. Callers skip the whole customer.
	ErrMalformedRecord = errors.New("malformed record")
)

// Reading is one metered interval: energy consumed (kWh) in the interval
// starting at Timestamp. Timestamps carry wall-clock time in UTC.
type Reading struct {
	Timestamp time.Time
	Value     float64
}

// Source provides customer series.
type Source interface {
	// ListCustomers returns every known customer id, sorted ascending.
	ListCustomers() ([]string, error)

	// ReadSeries returns the readings for one customer in stored order.
	// It fails with ErrNotFound if the customer has no series.
	ReadSeries(customerID string) ([]Reading, error)
}
