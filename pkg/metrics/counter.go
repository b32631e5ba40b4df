// Package metrics registers opencensus views for the ledger and its store.
package metrics

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("metrics")

// Int64Counter counts how many times something happened.
type Int64Counter struct {
	measure *stats.Int64Measure
	view    *view.View
}

// NewInt64Counter registers a counting view. It panics when a view with the
// same name is already registered, so call it from package level vars.
func NewInt64Counter(name, desc string) *Int64Counter {
	m := stats.Int64(name, desc, stats.UnitDimensionless)
	return &Int64Counter{measure: m, view: register(name, desc, m, view.Count())}
}

// Inc records v occurrences.
func (c *Int64Counter) Inc(ctx context.Context, v int64) {
	stats.Record(ctx, c.measure.M(v))
}

// Int64Sum accumulates a quantity such as a byte count.
type Int64Sum struct {
	measure *stats.Int64Measure
	view    *view.View
}

// NewInt64Sum registers a summing view measured in unit.
func NewInt64Sum(name, desc, unit string) *Int64Sum {
	m := stats.Int64(name, desc, unit)
	return &Int64Sum{measure: m, view: register(name, desc, m, view.Sum())}
}

// Add records v.
func (s *Int64Sum) Add(ctx context.Context, v int64) {
	stats.Record(ctx, s.measure.M(v))
}

func register(name, desc string, m stats.Measure, agg *view.Aggregation) *view.View {
	log.Debugf("registering view: %s - %s", name, desc)
	v := &view.View{
		Name:        name,
		Measure:     m,
		Description: desc,
		Aggregation: agg,
	}
	if err := view.Register(v); err != nil {
		// two views with one name is a programming error
		panic(err)
	}
	return v
}
