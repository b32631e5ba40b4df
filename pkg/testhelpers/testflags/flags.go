// Package testflags gates tests by kind. Unit and integration tests run by
// default; everything else needs its flag.
package testflags

import (
	"flag"
	"testing"
)

var (
	unitTest        = flag.Bool("unit", true, "run unit tests")
	integrationTest = flag.Bool("integration", true, "run integration tests, which may open sockets or disk stores")
)

func gate(t *testing.T, enabled bool) {
	if !enabled {
		t.SkipNow()
	}
}

// UnitTest runs the calling test in parallel when -unit or -short is set.
func UnitTest(t *testing.T) {
	gate(t, *unitTest || testing.Short())
	t.Parallel()
}

// IntegrationTest runs the calling test in parallel when -integration is set.
func IntegrationTest(t *testing.T) {
	gate(t, *integrationTest)
	t.Parallel()
}

// BadUnitTestWithSideEffects is UnitTest without parallelism, for tests that
// touch process wide state such as registered metric views.
func BadUnitTestWithSideEffects(t *testing.T) {
	gate(t, *unitTest || testing.Short())
}
