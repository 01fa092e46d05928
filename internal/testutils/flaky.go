package testutils

import (
	"testing"
)

// FlakyT is the subset of *testing.T that a Flaky-wrapped test body
// sees: failures reported through it are tolerated up to maxTimes.
type FlakyT interface {
	Error(args ...any)
	Errorf(format string, args ...any)
	T() *testing.T
}

type flakyT struct {
	t          *testing.T
	allowed    int
	lastFailed bool
}

func (ft *flakyT) decr() bool {
	ft.lastFailed = true
	ft.t.Log("test flaked")
	ft.allowed--
	return ft.allowed <= 0
}

func (ft *flakyT) T() *testing.T { return ft.t }

func (ft *flakyT) Errorf(format string, args ...any) {
	if ft.decr() {
		ft.t.Errorf(format, args...)
	}
}

func (ft *flakyT) Error(args ...any) {
	if ft.decr() {
		ft.t.Error(args...)
	}
}

// Flaky reruns a test body after every failure reported through its
// FlakyT, until a run passes. The first maxTimes-1 failures are
// swallowed; each failure from the maxTimes-th on is also reported to
// the real *testing.T. Apart from its own tests, nothing in this
// module uses it.
//
//	t.Run("name", testutils.Flaky(5, func(t testutils.FlakyT) {
//	  ...
//	}))
func Flaky(maxTimes int, testFunc func(FlakyT)) func(*testing.T) {
	ft := &flakyT{allowed: maxTimes}

	return func(t *testing.T) {
		if ft.t == nil {
			ft.t = t
		}
		t.Helper()

		firstRun := true
		for ft.lastFailed || firstRun {
			firstRun = false
			ft.lastFailed = false
			testFunc(ft)
		}
	}
}
