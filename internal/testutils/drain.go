// Package testutils provides small test helpers shared across the
// module's package tests: Drain to assert the full contents of a
// channel, and Flaky to tolerate known-flaky timing-sensitive tests.
package testutils

import (
	"github.com/stretchr/testify/assert"
	"go.lepak.sg/loadbench/internal/chops"
)

// TestT is the subset of *testing.T that Drain needs.
type TestT interface {
	Logf(string, ...any)
	Errorf(string, ...any)
}

// Drain expects to receive data in order from ch, then expects ch to
// be closed. The channel must already be filled with the expected
// data; this does not work if a producer is still sending.
func Drain[T any](t TestT, data []T, ch <-chan T) {
	t.Logf("draining: expecting %v", data)
	for i, datum := range data {
		chops.TryRecv(ch).Match(
			func(el T) {
				assert.Equal(t, datum, el)
			},
			func() {
				t.Errorf("channel closed early, expecting %v", datum)
			},
			func() {
				t.Errorf("channel was empty, expecting i=%d %v", i, datum)
			},
		)
	}

	chops.TryRecv(ch).Match(
		func(el T) {
			t.Errorf("channel should be closed, but received: %v", el)
		},
		func() {},
		func() {
			t.Errorf("at the end of draining, channel was empty but unclosed")
		},
	)
}
