// Command loadbenchctl drives a benchmark run against a track: it
// wires the allocator, coordinator, worker drivers, aggregator, and
// an in-memory metrics store behind load-driver-hosts/waiting-period/
// test-mode flags, pairing cobra with viper the way a benchmark-flow
// CLI typically does.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(quiet bool) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if quiet {
		log.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(log)
}
