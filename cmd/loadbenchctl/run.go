package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.lepak.sg/loadbench/internal/allocator"
	"go.lepak.sg/loadbench/internal/coordinator"
	"go.lepak.sg/loadbench/internal/executor"
	"go.lepak.sg/loadbench/internal/metricsstore"
	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/transport"
)

// demoSource/demoRunner stand in for the external parameter-source and
// per-operation runner registry: enough to drive a real two-phase run
// end to end without a track file to parse.
type demoParams struct{}

func (demoParams) Params() map[string]any { return map[string]any{} }
func (demoParams) Size() (int, bool)      { return 0, false }

type demoSource struct{}

func (demoSource) Partition(clientIndex, numClients int) model.ParamIterator { return demoParams{} }

func demoRunner(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
	time.Sleep(time.Millisecond)
	return executor.RunnerResult{Meta: model.RequestMeta{"success": true}}, nil
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var track string
	var clients int
	var iterations int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a two-phase demo benchmark end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(v.GetBool("quiet"))

			testMode := v.GetBool("test-mode")
			iters := iterations
			waitingPeriod := v.GetDuration("waiting-period")
			wakeupInterval := v.GetDuration("wakeup-interval")
			if testMode {
				iters = 1
				waitingPeriod = 0
				wakeupInterval = 500 * time.Millisecond
			}

			schedule := model.Schedule{
				{Tasks: []model.Task{{
					Operation:  model.Operation{Name: "bulk-index", Type: "bulk"},
					Clients:    clients,
					Pacing:     model.IterationCountPaced,
					Iterations: iters,
				}}},
				{Tasks: []model.Task{{
					Operation:  model.Operation{Name: "query-match-all", Type: "search"},
					Clients:    clients,
					Pacing:     model.IterationCountPaced,
					Iterations: iters,
				}}},
			}
			matrix := allocator.Allocate(schedule)

			cfg := coordinator.Config{
				Hosts:          hostIndices(v.GetStringSlice("load-driver-hosts")),
				Quiet:          v.GetBool("quiet"),
				WaitingPeriod:  waitingPeriod,
				ProgressEvery:  v.GetDuration("progress-interval"),
				WakeupInterval: wakeupInterval,
				TrackMeta:      map[string]any{"track": track},
			}

			store := metricsstore.NewInMemory()
			co := coordinator.New(cfg, transport.NewLocal(), store, nil,
				func(string) executor.Runner { return demoRunner },
				func(model.Operation) model.ParamSource { return demoSource{} },
				nil, log)

			res := co.Run(cmd.Context(), 1, nil, track, matrix)
			if res.Err != nil {
				return res.Err
			}
			if res.Cancelled {
				log.Warn("benchmark cancelled")
				return nil
			}

			log.WithField("samples", len(res.FinalMetrics)).Info("benchmark complete")
			if p50, ok := store.Quantile("bulk-index", "latency", 0.5); ok {
				log.WithField("p50_ms", p50).Info("bulk-index latency")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&track, "track", "geonames", "track name (metadata only; track loading is out of scope)")
	cmd.Flags().IntVar(&clients, "clients", 2, "number of simulated load-generator clients")
	cmd.Flags().IntVar(&iterations, "iterations", 100, "iterations per client per task")

	return cmd
}

// hostIndices turns the configured host address list into the
// round-robin placement indices the coordinator expects; a real
// multi-host System would resolve these indices back to addresses
// itself.
func hostIndices(hosts []string) []int {
	if len(hosts) == 0 {
		return nil
	}
	idx := make([]int, len(hosts))
	for i := range idx {
		idx[i] = i
	}
	return idx
}
