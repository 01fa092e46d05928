package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the loadbenchctl command tree. Every flag is also
// bindable via config file / LOADBENCH_-prefixed environment variable
// through viper, so a CI pipeline can override load_driver_hosts or
// waiting_period without touching the invocation.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "loadbenchctl",
		Short: "Drive a distributed benchmark load test",
	}

	root.PersistentFlags().String("config", "", "config file (yaml/json/toml)")
	root.PersistentFlags().StringSlice("load-driver-hosts", nil, "load-generator host addresses (round-robin placement)")
	root.PersistentFlags().Duration("waiting-period", 5*time.Second, "fixed grace period added to every barrier resume instant (forced to 0 in test-mode)")
	root.PersistentFlags().Duration("progress-interval", 0, "progress line wakeup interval (0 disables the ticker)")
	root.PersistentFlags().Duration("wakeup-interval", 5*time.Second, "how often a running task ships samples mid-task (forced to 500ms in test-mode)")
	root.PersistentFlags().Bool("quiet", false, "suppress the progress line")
	root.PersistentFlags().Bool("test-mode", false, "test.mode: run with a minimal iteration count regardless of the track's own pacing")

	_ = v.BindPFlags(root.PersistentFlags())
	v.SetEnvPrefix("loadbench")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
		}
		return nil
	}

	root.AddCommand(newRunCmd(v))
	return root
}
