// Command band-sim stands in for the motion bands and can drive a whole
// match against a running display.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/okian/duel/internal/bandsim"
	"github.com/okian/duel/pkg/logger"
)

var version = "dev"

func main() {
	if err := fang.Execute(context.Background(), newRootCmd()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := bandsim.DefaultConfig()
	var logFormat, logLevel string

	root := &cobra.Command{
		Use:   "band-sim",
		Short: "Simulated motion bands for the duel display",
		Long: `band-sim answers capture commands on the broker for the configured bands
and publishes random-walk readings while they capture.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := logger.InitWithFormat(logFormat, os.Stdout); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return logger.SetLevelString(logLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bandsim.New(cfg, bandsim.WithLogger(logger.Named("bands"))).Run(ctx)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&logLevel, "log-level", "info", "log level")

	f := root.Flags()
	f.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker URL")
	f.StringVar(&cfg.TopicPrefix, "topic-prefix", cfg.TopicPrefix, "band topic prefix")
	f.StringVar(&cfg.Username, "username", "", "broker username")
	f.StringVar(&cfg.Password, "password", "", "broker password")
	f.StringSliceVar(&cfg.Bands, "bands", cfg.Bands, "telemetry ids to simulate")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "publish period while capturing")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "broker operation timeout")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random walk seed")
	f.Float64Var(&cfg.Step, "step", cfg.Step, "largest increment per reading")
	f.Float64Var(&cfg.Ceiling, "ceiling", cfg.Ceiling, "largest absolute axis value")

	root.AddCommand(newPlayCmd())
	return root
}

func newPlayCmd() *cobra.Command {
	cfg := bandsim.DefaultPlayConfig()

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Create a match on the display and verify its result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := bandsim.Play(ctx, cfg, logger.Named("play"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "match %s: %s wins %d to %d after %d polls in %s\n",
				report.MatchID, report.Winner, report.Totals.Band010, report.Totals.Band020,
				report.Polls, report.Duration.Round(time.Millisecond))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the display service")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.Poll, "poll", cfg.Poll, "display polling period")
	f.DurationVar(&cfg.Deadline, "deadline", cfg.Deadline, "give up when the match has not finished by then")
	f.IntVar(&cfg.Rounds[0].Duration, "round1", cfg.Rounds[0].Duration, "round 1 duration in time units")
	f.IntVar(&cfg.Rounds[1].Duration, "round2", cfg.Rounds[1].Duration, "round 2 duration in time units")
	return cmd
}
