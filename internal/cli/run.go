package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forPelevin/audiojournal/internal/pipeline"
	"github.com/spf13/cobra"
)

func newProcessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <audio>...",
		Short: "Run the full pipeline on one or more recordings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, a, args)
		},
	}
	cmd.Flags().String("out", "", "Output directory (overrides paths.output)")
	cmd.Flags().Int("workers", 0, "Concurrent inputs (overrides chunker.max_workers)")
	cmd.Flags().Bool("no-merge", false, "Skip merging adjacent same-scene segments")
	return cmd
}

func runProcess(cmd *cobra.Command, a *app, inputs []string) error {
	cfg := a.cfg
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Paths.Output = out
	}
	if cmd.Flags().Changed("workers") {
		w, _ := cmd.Flags().GetInt("workers")
		cfg.Chunker.MaxWorkers = w
		cfg.Chunker.Parallel = w > 1
	}
	if noMerge, _ := cmd.Flags().GetBool("no-merge"); noMerge {
		cfg.Merger.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 6*time.Hour)
	defer cancel()

	pc := pipeline.Config{Inputs: inputs, App: cfg, Log: a.log}
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	rep, err := pipeline.Run(ctx, pc)

	out := cmd.OutOrStdout()
	for _, o := range rep.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", o.Input, o.Err)
			continue
		}
		fmt.Fprintf(out, "ok   %s -> %s (%d results)\n", o.Input, o.Manifest, o.Results)
	}
	if err != nil {
		if n := rep.Failed(); n > 0 {
			return fmt.Errorf("%d of %d inputs failed", n, len(rep.Outcomes))
		}
		return err
	}
	return nil
}
