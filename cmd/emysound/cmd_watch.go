package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emysound/internal/cache"
	"emysound/internal/watcher"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Insert audio files as they appear in a directory",
		Long: `Watch a directory tree and insert every new supported audio file.

Runs until interrupted. Files shorter than watch.min_duration_seconds are
skipped. When watch.metrics_bind is set, Prometheus metrics
are served on /metrics at that address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.load(); err != nil {
				return err
			}

			if dir == "" {
				dir = a.cfg.Watch.Directory
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to watch (default from config)")
	return cmd
}

// watch runs the watcher until ctx is done.
func (a *app) watch(ctx context.Context, dir string) error {
	submissions := cache.NewSubmissionCache(time.Hour)
	defer submissions.Close()

	w, err := watcher.New(watcher.Options{
		Directory:   dir,
		Settle:      time.Duration(a.cfg.Watch.SettleMillis) * time.Millisecond,
		MinDuration: time.Duration(a.cfg.Watch.MinDurationSeconds * float64(time.Second)),
		Client:      a.client,
		Extractor:   a.extractor,
		Submissions: submissions,
		Metrics:     a.metrics,
		Logger:      a.logger,
		OnResult: func(res watcher.Result) {
			if res.Err == nil && !res.Duplicate {
				fmt.Fprintf(a.stdout, "%s %s\n", res.ID.Value, res.Path)
			}
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	metricsErr := make(chan error, 1)
	if bind := a.cfg.Watch.MetricsBind; bind != "" {
		go func() {
			metricsErr <- a.metrics.Serve(ctx, bind, a.logger)
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
		return nil
	case err := <-metricsErr:
		if err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}
