package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/meetai/internal/app"
)

func NewWorkerCmd(deps *Dependencies) *cobra.Command {
	var metricsAddr string
	var pollTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Summarize finished meetings from the shared job queue",
		Long:  "Consume meeting processing jobs from Redis, summarize each transcript and complete the meeting. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := deps.logger().With("component", "worker")
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.RedisURL == "" {
				return errors.New("worker requires REDIS_URL; without it the server runs jobs in-process")
			}

			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, logger, app.Options{})
			if err != nil {
				return fmt.Errorf("open backends: %w", err)
			}
			defer a.Close()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: a.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics listener failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			w := a.Worker(logger)
			w.PollTimeout = pollTimeout
			logger.Info("worker started", "queue", cfg.JobQueueKey)
			err = w.Run(ctx)
			logger.Info("worker stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&pollTimeout, "poll-timeout", 5*time.Second, "Maximum wait per queue poll")

	return cmd
}
