package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
)

var batchSize int

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Create items from a YAML or JSON file in paced chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		items, err := readBatchFile(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		return runBatch(ctx, env, items, batchSize, os.Stdout)
	},
}

// runBatch creates items, waits for their background tasks and prints one
// row per item. It fails when any item was rejected or its task failed.
func runBatch(ctx context.Context, env *catalogEnv, items []model.ItemPayload, size int, out io.Writer) error {
	res := env.Batch.Run(ctx, items, size)

	if err := env.Pipeline.Wait(ctx); err != nil {
		zap.L().Warn("batch: stopped waiting for background tasks", zap.Error(err))
	}

	tasks := make(map[string]*model.BackgroundTask)
	failedTasks := 0
	for _, o := range res.Results {
		if o.Value == nil {
			continue
		}
		if t := env.Pipeline.TaskStatus(o.Value.ID); t != nil {
			tasks[o.Value.ID] = t
			if t.Status != model.TaskStatusCompleted {
				failedTasks++
			}
		}
	}

	formatBatchResult(out, items, res, tasks)

	if res.Failed > 0 || failedTasks > 0 {
		return eris.Errorf("batch: %d items rejected, %d tasks did not complete", res.Failed, failedTasks)
	}
	return nil
}

func init() {
	batchCmd.Flags().IntVar(&batchSize, "size", 0, "items per chunk (default from config)")
	rootCmd.AddCommand(batchCmd)
}
