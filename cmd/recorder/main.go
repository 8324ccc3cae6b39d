package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"answer-router/internal/app"
	"answer-router/internal/httputil"
	"answer-router/internal/queue"
	"answer-router/internal/store"
)

func main() {
	deps, err := app.BuildRecorder()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Log.Warn("close dependencies", "err", err)
		}
	}()
	deps.Log.Info("recorder worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeRecordDecision, recordHandler(deps.Store, deps.Log))
	})

	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Log, deps.Config.Port, "recorder")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("recorder stopped", "err", err)
	}
}

// recordHandler persists each published decision. Store errors make the queue retry the task;
// undecodable payloads come back wrapped in queue.ErrPermanent and are dropped.
func recordHandler(st store.Store, log *slog.Logger) queue.Handler {
	return func(ctx context.Context, task queue.Task) error {
		rec, err := queue.DecodeDecision(task)
		if err != nil {
			return err
		}
		if err := st.SaveDecision(ctx, rec); err != nil {
			return fmt.Errorf("save decision %s: %w", rec.ID, err)
		}
		log.Debug("decision stored", "decision_id", rec.ID, "source", rec.Winner.Result.Source, "attempt", task.Attempts)
		return nil
	}
}
