package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// Task runs until ctx is cancelled and then returns promptly.
type Task func(ctx context.Context) error

// WithSignals runs every task until SIGINT/SIGTERM or until one of them fails,
// then cancels the rest and waits for them. It returns the process exit code.
func (r *Runner) WithSignals(tasks ...Task) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.Run(ctx, tasks...)
}

// Run is WithSignals without the signal wiring.
func (r *Runner) Run(ctx context.Context, tasks ...Task) int {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		r.Logger.Info("shutdown signal received")
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
