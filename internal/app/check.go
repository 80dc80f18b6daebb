package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
)

// Check runs on-demand checks for the given item ids and returns when every
// check has finished.
func (a *App) Check(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return errors.New("at least one item id is required")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pipe := a.buildPipeline(store)
	defer pipe.manager.Shutdown()

	return pipe.checker.CheckMany(ctx, ids)
}
