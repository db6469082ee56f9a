package app

import (
	"context"
	"time"
)

// Shutdown performs graceful shutdown of all components.
// It stops the application in the following order:
//  1. Stops accepting HTTP requests and waits for in-flight ones
//  2. Stops the scheduler timers and the idle-conversation sweep
//  3. Drains the worker pool so running tasks reach the ledger
//  4. Detaches observers and stops the Telegram forwarder
//  5. Cancels the application context and closes storage
//
// The method is thread-safe and idempotent.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	if a.httpServer != nil {
		timeout := time.Duration(a.config.Server.ShutdownTimeoutSeconds) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to stop HTTP server gracefully", err)
		}
		cancel()
	}

	err := a.releaseLocked()
	a.started = false
	a.logger.Info("Application shutdown complete")
	return err
}

// releaseLocked stops everything Initialize may have created. It tolerates
// partially initialized state. a.mu must be held.
func (a *App) releaseLocked() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.sessionSweep != nil {
		a.sessionSweep.Stop()
	}

	if a.workerPool != nil {
		a.workerPool.Stop()
	}

	for _, unsubscribe := range a.unsubscribers {
		if unsubscribe != nil {
			unsubscribe()
		}
	}
	a.unsubscribers = nil

	if a.telegram != nil {
		a.telegram.Stop()
		a.telegram = nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	var dbErr error
	if a.db != nil {
		if dbErr = a.db.Close(); dbErr != nil {
			a.logger.Error("Failed to close storage", dbErr)
		}
		a.db = nil
	}
	return dbErr
}
