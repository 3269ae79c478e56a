package app

import (
	"context"
	"errors"

	"chatstore/pkg/state/logger"
	"chatstore/pkg/telemetry"
)

// Shutdown stops the endpoint, the scheduled check and the sensor, then
// flushes telemetry and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	a.ready.Store(false)
	var errs []error

	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				logger.Error("http_shutdown_failed", "error", err)
				errs = append(errs, err)
			}
		case <-ctx.Done():
			logger.Warn("http_shutdown_timeout")
			errs = append(errs, ctx.Err())
		}
	}
	if a.checkCancel != nil {
		a.checkCancel()
	}
	if a.hwSensor != nil {
		a.hwSensor.Stop()
	}
	telemetry.Close()
	if err := a.closeStore(); err != nil {
		logger.Error("store_close_failed", "error", err)
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err == nil {
		a.state = "stopped"
	}
	logger.Info("app_stopped", "state", a.state)
	return err
}
