// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It wires
// the stores and services and starts the background workers (presence
// sweep, notification retry, mail dispatcher).
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.App == nil {
		return errors.New("bootstrap: DBDeps.App not allocated")
	}
	if err := deps.App.build(appCfg, deps, logger); err != nil {
		logger.Error("service wiring failed", zap.Error(err))
		return err
	}
	deps.App.start()
	return nil
}
