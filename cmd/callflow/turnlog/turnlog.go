// Package turnlog opens the storage driver selected on the command line.
package turnlog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/config"
	"github.com/papercomputeco/callflow/pkg/storage"
	"github.com/papercomputeco/callflow/pkg/storage/jsonfile"
	"github.com/papercomputeco/callflow/pkg/storage/sqlite"
)

// Open returns the driver named by driverName ("jsonfile" or "sqlite") for path.
func Open(ctx context.Context, driverName, path string, historyLimit int, logger *zap.Logger) (storage.Driver, error) {
	switch driverName {
	case config.DriverJSONFile, "":
		d, err := jsonfile.NewDriver(path, logger, jsonfile.WithHistoryLimit(historyLimit))
		if err != nil {
			return nil, fmt.Errorf("could not open turn log %s: %w", path, err)
		}
		return d, nil

	case config.DriverSQLite:
		d, err := sqlite.NewDriver(ctx, path, historyLimit, logger)
		if err != nil {
			return nil, fmt.Errorf("could not open turn database %s: %w", path, err)
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driverName)
	}
}
