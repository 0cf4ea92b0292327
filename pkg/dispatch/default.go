package dispatch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/platform"
	"github.com/platinummonkey/beacon/pkg/prefs"
)

var (
	defaultOnce       sync.Once
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher, creating it on first call. Preferences
// are kept in the per-user config file and the application name is taken from the
// executable.
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		logger := observability.NewLogger(observability.InfoLevel, os.Stderr)

		var store prefs.Store = prefs.NewMemory()
		if path, err := prefs.DefaultFilePath(); err == nil {
			store = prefs.NewFile(path)
		} else {
			logger.WithError(err).Warn("no user config directory, preferences will not persist")
		}

		appName := filepath.Base(os.Args[0])
		info := platform.NewInfo(platform.Config{
			AppName: appName,
			Store:   store,
		})

		defaultDispatcher = New(Options{
			Platform: info,
			Prefs:    store,
			Logger:   logger,
			AppName:  appName,
		})
	})
	return defaultDispatcher
}
