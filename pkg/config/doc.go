// Package config loads client configuration from BEACON_* environment variables and
// optional YAML files, and hot-reloads runtime settings.
//
// Environment variables provide the defaults; a YAML file overrides whichever keys it
// sets:
//
//	app:
//	  name: demo
//	  version: 1.2.0
//	  property_id: UA-12345-1
//	dispatch:
//	  enabled: true
//	  debug: false
//	  bust_cache: true
//	  retry:
//	    max_attempts: 3
//	prefs:
//	  type: sqlite
//	  dsn: file:beacon.db
//
// Watcher re-reads the file on change; ApplyRuntime pushes the delivery switches to a
// running dispatcher:
//
//	w, err := config.NewWatcher(path, logger, func(cfg *config.Config) {
//		config.ApplyRuntime(d, cfg)
//	})
//	go w.Run(ctx)
package config
