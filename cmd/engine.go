package cmd

import (
	"secscan/cache"
	"secscan/core"
	"secscan/llm"
	"secscan/logger"
	"secscan/static"
)

// buildEngine assembles the scan engine from the loaded configuration.
// A cache that cannot be opened is logged and dropped; scanning proceeds
// uncached.
func buildEngine() (*core.ScanEngine, func()) {
	staticAnalyzer := static.New(cfg)
	client := llm.NewClient(cfg)
	analyzer := llm.NewAnalyzer(client)
	validator := llm.NewValidator(client)

	var store core.CacheStore
	cleanup := func() {}
	if cfg.Cache.Enabled {
		s, err := cache.Open(cfg.Cache.Path, cfg.CacheTTL())
		if err != nil {
			logger.Warn("cache disabled: %v", err)
		} else {
			store = s
			cleanup = func() { s.Close() }
		}
	}

	engine := core.NewScanEngine(cfg, staticAnalyzer, analyzer, validator, store, core.LogSink{})
	return engine, cleanup
}
