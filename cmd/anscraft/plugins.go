package main

import (
	"os"
	"path/filepath"
	"plugin"

	"go.uber.org/zap"
)

// loadPlugins opens every .so under $ANSCRAFT_HOME/plugins (default
// ~/.anscraft/plugins) and calls its Register symbol, which is expected
// to register modules the same way built-ins do. A broken plugin is
// logged and skipped; it never aborts the CLI.
func loadPlugins(log *zap.SugaredLogger) error {
	dir := pluginDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // no plugin dir, nothing to load
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".so" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		p, err := plugin.Open(path)
		if err != nil {
			log.Warnw("cannot open plugin", "plugin", path, "error", err)
			continue
		}
		sym, err := p.Lookup("Register")
		if err != nil {
			log.Warnw("plugin has no Register symbol", "plugin", path)
			continue
		}
		reg, ok := sym.(func())
		if !ok {
			log.Warnw("plugin Register has wrong signature", "plugin", path)
			continue
		}
		reg()
		log.Infow("loaded plugin pack", "plugin", e.Name())
	}
	return nil
}

func pluginDir() string {
	if home := os.Getenv("ANSCRAFT_HOME"); home != "" {
		return filepath.Join(home, "plugins")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".anscraft", "plugins")
}
