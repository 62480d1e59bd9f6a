package hotreload

import (
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
)

// ReloadSettings returns a callback that re-reads the settings file into store. A file that fails
// to load or validate leaves the live settings unchanged.
//
// Parameters:
//   - path: the settings file
//   - store: the live settings
//
// Returns:
//   - func() error: the reload callback
func ReloadSettings(path string, store settings.Store) func() error {
	return func() error {
		s, err := settings.Load(path)
		if err != nil {
			logger.Warn("settings %s not reloaded: %v", path, err)
			return err
		}
		if err := store.Replace(s); err != nil {
			logger.Warn("settings %s not reloaded: %v", path, err)
			return err
		}
		logger.SetLevel(s.Debug.LogLevel)
		logger.Info("settings reloaded from %s", path)
		return nil
	}
}
