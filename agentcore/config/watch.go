package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch re-reads the config file whenever it changes and hands the decoded
// result to fn. Reloads that fail to decode or validate are logged and
// dropped; the previous configuration stays in effect.
func (l *Loader) Watch(logger zerolog.Logger, fn func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config reload")
			return
		}
		logger.Info().Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}
