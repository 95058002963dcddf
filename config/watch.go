package config

import (
	"github.com/knadh/koanf/providers/file"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
)

// Watch reloads path whenever it changes and hands every valid result to
// onChange. Invalid edits are logged and ignored. The returned function
// stops watching.
func Watch(path string, log logger.Logger, onChange func(*Config)) (func() error, error) {
	log = logger.OrNop(log)
	fp := file.Provider(path)
	err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			log.Errorf("config watch %s: %v", path, err)
			return
		}
		cfg, err := Load(path)
		if err != nil {
			log.Warnf("ignoring invalid config change in %s: %v", path, err)
			return
		}
		log.Infof("config %s reloaded", path)
		onChange(cfg)
	})
	if err != nil {
		return nil, err
	}
	return fp.Unwatch, nil
}
