package config

import "reflect"

// Changed names the top-level sections that differ between two
// configs. Values are never included, so the result is safe to log.
func Changed(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out []string
	sections := []struct {
		name     string
		old, new any
	}{
		{"discord", oldCfg.Discord, newCfg.Discord},
		{"logging", oldCfg.Logging, newCfg.Logging},
		{"storage", oldCfg.Storage, newCfg.Storage},
		{"dispatch", oldCfg.Dispatch, newCfg.Dispatch},
		{"reminders", oldCfg.Reminders, newCfg.Reminders},
		{"janitor", oldCfg.Janitor, newCfg.Janitor},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			out = append(out, s.name)
		}
	}
	return out
}
