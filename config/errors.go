package config

// ConfigError reports a configuration file that could not be read, parsed,
// or validated. It is always fatal at startup: cmd/mixer prints Msg and
// exits non-zero rather than attempting to run with a partially valid
// configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}
