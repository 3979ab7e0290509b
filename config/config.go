package config

// Config is implemented by every configuration struct loaded through a ConfigManager.
type Config interface {
	GetName() string
	Validate() error
}

// ConfigChangeListener is notified after a watched configuration file was reloaded
// and the new value passed validation and hooks.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}
