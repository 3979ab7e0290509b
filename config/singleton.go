package config

import "sync"

var (
	_instance ConfigManager
	_mu       sync.Mutex
)

// GetInstance returns the process-wide ConfigManager, creating it on first use.
func GetInstance() ConfigManager {
	_mu.Lock()
	defer _mu.Unlock()
	if _instance == nil {
		_instance = NewConfigManager()
	}
	return _instance
}

// ResetInstance closes and drops the process-wide ConfigManager.
func ResetInstance() {
	_mu.Lock()
	defer _mu.Unlock()
	if _instance != nil {
		_ = _instance.Close()
	}
	_instance = nil
}

// SetInstanceForTesting replaces the process-wide ConfigManager.
func SetInstanceForTesting(cm ConfigManager) {
	_mu.Lock()
	defer _mu.Unlock()
	_instance = cm
}
