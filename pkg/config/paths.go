package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application name
	AppName = "riskdesk"

	// AppDirName is the directory name for app data
	AppDirName = ".riskdesk"
)

// GetAppDir returns the application data directory (~/.riskdesk).
// RISKDESK_HOME overrides it.
func GetAppDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, AppDirName), nil
}

// GetConfigPath returns the global config file path
func GetConfigPath() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "config.yaml"), nil
}

// GetAlertsDir returns the directory holding persisted alerts
func GetAlertsDir() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "data"), nil
}

// GetHooksPath returns the default hooks file
func GetHooksPath() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "hooks.yaml"), nil
}
