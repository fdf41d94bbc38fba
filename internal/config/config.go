package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDBName          = "tradelog.db"
	defaultCapital         = 100
	defaultAuthWait        = 1500 * time.Millisecond
	defaultSummaryDebounce = 250 * time.Millisecond
	defaultSummaryWeeks    = 4
)

// UserConfig is the persisted application configuration. Durations are
// stored as Go duration strings ("1.5s", "250ms").
type UserConfig struct {
	DBName          string  `json:"db_name" yaml:"db_name"`
	DataDir         string  `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	DefaultCapital  float64 `json:"default_capital" yaml:"default_capital"`
	RemoteURL       string  `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	RemoteToken     string  `json:"remote_token,omitempty" yaml:"remote_token,omitempty"`
	UserID          string  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	AuthWait        string  `json:"auth_wait,omitempty" yaml:"auth_wait,omitempty"`
	SummaryDebounce string  `json:"summary_debounce,omitempty" yaml:"summary_debounce,omitempty"`
	SummaryWeeks    int     `json:"summary_weeks,omitempty" yaml:"summary_weeks,omitempty"`
	Timezone        string  `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

var runtimeDataDir string
var runtimePort = 8000

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

func SetRuntimePort(port int) {
	if port > 0 {
		runtimePort = port
	}
}

func GetRuntimePort() int {
	return runtimePort
}

// Defaults returns the configuration used when no file exists.
func Defaults() UserConfig {
	return UserConfig{
		DBName:         defaultDBName,
		DefaultCapital: defaultCapital,
		SummaryWeeks:   defaultSummaryWeeks,
	}
}

func appConfigDir() (string, error) {
	if IsMacOS() {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "TradeLog"), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "TradeLog"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "tradelog"), nil
	}
	return filepath.Join(configDir, "tradelog"), nil
}

// ConfigPath returns the config file in use: config.yaml when present,
// config.json otherwise.
func ConfigPath() (string, error) {
	dir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{"config.yaml", "config.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return filepath.Join(dir, "config.json"), nil
}

func IsFirstRun() bool {
	path, err := ConfigPath()
	if err != nil {
		return true
	}
	_, err = os.Stat(path)
	return err != nil
}

// LoadFromFile reads a YAML or JSON config file over the defaults.
func LoadFromFile(path string) (UserConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Defaults(), fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	if cfg.DBName == "" {
		cfg.DBName = defaultDBName
	}
	if err := cfg.Validate(); err != nil {
		return Defaults(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadUserConfig returns the stored config with environment overrides
// applied. A missing or unreadable file yields the defaults.
func LoadUserConfig() UserConfig {
	cfg := Defaults()
	if path, err := ConfigPath(); err == nil {
		if loaded, err := LoadFromFile(path); err == nil {
			cfg = loaded
		}
	}
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *UserConfig) {
	if v := strings.TrimSpace(os.Getenv("TRADELOG_REMOTE_URL")); v != "" {
		cfg.RemoteURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADELOG_REMOTE_TOKEN")); v != "" {
		cfg.RemoteToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADELOG_USER_ID")); v != "" {
		cfg.UserID = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADELOG_DEFAULT_CAPITAL")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DefaultCapital = f
		}
	}
}

// SaveUserConfig writes cfg to the app config dir, as YAML when the active
// config file is YAML.
func SaveUserConfig(cfg UserConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToFile(cfg, path)
}

func SaveToFile(cfg UserConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the optional fields that must parse.
func (c UserConfig) Validate() error {
	if c.DefaultCapital < 0 {
		return errors.New("default_capital must not be negative")
	}
	if c.SummaryWeeks < 0 {
		return errors.New("summary_weeks must not be negative")
	}
	if _, err := parseDuration(c.AuthWait); err != nil {
		return fmt.Errorf("auth_wait: %w", err)
	}
	if _, err := parseDuration(c.SummaryDebounce); err != nil {
		return fmt.Errorf("summary_debounce: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if strings.ContainsAny(c.DBName, `/\`) {
		return errors.New("db_name must not include a path")
	}
	return nil
}

func (c UserConfig) AuthWaitDuration() time.Duration {
	d, err := parseDuration(c.AuthWait)
	if err != nil || d <= 0 {
		return defaultAuthWait
	}
	return d
}

func (c UserConfig) SummaryDebounceDuration() time.Duration {
	d, err := parseDuration(c.SummaryDebounce)
	if err != nil || d <= 0 {
		return defaultSummaryDebounce
	}
	return d
}

// Location resolves Timezone; empty means the host's local zone.
func (c UserConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(strings.TrimSpace(c.Timezone))
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func GetDataDir() (string, error) {
	if runtimeDataDir != "" {
		return ensureDir(runtimeDataDir)
	}
	if envDir := os.Getenv("TRADELOG_DATA_DIR"); envDir != "" {
		return ensureDir(envDir)
	}
	cfg := LoadUserConfig()
	if cfg.DataDir != "" {
		return ensureDir(cfg.DataDir)
	}
	defaultDir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	return ensureDir(defaultDir)
}

func GetDBPath() (string, error) {
	if envPath := strings.TrimSpace(os.Getenv("TRADELOG_DB_PATH")); envPath != "" {
		return envPath, nil
	}
	cfg := LoadUserConfig()
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	name := cfg.DBName
	if name == "" {
		name = defaultDBName
	}
	return filepath.Join(dataDir, name), nil
}
