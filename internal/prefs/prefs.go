// Package prefs holds user settings: the config file and the column sets
// remembered per database.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Viewer is the command run on a structure file, the file name is
	// appended as the last argument.
	Viewer         []string `yaml:"viewer"`
	InitialRows    int      `yaml:"initial_rows"`
	DefaultColumns []string `yaml:"default_columns"`
	NoticeSeconds  float64  `yaml:"notice_seconds"`
}

func Default() Config {
	return Config{
		Viewer:        []string{"ase", "gui"},
		InitialRows:   100,
		NoticeSeconds: 3,
	}
}

func (c Config) NoticeDuration() time.Duration {
	return time.Duration(c.NoticeSeconds * float64(time.Second))
}

// CacheDir is where the column store and the log live.
func CacheDir() (string, error) {
	if d := os.Getenv("TEXASE_CACHE_DIR"); d != "" {
		return d, nil
	}
	d, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache dir: %w", err)
	}
	return filepath.Join(d, "texase"), nil
}

func ConfigPath() (string, error) {
	if p := os.Getenv("TEXASE_CONFIG"); p != "" {
		return p, nil
	}
	d, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(d, "texase", "config.yaml"), nil
}

// Load reads the config file. A missing file gives the defaults, fields
// left out of the file keep their default values.
func Load() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Viewer) == 0 {
		cfg.Viewer = Default().Viewer
	}
	if cfg.InitialRows <= 0 {
		cfg.InitialRows = Default().InitialRows
	}
	if cfg.NoticeSeconds <= 0 {
		cfg.NoticeSeconds = Default().NoticeSeconds
	}
	return cfg, nil
}
