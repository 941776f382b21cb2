package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MI_COACH_"

type cliConfig struct {
	APIURL   string        `yaml:"api_url"`
	Token    string        `yaml:"token"`
	Email    string        `yaml:"email"`
	UserID   string        `yaml:"user_id"`
	Mode     string        `yaml:"mode"`
	DeviceDB string        `yaml:"device_db"`
	LogLevel string        `yaml:"log_level"`
	LogStyle string        `yaml:"log_style"`
	Timeout  time.Duration `yaml:"timeout"`
}

// homeDir is ~/.mi-coach, or MI_COACH_HOME when set.
func homeDir(getenv func(string) string) string {
	if h := getenv(envPrefix + "HOME"); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mi-coach")
	}
	return ".mi-coach"
}

func defaultConfig(home string) cliConfig {
	return cliConfig{
		APIURL:   "http://localhost:8080",
		Mode:     "online",
		DeviceDB: filepath.Join(home, "device.db"),
		LogLevel: "warn",
		LogStyle: "text",
		Timeout:  60 * time.Second,
	}
}

// loadConfig layers defaults, the YAML file and MI_COACH_* variables. A
// missing file is only an error when the path was given explicitly.
func loadConfig(path string, getenv func(string) string) (cliConfig, error) {
	home := homeDir(getenv)
	cfg := defaultConfig(home)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, "config.yaml")
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cliConfig{}, fmt.Errorf("read config: %w", err)
	}

	overrides := map[string]*string{
		"API_URL":   &cfg.APIURL,
		"TOKEN":     &cfg.Token,
		"EMAIL":     &cfg.Email,
		"USER_ID":   &cfg.UserID,
		"MODE":      &cfg.Mode,
		"DEVICE_DB": &cfg.DeviceDB,
		"LOG_LEVEL": &cfg.LogLevel,
		"LOG_STYLE": &cfg.LogStyle,
	}
	for key, dst := range overrides {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	if v := getenv(envPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cliConfig{}, fmt.Errorf("%sTIMEOUT: %w", envPrefix, err)
		}
		cfg.Timeout = d
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg, nil
}

// forgetToken removes the saved token from the config file so the next run
// starts signed out.
func forgetToken(path string, getenv func(string) string) error {
	if path == "" {
		path = filepath.Join(homeDir(getenv), "config.yaml")
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if _, ok := doc["token"]; !ok {
		return nil
	}
	delete(doc, "token")
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
