package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file after it is parsed, so one
// file can serve several outlets.
const (
	EnvOutletID    = "SELLER_OUTLET_ID"
	EnvRestURL     = "SELLER_REST_URL"
	EnvSocketURL   = "SELLER_SOCKET_URL"
	EnvAccessToken = "SELLER_ACCESS_TOKEN"
	EnvLogLevel    = "SELLER_LOG_LEVEL"
)

var envOverrides = []struct {
	name  string
	apply func(c *DashboardConfig, v string)
}{
	{EnvOutletID, func(c *DashboardConfig, v string) { c.Outlet.ID = v }},
	{EnvRestURL, func(c *DashboardConfig, v string) { c.API.RestURL = v }},
	{EnvSocketURL, func(c *DashboardConfig, v string) { c.API.SocketURL = v }},
	{EnvAccessToken, func(c *DashboardConfig, v string) { c.API.AccessToken = v }},
	{EnvLogLevel, func(c *DashboardConfig, v string) { c.Logging.Level = v }},
}

// Load reads a YAML config file. ${VAR} and ${VAR:-default} references are
// expanded before parsing, unknown keys are rejected, and the SELLER_*
// overrides are applied last.
func Load(path string) (*DashboardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(expandEnv(string(data))))
	dec.KnownFields(true)

	var cfg DashboardConfig
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml %s: %w", path, err)
	}

	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.apply(&cfg, v)
		}
	}
	return &cfg, nil
}

// expandEnv is os.ExpandEnv plus ${VAR:-default} for unset or empty variables.
func expandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasDefault {
			return v
		}
		return def
	})
}

// LoadWithDefaults loads config and fills unset fields with defaults.
func LoadWithDefaults(path string) (*DashboardConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults and validates the result.
func LoadAndValidate(path string) (*DashboardConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}
