package config

import "time"

// Config holds runtime settings for the sync agent.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend sync API.
//   - DatabaseDSN: path to the local SQLite replica database.
//   - AuthToken: bearer token presented on every API call.
//   - SyncInterval: how often the agent runs a push/pull cycle.
//
// Units: SyncInterval is a time.Duration (e.g., 60*time.Second).
type Config struct {
	ServerEndpointAddr string
	DatabaseDSN        string
	AuthToken          string
	SyncInterval       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabaseDSN = "mailsync.db"
	c.AuthToken = ""
	c.SyncInterval = 60 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
