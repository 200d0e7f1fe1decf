/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config holds process-level configuration for the webdb-shell
// demo binary: listening ports, replication role, WAL path, and log
// settings. It layers defaults, a TOML file, and environment variables,
// in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"webdb/internal/ferrors"
)

// Environment variable names, in the precedence order LoadFromEnv applies them.
const (
	EnvPort          = "FLYDB_PORT"
	EnvBinaryPort    = "FLYDB_BINARY_PORT"
	EnvReplPort      = "FLYDB_REPLICATION_PORT"
	EnvRole          = "FLYDB_ROLE"
	EnvMasterAddr    = "FLYDB_MASTER_ADDR"
	EnvDBPath        = "FLYDB_DB_PATH"
	EnvLogLevel      = "FLYDB_LOG_LEVEL"
	EnvLogJSON       = "FLYDB_LOG_JSON"
	EnvAdminPassword = "FLYDB_ADMIN_PASSWORD"
)

// Config is the fully resolved process configuration.
type Config struct {
	Port       int    `toml:"port"`
	BinaryPort int    `toml:"binary_port"`
	ReplPort   int    `toml:"replication_port"`
	Role       string `toml:"role"`
	MasterAddr string `toml:"master_addr,omitempty"`
	DBPath     string `toml:"db_path"`
	LogLevel   string `toml:"log_level"`
	LogJSON    bool   `toml:"log_json"`

	AdminPassword string `toml:"-"`
	ConfigFile    string `toml:"-"`
}

// DefaultConfig returns the configuration a standalone node starts with
// absent any file or environment override.
func DefaultConfig() *Config {
	return &Config{
		Port:       8888,
		BinaryPort: 8889,
		ReplPort:   9999,
		Role:       "standalone",
		DBPath:     "webdb.wal",
		LogLevel:   "info",
		LogJSON:    false,
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate rejects a configuration that cannot be started: a bad port,
// overlapping listener ports, an unrecognized role, a slave with no
// master to replicate from, an unrecognized log level, or an empty WAL
// path.
func (c *Config) Validate() error {
	for _, p := range []struct {
		name  string
		value int
	}{{"port", c.Port}, {"binary_port", c.BinaryPort}, {"replication_port", c.ReplPort}} {
		if p.value <= 0 || p.value > 65535 {
			return ferrors.Invalid("%s: %d is not a valid TCP port", p.name, p.value)
		}
	}
	if c.Port == c.BinaryPort || c.Port == c.ReplPort || c.BinaryPort == c.ReplPort {
		return ferrors.Invalid("port, binary_port, and replication_port must all differ")
	}
	switch c.Role {
	case "standalone", "master":
	case "slave":
		if strings.TrimSpace(c.MasterAddr) == "" {
			return ferrors.Invalid("role 'slave' requires master_addr")
		}
	default:
		return ferrors.Invalid("role: %q is not one of standalone, master, slave", c.Role)
	}
	if !validLogLevels[c.LogLevel] {
		return ferrors.Invalid("log_level: %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return ferrors.Invalid("db_path must not be empty")
	}
	return nil
}

// String renders every field as a single-line human summary for
// diagnostics.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Role: %s, Port: %d, BinaryPort: %d, ReplPort: %d, DBPath: %s, LogLevel: %s, LogJSON: %v, MasterAddr: %s}",
		c.Role, c.Port, c.BinaryPort, c.ReplPort, c.DBPath, c.LogLevel, c.LogJSON, c.MasterAddr,
	)
}

// ToTOML renders the configuration in the same key = value TOML dialect
// LoadFromFile reads, suitable for handing back to an operator or for
// SaveToFile to persist.
func (c *Config) ToTOML() string {
	b, err := toml.Marshal(c)
	if err != nil {
		// Marshal only fails on cyclic or unsupported types; Config has
		// neither, so this path exists solely to keep the signature
		// panic-free for callers that can't handle an error here.
		return ""
	}
	return string(b)
}

// SaveToFile writes the configuration as TOML to path, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	if dir := parentDir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.IoError(err, "creating config directory %q", dir)
		}
	}
	if err := os.WriteFile(path, []byte(c.ToTOML()), 0o644); err != nil {
		return ferrors.IoError(err, "writing config file %q", path)
	}
	return nil
}

func parentDir(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Manager owns the current Config and mediates reload/watch access to
// it, the way the teacher's connection and cursor types guard shared
// state behind a mutex instead of exposing it directly.
type Manager struct {
	mu         sync.RWMutex
	cfg        *Config
	configPath string
	onReload   []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the current configuration. Callers must not mutate the
// returned value; treat it as a snapshot.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile parses path as TOML and replaces the current
// configuration with the result, remembering path for Reload.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ferrors.IoError(err, "reading config file %q", path)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return ferrors.Invalid("parsing config file %q: %v", path, err)
	}
	cfg.ConfigFile = path

	m.mu.Lock()
	m.cfg = cfg
	m.configPath = path
	m.mu.Unlock()
	return nil
}

// LoadFromEnv overlays environment variables onto the current
// configuration, taking precedence over whatever LoadFromFile set.
// Unset variables leave the corresponding field untouched.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := os.Getenv(EnvPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.cfg.Port = n
		}
	}
	if v := os.Getenv(EnvBinaryPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.cfg.BinaryPort = n
		}
	}
	if v := os.Getenv(EnvReplPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.cfg.ReplPort = n
		}
	}
	if v := os.Getenv(EnvRole); v != "" {
		m.cfg.Role = v
	}
	if v := os.Getenv(EnvMasterAddr); v != "" {
		m.cfg.MasterAddr = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		m.cfg.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		m.cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			m.cfg.LogJSON = b
		}
	}
	if v := os.Getenv(EnvAdminPassword); v != "" {
		m.cfg.AdminPassword = v
	}
}

// Reload re-reads the file passed to the last LoadFromFile call,
// reapplies environment overrides on top (preserving LoadFromFile <
// LoadFromEnv precedence), and invokes every callback registered with
// OnReload.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.configPath
	m.mu.RUnlock()
	if path == "" {
		return ferrors.Invalid("Reload: no config file has been loaded")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}
	m.LoadFromEnv()

	m.mu.RLock()
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.RUnlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

// OnReload registers a callback invoked with the new configuration each
// time Reload succeeds.
func (m *Manager) OnReload(cb func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, cb)
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager, creating it on first use.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
