/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package webdb

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"

	"webdb/internal/ferrors"
)

// Config is the JSON payload spec.md §6 defines for Open: the engine
// storage path, a thread-count hint, the bigint emission toggle that
// drives schema patching, and filesystem policy.
type Config struct {
	Path           string `mapstructure:"path"`
	MaximumThreads uint32 `mapstructure:"maximum_threads"`
	EmitBigint     bool   `mapstructure:"emit_bigint"`
	Filesystem     struct {
		AllowFullHTTPReads bool `mapstructure:"allow_full_http_reads"`
	} `mapstructure:"filesystem"`
}

// InMemoryMarker selects in-memory mode per spec.md §6: an empty path or
// this literal both do.
const InMemoryMarker = ":memory:"

// IsInMemory reports whether this configuration selects in-memory mode
// (writable) rather than a read-only path-backed database.
func (c Config) IsInMemory() bool {
	return c.Path == "" || c.Path == InMemoryMarker
}

// DefaultConfig is what Open assumes for any field the payload omits.
func DefaultConfig() Config {
	return Config{EmitBigint: true}
}

// ParseConfig decodes the Open payload: a JSON unmarshal into a loosely
// typed map, then a mapstructure decode into Config, mirroring the
// two-step JSON-map-to-struct decode gcsfuse's own config loader uses.
func ParseConfig(configJSON []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(configJSON) == 0 {
		return cfg, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(configJSON, &raw); err != nil {
		return Config{}, ferrors.Invalid("parsing config JSON: %v", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, ferrors.Invalid("building config decoder: %v", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, ferrors.Invalid("decoding config: %v", err)
	}
	return cfg, nil
}
