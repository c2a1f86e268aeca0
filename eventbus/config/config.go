// Package config provides eventbus-scoped configuration: dispatch
// sizing, RPC timeouts, and the hub transport's namespace. Adapted
// from coreengine/config's JSON-tagged-struct-with-defaults pattern.
package config

import "time"

// Config holds the knobs a process needs to stand up an eventbus.Bus.
// It carries no broker connection details beyond a namespace string —
// dialing the broker (Redis address, TLS, auth) stays the caller's
// responsibility, the same split coreengine/config draws between
// orchestration config and infrastructure config.
type Config struct {
	// Dispatch
	DispatchWorkers int `json:"dispatch_workers"`

	// Timeouts
	DefaultRPCTimeoutMs int `json:"default_rpc_timeout_ms"`
	ShutdownTimeoutMs   int `json:"shutdown_timeout_ms"`

	// Hub transport
	Namespace      string `json:"namespace"`
	RPCReplyTTLMs  int    `json:"rpc_reply_ttl_ms"`

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		DispatchWorkers:     1,
		DefaultRPCTimeoutMs: 30000,
		ShutdownTimeoutMs:   10000,
		Namespace:           "global",
		RPCReplyTTLMs:       300000,
		LogLevel:            "INFO",
	}
}

func (c *Config) DefaultRPCTimeout() time.Duration {
	return time.Duration(c.DefaultRPCTimeoutMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

func (c *Config) RPCReplyTTL() time.Duration {
	return time.Duration(c.RPCReplyTTLMs) * time.Millisecond
}

// FromMap overlays config onto a copy of DefaultConfig. Unknown keys
// are ignored, mirroring CoreConfigFromMap's tolerance of unrecognized
// fields from an external JSON payload.
func FromMap(overrides map[string]any) *Config {
	c := DefaultConfig()

	if v, ok := intFromAny(overrides["dispatch_workers"]); ok {
		c.DispatchWorkers = v
	}
	if v, ok := intFromAny(overrides["default_rpc_timeout_ms"]); ok {
		c.DefaultRPCTimeoutMs = v
	}
	if v, ok := intFromAny(overrides["shutdown_timeout_ms"]); ok {
		c.ShutdownTimeoutMs = v
	}
	if v, ok := overrides["namespace"].(string); ok {
		c.Namespace = v
	}
	if v, ok := intFromAny(overrides["rpc_reply_ttl_ms"]); ok {
		c.RPCReplyTTLMs = v
	}
	if v, ok := overrides["log_level"].(string); ok {
		c.LogLevel = v
	}
	return c
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
