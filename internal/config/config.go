// Package config holds the process-wide Config (server capabilities and
// CLI policy) and the per-filesystem FSConfig.
package config

import "time"

// CacheMode selects how PageCache and BackendSession treat mutating calls.
// MEMORY is the test-harness hook.
type CacheMode int

const (
	CacheModeNone CacheMode = iota
	CacheModeMemory
	CacheModeNormal
)

func ParseCacheMode(s string) (CacheMode, bool) {
	switch s {
	case "none":
		return CacheModeNone, true
	case "memory":
		return CacheModeMemory, true
	case "normal":
		return CacheModeNormal, true
	default:
		return CacheModeNone, false
	}
}

func (m CacheMode) String() string {
	switch m {
	case CacheModeNone:
		return "none"
	case CacheModeMemory:
		return "memory"
	case CacheModeNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Config is the process-wide policy derived from CLI flags plus
// capabilities reported by the server's GetConfig call.
type Config struct {
	// CLI-supplied policy.
	ReadOnly         bool
	PageSize         int64
	DirRefresh       time.Duration
	ReadAheadTime    time.Duration
	ReadMaxCacheFrac int
	ReadAheadBuffer  int64
	CacheMode        CacheMode
	BackendRunners   int
	MaxRetries       int
	RetryTime        time.Duration
	NoChmod          bool
	NoChown          bool

	// Server-reported capabilities (GetConfig appdata).
	ServerReadOnly bool
	APIVersion     string
}

// Default returns the documented CLI defaults.
func Default() Config {
	return Config{
		PageSize:         128 * 1024,
		DirRefresh:       15 * time.Second,
		ReadAheadTime:    time.Second,
		ReadMaxCacheFrac: 4,
		ReadAheadBuffer:  4 * 1024 * 1024,
		CacheMode:        CacheModeNormal,
		BackendRunners:   4,
		MaxRetries:       0,
		RetryTime:        5 * time.Second,
	}
}

// EffectiveReadOnly is true if either the CLI or the server demands
// read-only behavior.
func (c Config) EffectiveReadOnly() bool {
	return c.ReadOnly || c.ServerReadOnly
}
