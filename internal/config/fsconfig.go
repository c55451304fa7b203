package config

// WriteMode controls how PageCache.Write validates the write offset.
type WriteMode int

const (
	WriteModeNone WriteMode = iota
	WriteModeAppend
	WriteModeRandom
)

func (m WriteMode) String() string {
	switch m {
	case WriteModeNone:
		return "none"
	case WriteModeAppend:
		return "append"
	case WriteModeRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ServerType is the backend storage type reported by GetFilesystem, used to
// pick the default write mode.
type ServerType string

const (
	ServerTypeS3      ServerType = "s3"
	ServerTypeFTP     ServerType = "ftp"
	ServerTypeLocal   ServerType = "local"
	ServerTypeUnknown ServerType = ""
)

// AccountLimits are the subset of GetAccountLimits appdata that influence
// FSConfig derivation: account storage-limit flags downgrade the write
// mode on top of what the server type allows.
type AccountLimits struct {
	RandomWriteDisabled bool
	AppendOnly          bool
}

// FSConfig is the per-filesystem policy.
type FSConfig struct {
	ChunkSize int64 // 0 = none
	ReadOnly  bool
	WriteMode WriteMode
}

// DeriveFSConfig computes the write mode for a filesystem from its server
// type, downgraded by account limits and the global config's read-only
// policy. Account limits can only downgrade, never upgrade, the mode.
func DeriveFSConfig(global Config, serverType ServerType, chunkSize int64, limits AccountLimits) FSConfig {
	mode := WriteModeRandom
	switch serverType {
	case ServerTypeS3:
		mode = WriteModeNone
	case ServerTypeFTP:
		mode = WriteModeAppend
	}
	if limits.RandomWriteDisabled && mode == WriteModeRandom {
		mode = WriteModeAppend
	}
	if limits.AppendOnly && mode == WriteModeRandom {
		mode = WriteModeAppend
	}
	return FSConfig{
		ChunkSize: chunkSize,
		ReadOnly:  global.EffectiveReadOnly(),
		WriteMode: mode,
	}
}
