package config

const (
	defaultStagingDir     = "~/.local/share/beam-patcher/staging"
	defaultStateDB        = "~/.local/share/beam-patcher/state.db"
	defaultGameDir        = "."
	defaultTargetArchive  = "data.grf"
	defaultArchiveVersion = "0x200"
	defaultWorkers        = 4
	defaultMaxAttempts    = 3
	defaultBackoffMillis  = 500
	defaultBackoffMaxMS   = 10_000
	defaultTimeoutSeconds = 0
	defaultUserAgent      = "beam-patcher/1"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultCompactRatio   = 0.5
	defaultPackVersion    = 2
	defaultPackCompress   = "zstd"
)

// Default returns a Config populated with repository defaults. It has no
// mirrors or manifest URL and does not validate until those are set.
func Default() Config {
	return Config{
		Patcher: Patcher{
			GameDir:          defaultGameDir,
			TargetArchive:    defaultTargetArchive,
			ArchiveVersion:   defaultArchiveVersion,
			AllowManualPatch: true,
			VerifyChecksums:  true,
			CompactThreshold: defaultCompactRatio,
		},
		Download: Download{
			Workers:        defaultWorkers,
			MaxAttempts:    defaultMaxAttempts,
			BackoffMillis:  defaultBackoffMillis,
			BackoffMaxMS:   defaultBackoffMaxMS,
			TimeoutSeconds: defaultTimeoutSeconds,
			UserAgent:      defaultUserAgent,
		},
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDB:    defaultStateDB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Pack: Pack{
			Version:     defaultPackVersion,
			Compression: defaultPackCompress,
			Checksum:    true,
		},
	}
}
