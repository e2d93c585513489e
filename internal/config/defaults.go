package config

const (
	defaultDatabase              = "~/.local/share/mediadedup/media.db"
	defaultCoarseThreshold       = 0.10
	defaultVariantThreshold      = 0.05
	defaultFingerprintBits       = 256
	defaultPartition             = "global"
	defaultFetchTimeoutSeconds   = 30
	defaultFetchMaxBytes         = 64 << 20
	defaultRetryAttempts         = 4
	defaultRetryInitialBackoffMS = 250
	defaultRetryMaxBackoffMS     = 5000
	defaultUserAgent             = "mediadedup/1.0"
	defaultWorkers               = 8
	defaultRecordTimeoutSeconds  = 120
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Database: defaultDatabase,
		},
		Classifier: Classifier{
			CoarseThreshold:  defaultCoarseThreshold,
			VariantThreshold: defaultVariantThreshold,
			FingerprintBits:  defaultFingerprintBits,
			Partition:        defaultPartition,
		},
		Fetch: Fetch{
			TimeoutSeconds:        defaultFetchTimeoutSeconds,
			MaxBytes:              defaultFetchMaxBytes,
			RetryAttempts:         defaultRetryAttempts,
			RetryInitialBackoffMS: defaultRetryInitialBackoffMS,
			RetryMaxBackoffMS:     defaultRetryMaxBackoffMS,
			UserAgent:             defaultUserAgent,
		},
		Pipeline: Pipeline{
			Workers:              defaultWorkers,
			RecordTimeoutSeconds: defaultRecordTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
