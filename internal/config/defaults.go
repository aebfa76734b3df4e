package config

const (
	defaultStagingDir         = "~/.local/share/skiff/staging"
	defaultLogDir             = "~/.local/share/skiff/logs"
	defaultWebBind            = "0.0.0.0:10000"
	defaultBrand              = "[Skiff Relay]"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultProbeTimeout       = 60
	defaultRemuxTimeout       = 1800
	defaultEncodeTimeout      = 3600
	defaultThumbnailTimestamp = 1
	defaultSubsetMinTracks    = 2
	defaultDeliveryAttempts   = 3
	defaultDeliveryBackoff    = 2
	defaultRetentionHours     = 1
	defaultSweepHours         = 1
	defaultFetchTimeout       = 7200
	defaultFetchMaxBytes      = 4 << 30
	defaultFetchUserAgent     = "Mozilla/5.0 (X11; Linux x86_64)"
	defaultMaxUploadBytes     = 4 << 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			WebBind:    defaultWebBind,
		},
		Telegram: Telegram{
			MaxUploadBytes: defaultMaxUploadBytes,
		},
		Naming: Naming{
			Brand:         defaultBrand,
			AudioTitleTag: defaultBrand,
		},
		Standardize: Standardize{
			FFmpegBinary:       defaultFFmpegBinary,
			FFprobeBinary:      defaultFFprobeBinary,
			ProbeTimeout:       defaultProbeTimeout,
			RemuxTimeout:       defaultRemuxTimeout,
			EncodeTimeout:      defaultEncodeTimeout,
			ThumbnailTimestamp: defaultThumbnailTimestamp,
		},
		Tracks: Tracks{
			SubsetMinTracks: defaultSubsetMinTracks,
		},
		Delivery: Delivery{
			Attempts:       defaultDeliveryAttempts,
			BackoffSeconds: defaultDeliveryBackoff,
		},
		Staging: Staging{
			RetentionHours:     defaultRetentionHours,
			SweepIntervalHours: defaultSweepHours,
		},
		Fetch: Fetch{
			TimeoutSeconds: defaultFetchTimeout,
			MaxBytes:       defaultFetchMaxBytes,
			UserAgent:      defaultFetchUserAgent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
