package config

const (
	defaultLogLevel  = "INFO"
	defaultLogFormat = "text"
	defaultLogOutput = "stdout"

	defaultMaxFileSizeBytes    = 100 * 1024 * 1024 // 100 MiB, per the UFS file-size cap.
	defaultDescriptorPoolFloor = 10

	defaultMaxThreads = 8
	defaultMaxTasks   = 1024

	defaultPrompt                  = "sysprog> "
	defaultBackgroundRegistryFloor = 10
)

// ApplyDefaults fills in zero-valued fields with their defaults. Called
// after unmarshaling so that values explicitly set in the file or
// environment are never overwritten.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyUFSDefaults(&cfg.UFS)
	applyTPoolDefaults(&cfg.TPool)
	applyShellDefaults(&cfg.Shell)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = defaultLogLevel
	}
	if cfg.Format == "" {
		cfg.Format = defaultLogFormat
	}
	if cfg.Output == "" {
		cfg.Output = defaultLogOutput
	}
}

func applyUFSDefaults(cfg *UFSConfig) {
	if cfg.MaxFileSizeBytes == 0 {
		cfg.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}
	if cfg.DescriptorPoolFloor == 0 {
		cfg.DescriptorPoolFloor = defaultDescriptorPoolFloor
	}
}

func applyTPoolDefaults(cfg *TPoolConfig) {
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = defaultMaxThreads
	}
	if cfg.MaxTasks == 0 {
		cfg.MaxTasks = defaultMaxTasks
	}
}

func applyShellDefaults(cfg *ShellConfig) {
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.BackgroundRegistryFloor == 0 {
		cfg.BackgroundRegistryFloor = defaultBackgroundRegistryFloor
	}
}
