package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate runs struct-tag validation and cross-field sanity checks that
// tags alone can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation: %w", err)
	}

	if cfg.TPool.MaxThreads > tpoolMaxThreadsHardCap {
		return fmt.Errorf("tpool.max_threads %d exceeds hard cap %d", cfg.TPool.MaxThreads, tpoolMaxThreadsHardCap)
	}
	if cfg.TPool.MaxTasks > tpoolMaxTasksHardCap {
		return fmt.Errorf("tpool.max_tasks %d exceeds hard cap %d", cfg.TPool.MaxTasks, tpoolMaxTasksHardCap)
	}

	return nil
}

// Hard ceilings mirrored from pkg/tpool so config validation can reject an
// out-of-range value before the pool is ever constructed.
const (
	tpoolMaxThreadsHardCap = 1024
	tpoolMaxTasksHardCap   = 1 << 16
)
