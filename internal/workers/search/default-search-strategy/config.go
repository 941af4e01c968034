// internal/workers/search/default-search-strategy/config.go
package defaultsearchstrategy

import (
	"time"

	"search-courier/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig takes the job deadline from the worker entry, falling back to
// the courier search timeout.
func LoadConfig(cfg *config.Config) *Config {
	timeout := 30 * time.Second
	if cfg == nil {
		return &Config{Timeout: timeout}
	}
	if ms := cfg.Courier.SearchTimeout; ms > 0 {
		timeout = config.GetDuration(ms)
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		timeout = config.GetDuration(w.Timeout)
	}
	return &Config{Timeout: timeout}
}
