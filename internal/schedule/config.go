package schedule

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// JobConfig represents one scheduled resync entry
type JobConfig struct {
	Name             string `toml:"name"`
	Cron             string `toml:"cron"`
	BatchSize        int    `toml:"batch_size"`
	ClearFirst       bool   `toml:"clear_first"`
	NotifyOnComplete bool   `toml:"notify_on_complete"`
}

// ScheduleConfig holds all scheduled resync entries
type ScheduleConfig struct {
	Jobs []JobConfig `toml:"job"`
}

// Validate checks if the config is valid
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50 // Default
	}
	return nil
}

// LoadScheduleConfig loads the schedule from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all jobs
	for i := range cfg.Jobs {
		if err := cfg.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}

	return &cfg, nil
}
