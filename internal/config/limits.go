package config

import "time"

type Limits struct {
	UnitTimeout      time.Duration   `yaml:"unit_timeout" validate:"required,min=1s,max=1h"`
	ImageAttempts    int             `yaml:"image_attempts" validate:"required,min=1,max=10"`
	ImageBackoff     time.Duration   `yaml:"image_backoff" validate:"min=0,max=5m"`
	ImageDelay       time.Duration   `yaml:"image_delay" validate:"min=0,max=1m"`
	ImageParallelism int             `yaml:"image_parallelism" validate:"required,min=1,max=16"`
	ImageTimeout     time.Duration   `yaml:"image_timeout" validate:"required,min=1s,max=1h"`
	MaxContextChars  int             `yaml:"max_context_chars" validate:"required,min=200,max=100000"`
	TranslateWorkers int             `yaml:"translate_workers" validate:"required,min=1,max=32"`
	TotalTimeout     time.Duration   `yaml:"total_timeout" validate:"required,min=1m,max=24h"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		UnitTimeout:      3 * time.Minute,
		ImageAttempts:    3,
		ImageBackoff:     2 * time.Second,
		ImageDelay:       time.Second,
		ImageParallelism: 1,
		ImageTimeout:     2 * time.Minute,
		MaxContextChars:  2000,
		TranslateWorkers: 4,
		TotalTimeout:     2 * time.Hour,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
		},
	}
}
