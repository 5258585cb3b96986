// Package config loads runtime settings from defaults, an optional config
// file, and DECKSCAN_-prefixed environment variables, in ascending
// precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TTL floors. Completed jobs must outlive the polling client; the
// fingerprint index must outlive the job so idempotency holds across
// resubmissions.
const (
	MinJobTTLSeconds         = 3600
	MinFingerprintTTLSeconds = 604800
)

// Settings is the full configuration surface.
type Settings struct {
	// HTTP and worker pool.
	ListenAddr string `mapstructure:"listen_addr"`
	Workers    int    `mapstructure:"workers"`
	QueueDepth int    `mapstructure:"queue_depth"`

	// Image intake.
	MaxImageBytes    int64 `mapstructure:"max_image_bytes"`
	EnableSuperres   bool  `mapstructure:"enable_superres"`
	SuperresMinWidth int   `mapstructure:"superres_min_width"`

	// OCR strategy thresholds.
	OCREarlyStopConf float64  `mapstructure:"ocr_early_stop_conf"`
	OCRMinConf       float64  `mapstructure:"ocr_min_conf"`
	OCRMinLines      int      `mapstructure:"ocr_min_lines"`
	OCRMinSpanConf   float64  `mapstructure:"ocr_min_span_conf"`
	OCRLanguages     []string `mapstructure:"ocr_languages"`

	// Secondary OCR provider.
	EnableVisionFallback  bool   `mapstructure:"enable_vision_fallback"`
	VisionEndpoint        string `mapstructure:"vision_endpoint"`
	VisionAPIKey          string `mapstructure:"vision_api_key"`
	VisionBudgetPerMinute int    `mapstructure:"vision_budget_per_minute"`

	// Card database.
	CardDBPath                 string `mapstructure:"carddb_path"`
	AlwaysVerifyCardDB         bool   `mapstructure:"always_verify_carddb"`
	EnableCardDBOnlineFallback bool   `mapstructure:"enable_carddb_online_fallback"`
	CardDBAPITimeoutS          int    `mapstructure:"carddb_api_timeout_s"`
	CardDBAPIRateLimitMS       int    `mapstructure:"carddb_api_rate_limit_ms"`
	FuzzyTopK                  int    `mapstructure:"fuzzy_topk"`

	// Job store and lifecycle.
	RedisAddr             string `mapstructure:"redis_addr"`
	JobTTLSeconds         int    `mapstructure:"job_ttl_s"`
	FingerprintTTLSeconds int    `mapstructure:"fingerprint_ttl_s"`
	JobDeadlineSeconds    int    `mapstructure:"job_deadline_s"`

	Verbose bool `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("workers", 4)
	v.SetDefault("queue_depth", 64)

	v.SetDefault("max_image_bytes", 10<<20)
	v.SetDefault("enable_superres", false)
	v.SetDefault("superres_min_width", 1200)

	v.SetDefault("ocr_early_stop_conf", 0.85)
	v.SetDefault("ocr_min_conf", 0.62)
	v.SetDefault("ocr_min_lines", 10)
	v.SetDefault("ocr_min_span_conf", 0.3)
	v.SetDefault("ocr_languages", []string{"eng", "fra", "deu", "spa"})

	v.SetDefault("enable_vision_fallback", false)
	v.SetDefault("vision_endpoint", "")
	v.SetDefault("vision_api_key", "")
	v.SetDefault("vision_budget_per_minute", 10)

	v.SetDefault("carddb_path", "data/cards.db")
	v.SetDefault("always_verify_carddb", true)
	v.SetDefault("enable_carddb_online_fallback", true)
	v.SetDefault("carddb_api_timeout_s", 5)
	v.SetDefault("carddb_api_rate_limit_ms", 120)
	v.SetDefault("fuzzy_topk", 5)

	v.SetDefault("redis_addr", "")
	v.SetDefault("job_ttl_s", MinJobTTLSeconds)
	v.SetDefault("fingerprint_ttl_s", MinFingerprintTTLSeconds)
	v.SetDefault("job_deadline_s", 30)

	v.SetDefault("verbose", false)
}

// Load builds Settings. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DECKSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings that would violate pipeline invariants.
func (s *Settings) Validate() error {
	for name, v := range map[string]float64{
		"ocr_early_stop_conf": s.OCREarlyStopConf,
		"ocr_min_conf":        s.OCRMinConf,
		"ocr_min_span_conf":   s.OCRMinSpanConf,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", s.QueueDepth)
	}
	if s.MaxImageBytes < 1 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", s.MaxImageBytes)
	}
	if s.JobTTLSeconds < MinJobTTLSeconds {
		return fmt.Errorf("job_ttl_s must be at least %d, got %d", MinJobTTLSeconds, s.JobTTLSeconds)
	}
	if s.FingerprintTTLSeconds < MinFingerprintTTLSeconds {
		return fmt.Errorf("fingerprint_ttl_s must be at least %d, got %d", MinFingerprintTTLSeconds, s.FingerprintTTLSeconds)
	}
	if s.JobDeadlineSeconds < 1 {
		return fmt.Errorf("job_deadline_s must be positive, got %d", s.JobDeadlineSeconds)
	}
	if s.EnableVisionFallback && (s.VisionEndpoint == "" || s.VisionAPIKey == "") {
		return fmt.Errorf("enable_vision_fallback requires vision_endpoint and vision_api_key")
	}
	return nil
}

func (s *Settings) CardDBTimeout() time.Duration {
	return time.Duration(s.CardDBAPITimeoutS) * time.Second
}

func (s *Settings) CardDBMinInterval() time.Duration {
	return time.Duration(s.CardDBAPIRateLimitMS) * time.Millisecond
}

func (s *Settings) JobTTL() time.Duration {
	return time.Duration(s.JobTTLSeconds) * time.Second
}

func (s *Settings) FingerprintTTL() time.Duration {
	return time.Duration(s.FingerprintTTLSeconds) * time.Second
}

func (s *Settings) JobDeadline() time.Duration {
	return time.Duration(s.JobDeadlineSeconds) * time.Second
}
