// Package config loads the retraining control-plane configuration.
//
// Configuration is read once at process start from an optional YAML file plus
// RETRAINCTL_-prefixed environment variables. A malformed or missing file is
// never fatal: the loader logs the problem and continues with the hardcoded
// safe defaults, so the control plane always starts in a conservative state.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ListenerConfig gates drift-alert intake.
type ListenerConfig struct {
	SeverityThreshold float64       `mapstructure:"severity_threshold"`
	DebounceWindow    time.Duration `mapstructure:"debounce_window"`
	CooldownWindow    time.Duration `mapstructure:"cooldown_window"`
	MaxQueueSize      int           `mapstructure:"max_queue_size"`
}

// OptimizerConfig holds the business-level schedule rules applied after the
// listener's own debounce.
type OptimizerConfig struct {
	SeverityFloor         float64       `mapstructure:"severity_floor"`
	Cooldown              time.Duration `mapstructure:"cooldown"`
	MaxRetrainsPerWindow  int           `mapstructure:"max_retrains_per_window"`
	HighTrafficDays       []string      `mapstructure:"high_traffic_days"` // weekday names
	RetrainCountingWindow time.Duration `mapstructure:"retrain_counting_window"`
}

// ResourceConfig bounds the training job queue and per-job requirements.
type ResourceConfig struct {
	CPULimit             int           `mapstructure:"cpu_limit"`
	MemoryLimitMB        int           `mapstructure:"memory_limit_mb"`
	MaxQueueSize         int           `mapstructure:"max_queue_size"`
	WorkerCount          int           `mapstructure:"worker_count"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	UseIsolatedExecution bool          `mapstructure:"use_isolated_execution"`
	IsolatedCommand      string        `mapstructure:"isolated_command"`
	JournalDir           string        `mapstructure:"journal_dir"`
}

// ValidationConfig drives the gate and the comparator.
type ValidationConfig struct {
	SignificanceLevel    float64 `mapstructure:"significance_level"`
	ImprovementThreshold float64 `mapstructure:"improvement_threshold"`
	BaselinePath         string  `mapstructure:"baseline_path"`
}

// NotifyConfig configures the notification sink.
type NotifyConfig struct {
	LogPath        string        `mapstructure:"log_path"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// ServerConfig configures the alert-intake HTTP endpoint.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config is the full control-plane configuration, loaded once and passed to
// each component's constructor. Components never re-read it.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	LedgerDSN  string           `mapstructure:"ledger_dsn"`
	Listener   ListenerConfig   `mapstructure:"listener"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Resource   ResourceConfig   `mapstructure:"resource"`
	Validation ValidationConfig `mapstructure:"validation"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Server     ServerConfig     `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("ledger_dsn", "retrainctl.db")

	v.SetDefault("listener.severity_threshold", 0.7)
	v.SetDefault("listener.debounce_window", 5*time.Minute)
	v.SetDefault("listener.cooldown_window", 10*time.Minute)
	v.SetDefault("listener.max_queue_size", 5)

	v.SetDefault("optimizer.severity_floor", 0.7)
	v.SetDefault("optimizer.cooldown", 10*time.Minute)
	v.SetDefault("optimizer.max_retrains_per_window", 3)
	v.SetDefault("optimizer.high_traffic_days", []string{"Saturday", "Sunday"})
	v.SetDefault("optimizer.retrain_counting_window", 24*time.Hour)

	v.SetDefault("resource.cpu_limit", 2)
	v.SetDefault("resource.memory_limit_mb", 2048)
	v.SetDefault("resource.max_queue_size", 5)
	v.SetDefault("resource.worker_count", 1)
	v.SetDefault("resource.poll_interval", time.Second)
	v.SetDefault("resource.use_isolated_execution", false)
	v.SetDefault("resource.isolated_command", "")
	v.SetDefault("resource.journal_dir", "jobjournal")

	v.SetDefault("validation.significance_level", 0.05)
	v.SetDefault("validation.improvement_threshold", 0.01)
	v.SetDefault("validation.baseline_path", "validation/baseline_metrics.json")

	v.SetDefault("notify.log_path", "logs/notifications.log")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_timeout", 5*time.Second)

	v.SetDefault("server.addr", ":8085")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Load reads the configuration from the given YAML file. Any load or parse
// failure falls back to defaults for the affected keys.
func Load(path string, log *zap.Logger) *Config {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RETRAINCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Warn("config_load_failed, using defaults",
				zap.String("path", path), zap.Error(err))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		log.Error("config_unmarshal_failed, using defaults", zap.Error(err))
		fresh := viper.New()
		setDefaults(fresh)
		_ = fresh.Unmarshal(cfg)
	}
	applyFlatAliases(v, cfg)
	return cfg
}

// applyFlatAliases accepts the flat, second-granularity key layout some
// deployments still use alongside the sectioned one. Flat keys win when both
// are present.
func applyFlatAliases(v *viper.Viper, cfg *Config) {
	if v.IsSet("severity_threshold") {
		cfg.Listener.SeverityThreshold = v.GetFloat64("severity_threshold")
		cfg.Optimizer.SeverityFloor = v.GetFloat64("severity_threshold")
	}
	if v.IsSet("debounce_seconds") {
		cfg.Listener.DebounceWindow = time.Duration(v.GetInt("debounce_seconds")) * time.Second
	}
	if v.IsSet("cooldown_seconds") {
		cfg.Listener.CooldownWindow = time.Duration(v.GetInt("cooldown_seconds")) * time.Second
	}
	if v.IsSet("max_queue_size") {
		cfg.Listener.MaxQueueSize = v.GetInt("max_queue_size")
		cfg.Resource.MaxQueueSize = v.GetInt("max_queue_size")
	}
	if v.IsSet("max_retrains_per_window") {
		cfg.Optimizer.MaxRetrainsPerWindow = v.GetInt("max_retrains_per_window")
	}
	if v.IsSet("window_days") {
		cfg.Optimizer.HighTrafficDays = v.GetStringSlice("window_days")
	}
	if v.IsSet("significance_level") {
		cfg.Validation.SignificanceLevel = v.GetFloat64("significance_level")
	}
	if v.IsSet("improvement_threshold") {
		cfg.Validation.ImprovementThreshold = v.GetFloat64("improvement_threshold")
	}
	if v.IsSet("cpu_limit") {
		cfg.Resource.CPULimit = v.GetInt("cpu_limit")
	}
	if v.IsSet("memory_limit_mb") {
		cfg.Resource.MemoryLimitMB = v.GetInt("memory_limit_mb")
	}
	if v.IsSet("use_isolated_execution") {
		cfg.Resource.UseIsolatedExecution = v.GetBool("use_isolated_execution")
	}
}

// Default returns the hardcoded safe defaults without touching any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// HighTrafficWeekdays resolves the configured day names into time.Weekday
// values. Unrecognized names are skipped.
func (c OptimizerConfig) HighTrafficWeekdays() map[time.Weekday]bool {
	names := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	days := make(map[time.Weekday]bool, len(c.HighTrafficDays))
	for _, n := range c.HighTrafficDays {
		if d, ok := names[strings.ToLower(n)]; ok {
			days[d] = true
		}
	}
	return days
}
