package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envAliases binds the short operator-facing environment names to config keys.
// The prefixed form (ANOMALY_<KEY>) keeps working through AutomaticEnv.
var envAliases = map[string]string{
	"ingester.analysis_interval":      "ANALYSIS_INTERVAL",
	"baseline.window_days":            "BASELINE_WINDOW_DAYS",
	"detector.sigma_threshold":        "SIGMA_THRESHOLD",
	"alerting.batch_interval":         "ALERT_BATCH_INTERVAL",
	"alerting.critical_immediate":     "CRITICAL_ALERT_IMMEDIATE",
	"privacy.ip_hashing":              "IP_HASHING",
	"retention.days":                  "DATA_RETENTION_DAYS",
	"model.enabled":                   "ENABLE_MULTIVARIATE_MODEL",
	"detector.enable_geographic_rule": "ENABLE_GEOGRAPHIC_RULE",
}

const envPrefix = "ANOMALY"

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/anomaly-engine")
	}

	// Environment variable settings
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func bindEnvAliases(v *viper.Viper) error {
	for key, alias := range envAliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", alias, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "anomaly-engine")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "lens")
	v.SetDefault("database.user", "lens")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migration_timeout", "60s")

	v.SetDefault("storage.driver", "postgres")

	// Source defaults
	v.SetDefault("source.type", "postgres")
	v.SetDefault("source.endpoint", "http://localhost:9000")
	v.SetDefault("source.table", "request_logs")
	v.SetDefault("source.timeout", "10s")
	v.SetDefault("source.retry_attempts", 3)
	v.SetDefault("source.retry_delay", "1s")
	v.SetDefault("source.circuit_breaker.max_failures", 5)
	v.SetDefault("source.circuit_breaker.timeout", "30s")

	// Ingester defaults
	v.SetDefault("ingester.analysis_interval", 60)
	v.SetDefault("ingester.lag", "10s")
	v.SetDefault("ingester.max_backlog", "6h")
	v.SetDefault("ingester.chunk_buckets", 60)

	// Baseline defaults
	v.SetDefault("baseline.window_days", 7)
	v.SetDefault("baseline.recompute_interval", "1h")
	v.SetDefault("baseline.min_samples", 30)
	v.SetDefault("baseline.timezone", "UTC")
	v.SetDefault("baseline.chunk_size", "6h")
	v.SetDefault("baseline.timeout", "10m")

	// Detector defaults
	v.SetDefault("detector.sigma_threshold", 3.0)
	v.SetDefault("detector.volume_upper_sigma", 3.0)
	v.SetDefault("detector.volume_lower_sigma", 2.0)
	v.SetDefault("detector.latency_ratio", 2.0)
	v.SetDefault("detector.auth_failure_threshold", 10)
	v.SetDefault("detector.auth_failure_window", "60s")
	v.SetDefault("detector.enable_geographic_rule", false)

	// Multivariate model defaults
	v.SetDefault("model.enabled", true)
	v.SetDefault("model.retrain_interval", "168h")
	v.SetDefault("model.num_trees", 100)
	v.SetDefault("model.subsample_size", 256)
	v.SetDefault("model.max_depth", 10)
	v.SetDefault("model.percentile", 99.0)
	v.SetDefault("model.min_samples", 256)
	v.SetDefault("model.seed", 0)
	v.SetDefault("model.timeout", "30m")

	// Alerting defaults
	v.SetDefault("alerting.grouping_window", "5m")
	v.SetDefault("alerting.batch_interval", 300)
	v.SetDefault("alerting.critical_immediate", true)
	v.SetDefault("alerting.max_delivery_attempts", 3)
	v.SetDefault("alerting.send_timeout", "10s")
	v.SetDefault("alerting.queue_size", 256)
	v.SetDefault("alerting.false_positive_ratio", 0.3)
	v.SetDefault("alerting.feedback_window", "168h")
	v.SetDefault("alerting.rule_stats_interval", "15m")
	v.SetDefault("alerting.meta_alert_threshold", 5)

	// Privacy defaults
	v.SetDefault("privacy.ip_hashing", true)
	v.SetDefault("privacy.hash_key", "change-me-in-production")
	v.SetDefault("privacy.hash_length", 16)

	// Retention defaults
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.purge_interval", "24h")

	// Notifier defaults
	v.SetDefault("notifier.slack.username", "anomaly-engine")
	v.SetDefault("notifier.webhook.timeout", "10s")
	v.SetDefault("notifier.email.port", 587)

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.auth_enabled", false)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "anomaly-engine")
	v.SetDefault("api.default_limit", 100)
	v.SetDefault("api.max_limit", 1000)
	v.SetDefault("api.max_body_bytes", 1<<20)

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)

	v.SetDefault("events.buffer_size", 256)
}
