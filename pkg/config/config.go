package config

import (
	"fmt"
	"time"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Source     SourceConfig     `mapstructure:"source"`
	Ingester   IngesterConfig   `mapstructure:"ingester"`
	Baseline   BaselineConfig   `mapstructure:"baseline"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Model      ModelConfig      `mapstructure:"model"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Privacy    PrivacyConfig    `mapstructure:"privacy"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	API        APIConfig        `mapstructure:"api"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Events     EventsConfig     `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

// StorageConfig selects where anomalies, alerts, feedback, baselines and the
// ingest watermark live: "postgres" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type SourceConfig struct {
	Type           string               `mapstructure:"type"`
	Endpoint       string               `mapstructure:"endpoint"`
	Table          string               `mapstructure:"table"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type IngesterConfig struct {
	// AnalysisInterval is the tick interval and bucket width, in seconds.
	AnalysisInterval int           `mapstructure:"analysis_interval"`
	Lag              time.Duration `mapstructure:"lag"`
	MaxBacklog       time.Duration `mapstructure:"max_backlog"`
	ChunkBuckets     int           `mapstructure:"chunk_buckets"`
}

func (c IngesterConfig) Interval() time.Duration {
	return time.Duration(c.AnalysisInterval) * time.Second
}

type BaselineConfig struct {
	WindowDays        int           `mapstructure:"window_days"`
	RecomputeInterval time.Duration `mapstructure:"recompute_interval"`
	MinSamples        int           `mapstructure:"min_samples"`
	Timezone          string        `mapstructure:"timezone"`
	ChunkSize         time.Duration `mapstructure:"chunk_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

func (c BaselineConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

type DetectorConfig struct {
	SigmaThreshold       float64       `mapstructure:"sigma_threshold"`
	VolumeUpperSigma     float64       `mapstructure:"volume_upper_sigma"`
	VolumeLowerSigma     float64       `mapstructure:"volume_lower_sigma"`
	LatencyRatio         float64       `mapstructure:"latency_ratio"`
	AuthFailureThreshold int           `mapstructure:"auth_failure_threshold"`
	AuthFailureWindow    time.Duration `mapstructure:"auth_failure_window"`
	EnableGeographicRule bool          `mapstructure:"enable_geographic_rule"`
}

type ModelConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RetrainInterval time.Duration `mapstructure:"retrain_interval"`
	NumTrees        int           `mapstructure:"num_trees"`
	SubSampleSize   int           `mapstructure:"subsample_size"`
	MaxDepth        int           `mapstructure:"max_depth"`
	Percentile      float64       `mapstructure:"percentile"`
	MinSamples      int           `mapstructure:"min_samples"`
	Seed            int64         `mapstructure:"seed"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type AlertingConfig struct {
	GroupingWindow time.Duration `mapstructure:"grouping_window"`

	// BatchInterval is the warning flush interval, in seconds.
	BatchInterval       int           `mapstructure:"batch_interval"`
	CriticalImmediate   bool          `mapstructure:"critical_immediate"`
	MaxDeliveryAttempts int           `mapstructure:"max_delivery_attempts"`
	SendTimeout         time.Duration `mapstructure:"send_timeout"`
	QueueSize           int           `mapstructure:"queue_size"`
	FalsePositiveRatio  float64       `mapstructure:"false_positive_ratio"`
	FeedbackWindow      time.Duration `mapstructure:"feedback_window"`
	RuleStatsInterval   time.Duration `mapstructure:"rule_stats_interval"`
	MetaAlertThreshold  int           `mapstructure:"meta_alert_threshold"`
}

func (c AlertingConfig) Batch() time.Duration {
	return time.Duration(c.BatchInterval) * time.Second
}

type PrivacyConfig struct {
	IPHashing  bool   `mapstructure:"ip_hashing"`
	HashKey    string `mapstructure:"hash_key"`
	HashLength int    `mapstructure:"hash_length"`
}

type RetentionConfig struct {
	Days          int           `mapstructure:"days"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

func (c RetentionConfig) Period() time.Duration {
	return time.Duration(c.Days) * 24 * time.Hour
}

type NotifierConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Email   EmailConfig   `mapstructure:"email"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
}

type WebhookConfig struct {
	URL      string        `mapstructure:"url"`
	Template string        `mapstructure:"template"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type APIConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	AuthEnabled  bool          `mapstructure:"auth_enabled"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTDuration  time.Duration `mapstructure:"jwt_duration"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
