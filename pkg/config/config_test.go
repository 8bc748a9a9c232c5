package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/pkg/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, 60, cfg.Ingester.AnalysisInterval)
	assert.Equal(t, time.Minute, cfg.Ingester.Interval())
	assert.Equal(t, 7, cfg.Baseline.WindowDays)
	assert.Equal(t, 3.0, cfg.Detector.SigmaThreshold)
	assert.Equal(t, 3.0, cfg.Detector.VolumeUpperSigma)
	assert.Equal(t, 2.0, cfg.Detector.VolumeLowerSigma)
	assert.Equal(t, 300, cfg.Alerting.BatchInterval)
	assert.Equal(t, 5*time.Minute, cfg.Alerting.GroupingWindow)
	assert.True(t, cfg.Alerting.CriticalImmediate)
	assert.True(t, cfg.Privacy.IPHashing)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.True(t, cfg.Model.Enabled)
	assert.False(t, cfg.Detector.EnableGeographicRule)
	assert.Equal(t, 0.3, cfg.Alerting.FalsePositiveRatio)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOptions(t *testing.T) {
	t.Setenv("ANALYSIS_INTERVAL", "30")
	t.Setenv("BASELINE_WINDOW_DAYS", "14")
	t.Setenv("SIGMA_THRESHOLD", "2.5")
	t.Setenv("ALERT_BATCH_INTERVAL", "120")
	t.Setenv("CRITICAL_ALERT_IMMEDIATE", "false")
	t.Setenv("IP_HASHING", "false")
	t.Setenv("DATA_RETENTION_DAYS", "90")
	t.Setenv("ENABLE_MULTIVARIATE_MODEL", "false")
	t.Setenv("ENABLE_GEOGRAPHIC_RULE", "true")

	cfg := validConfig(t)

	assert.Equal(t, 30*time.Second, cfg.Ingester.Interval())
	assert.Equal(t, 14, cfg.Baseline.WindowDays)
	assert.Equal(t, 2.5, cfg.Detector.SigmaThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Alerting.Batch())
	assert.False(t, cfg.Alerting.CriticalImmediate)
	assert.False(t, cfg.Privacy.IPHashing)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.False(t, cfg.Model.Enabled)
	assert.True(t, cfg.Detector.EnableGeographicRule)
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("ANOMALY_DETECTOR_VOLUME_LOWER_SIGMA", "1.5")
	t.Setenv("ANOMALY_INGESTER_ANALYSIS_INTERVAL", "120")

	cfg := validConfig(t)

	assert.Equal(t, 1.5, cfg.Detector.VolumeLowerSigma)
	assert.Equal(t, 2*time.Minute, cfg.Ingester.Interval())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*config.Config)
		expectErr   bool
		errContains string
	}{
		{
			name:       "valid config",
			modifyFunc: func(c *config.Config) {},
			expectErr:  false,
		},
		{
			name: "memory storage needs no database",
			modifyFunc: func(c *config.Config) {
				c.Storage.Driver = "memory"
				c.Source.Type = "http"
				c.Database.Host = ""
			},
			expectErr: false,
		},
		{
			name: "postgres source needs postgres storage",
			modifyFunc: func(c *config.Config) {
				c.Storage.Driver = "memory"
			},
			expectErr:   true,
			errContains: "requires storage.driver postgres",
		},
		{
			name: "source timeout longer than interval",
			modifyFunc: func(c *config.Config) {
				c.Source.Timeout = 90 * time.Second
			},
			expectErr:   true,
			errContains: "timeout must be less than",
		},
		{
			name: "interval must divide an hour",
			modifyFunc: func(c *config.Config) {
				c.Ingester.AnalysisInterval = 7
			},
			expectErr:   true,
			errContains: "divide one hour",
		},
		{
			name: "false positive ratio out of range",
			modifyFunc: func(c *config.Config) {
				c.Alerting.FalsePositiveRatio = 1.5
			},
			expectErr:   true,
			errContains: "false_positive_ratio",
		},
		{
			name: "bad timezone",
			modifyFunc: func(c *config.Config) {
				c.Baseline.Timezone = "Mars/Olympus"
			},
			expectErr:   true,
			errContains: "baseline.timezone",
		},
		{
			name: "hash key must change in production",
			modifyFunc: func(c *config.Config) {
				c.App.Mode = "production"
			},
			expectErr:   true,
			errContains: "hash_key must be changed",
		},
		{
			name: "model percentile bounds",
			modifyFunc: func(c *config.Config) {
				c.Model.Percentile = 100
			},
			expectErr:   true,
			errContains: "model.percentile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modifyFunc(cfg)

			err := cfg.Validate()

			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	dbCfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Name:     "testdb",
		User:     "admin",
		Password: "secret",
		SSLMode:  "disable",
	}

	dsn := dbCfg.DSN()

	expected := "host=localhost port=5432 user=admin password=secret dbname=testdb sslmode=disable"
	assert.Equal(t, expected, dsn)
}
