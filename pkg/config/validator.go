package config

import (
	"errors"
	"fmt"
	"time"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Storage validation
	switch c.Storage.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, errors.New("database.max_connections must be positive"))
		}
	case "memory":
	default:
		errs = append(errs, errors.New("storage.driver must be one of: postgres, memory"))
	}

	// Source validation
	switch c.Source.Type {
	case "postgres":
		if c.Storage.Driver != "postgres" {
			errs = append(errs, errors.New("source.type postgres requires storage.driver postgres"))
		}
		if c.Source.Table == "" {
			errs = append(errs, errors.New("source.table is required"))
		}
	case "http":
		if c.Source.Endpoint == "" {
			errs = append(errs, errors.New("source.endpoint is required for http source"))
		}
	case "memory":
	default:
		errs = append(errs, errors.New("source.type must be one of: postgres, http, memory"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout must be positive"))
	}

	// Ingester validation
	interval := c.Ingester.Interval()
	if interval <= 0 {
		errs = append(errs, errors.New("ingester.analysis_interval must be positive"))
	}
	if interval > 0 && c.Source.Timeout >= interval {
		errs = append(errs, errors.New("source.timeout must be less than ingester.analysis_interval"))
	}
	if interval > 0 && time.Hour%interval != 0 {
		errs = append(errs, errors.New("ingester.analysis_interval must divide one hour evenly"))
	}
	if c.Ingester.MaxBacklog < interval {
		errs = append(errs, errors.New("ingester.max_backlog must be at least one analysis interval"))
	}
	if c.Ingester.ChunkBuckets <= 0 {
		errs = append(errs, errors.New("ingester.chunk_buckets must be positive"))
	}

	// Baseline validation
	if c.Baseline.WindowDays <= 0 {
		errs = append(errs, errors.New("baseline.window_days must be positive"))
	}
	if c.Baseline.RecomputeInterval <= 0 {
		errs = append(errs, errors.New("baseline.recompute_interval must be positive"))
	}
	if c.Baseline.MinSamples <= 1 {
		errs = append(errs, errors.New("baseline.min_samples must be greater than 1"))
	}
	if _, err := time.LoadLocation(c.Baseline.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("baseline.timezone is invalid: %v", err))
	}

	// Detector validation
	if c.Detector.SigmaThreshold <= 0 {
		errs = append(errs, errors.New("detector.sigma_threshold must be positive"))
	}
	if c.Detector.VolumeUpperSigma <= 0 || c.Detector.VolumeLowerSigma <= 0 {
		errs = append(errs, errors.New("detector volume thresholds must be positive"))
	}
	if c.Detector.LatencyRatio <= 1 {
		errs = append(errs, errors.New("detector.latency_ratio must be greater than 1"))
	}
	if c.Detector.AuthFailureThreshold <= 0 {
		errs = append(errs, errors.New("detector.auth_failure_threshold must be positive"))
	}
	if c.Detector.AuthFailureWindow <= 0 {
		errs = append(errs, errors.New("detector.auth_failure_window must be positive"))
	}

	// Model validation
	if c.Model.Enabled {
		if c.Model.NumTrees <= 0 || c.Model.SubSampleSize <= 1 || c.Model.MaxDepth <= 0 {
			errs = append(errs, errors.New("model.num_trees, subsample_size and max_depth must be positive"))
		}
		if c.Model.Percentile <= 0 || c.Model.Percentile >= 100 {
			errs = append(errs, errors.New("model.percentile must be between 0 and 100"))
		}
		if c.Model.RetrainInterval <= 0 {
			errs = append(errs, errors.New("model.retrain_interval must be positive"))
		}
	}

	// Alerting validation
	if c.Alerting.GroupingWindow <= 0 {
		errs = append(errs, errors.New("alerting.grouping_window must be positive"))
	}
	if c.Alerting.BatchInterval <= 0 {
		errs = append(errs, errors.New("alerting.batch_interval must be positive"))
	}
	if c.Alerting.MaxDeliveryAttempts <= 0 {
		errs = append(errs, errors.New("alerting.max_delivery_attempts must be positive"))
	}
	if c.Alerting.FalsePositiveRatio <= 0 || c.Alerting.FalsePositiveRatio >= 1 {
		errs = append(errs, errors.New("alerting.false_positive_ratio must be between 0 and 1"))
	}
	if c.Alerting.MetaAlertThreshold <= 0 {
		errs = append(errs, errors.New("alerting.meta_alert_threshold must be positive"))
	}

	// Privacy and retention validation
	if c.Privacy.IPHashing && c.Privacy.HashKey == "" {
		errs = append(errs, errors.New("privacy.hash_key is required when ip_hashing is enabled"))
	}
	if c.App.Mode == "production" && c.Privacy.IPHashing && c.Privacy.HashKey == "change-me-in-production" {
		errs = append(errs, errors.New("privacy.hash_key must be changed in production"))
	}
	if c.Retention.Days <= 0 {
		errs = append(errs, errors.New("retention.days must be positive"))
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.API.AuthEnabled && c.Storage.Driver != "postgres" {
		errs = append(errs, errors.New("api.auth_enabled requires storage.driver postgres"))
	}
	if c.App.Mode == "production" && c.API.AuthEnabled && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
