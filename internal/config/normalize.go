package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeClassifier()
	c.normalizeFetch()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.Database) == "" {
		c.Paths.Database = defaultDatabase
	}
	if c.Paths.Database, err = expandPath(c.Paths.Database); err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockFile) == "" {
		c.Paths.LockFile = c.Paths.Database + ".lock"
	}
	if c.Paths.LockFile, err = expandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeClassifier() {
	c.Classifier.Partition = strings.ToLower(strings.TrimSpace(c.Classifier.Partition))
	if c.Classifier.Partition == "" {
		c.Classifier.Partition = defaultPartition
	}
	if c.Classifier.FingerprintBits == 0 {
		c.Classifier.FingerprintBits = defaultFingerprintBits
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeoutSeconds
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = defaultFetchMaxBytes
	}
	if c.Fetch.RetryAttempts <= 0 {
		c.Fetch.RetryAttempts = defaultRetryAttempts
	}
	if c.Fetch.RetryInitialBackoffMS <= 0 {
		c.Fetch.RetryInitialBackoffMS = defaultRetryInitialBackoffMS
	}
	if c.Fetch.RetryMaxBackoffMS <= 0 {
		c.Fetch.RetryMaxBackoffMS = defaultRetryMaxBackoffMS
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	if c.Pipeline.RecordTimeoutSeconds <= 0 {
		c.Pipeline.RecordTimeoutSeconds = defaultRecordTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
