package config

import (
	"errors"
	"fmt"

	"mediadedup/internal/hash"
	"mediadedup/internal/models"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateCategories(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateClassifier() error {
	cl := c.Classifier
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if !hash.ValidWidth(cl.FingerprintBits) {
		return fmt.Errorf("classifier.fingerprint_bits must be a power of four of at least 64, got %d", cl.FingerprintBits)
	}
	if _, err := models.ParsePartition(cl.Partition); err != nil {
		return fmt.Errorf("classifier.partition: %w", err)
	}
	return nil
}

func (c *Config) validateCategories() error {
	for name := range c.Categories {
		if _, err := models.ParseCategory(name); err != nil {
			return fmt.Errorf("categories.%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
