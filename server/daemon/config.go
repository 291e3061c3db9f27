// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package daemon assembles a complete payment-metered agent server from
// TOML configuration: stores, payment boundary, finalizer, executor bridge
// and the HTTP surface.
package daemon

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"

	payments "github.com/nevermined-io/payments-go"
)

// Config holds all daemon configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	Agent   AgentConfig   `toml:"agent"`
	Payment PaymentConfig `toml:"payment"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	QueueSize int    `toml:"queue_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AgentConfig describes the agent card served at the well-known path.
type AgentConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	URL         string `toml:"url"`
	Version     string `toml:"version"`
}

// PaymentConfig declares the payment plan and the facilitator endpoint.
type PaymentConfig struct {
	AgentID        string  `toml:"agent_id"`
	PlanID         string  `toml:"plan_id"`
	PaymentType    string  `toml:"payment_type"`
	Credits        uint64  `toml:"credits"`
	FacilitatorURL string  `toml:"facilitator_url"`
	UseBatch       bool    `toml:"use_batch"`
	UseMargin      bool    `toml:"use_margin"`
	MarginPercent  float64 `toml:"margin_percent"`
}

// DefaultConfig returns the defaults applied before the config file.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			QueueSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Agent: AgentConfig{
			Name:    "payments-agent",
			Version: "dev",
		},
		Payment: PaymentConfig{
			PaymentType: string(payments.PaymentTypeFixed),
			Credits:     1,
		},
	}
}

// LoadConfig reads configuration from the given TOML file on top of the
// defaults. An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Payment.AgentID == "" {
		return fmt.Errorf("payment.agent_id is required")
	}
	if c.Payment.PlanID == "" {
		return fmt.Errorf("payment.plan_id is required")
	}
	if c.Payment.FacilitatorURL == "" {
		return fmt.Errorf("payment.facilitator_url is required")
	}
	switch payments.PaymentType(c.Payment.PaymentType) {
	case payments.PaymentTypeFixed, payments.PaymentTypeDynamic:
	default:
		return fmt.Errorf("invalid payment.payment_type: %q", c.Payment.PaymentType)
	}
	return nil
}

// Extension builds the payment extension declared by this configuration.
func (c *Config) Extension() *payments.PaymentExtension {
	return &payments.PaymentExtension{
		AgentID:     c.Payment.AgentID,
		PlanID:      c.Payment.PlanID,
		PaymentType: payments.PaymentType(c.Payment.PaymentType),
		Credits:     c.Payment.Credits,
		RedemptionConfig: &payments.RedemptionConfig{
			UseBatch:      c.Payment.UseBatch,
			UseMargin:     c.Payment.UseMargin,
			MarginPercent: c.Payment.MarginPercent,
		},
	}
}

// Logger builds the slog logger described by the logging section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
