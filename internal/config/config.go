// Package config loads the YAML configuration of the signer node and the aggregator.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/taurusgroup/frost-bridge/pkg/party"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 200 * time.Millisecond
	DefaultSessionTTL   = 24 * time.Hour
	DefaultGCInterval   = time.Hour
)

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Signer configures one signer node.
type Signer struct {
	ID      party.ID `yaml:"id"`
	Listen  string   `yaml:"listen"`
	DataDir string   `yaml:"data_dir"`
	// SessionTTL is the age after which unfinished signing sessions are deleted.
	SessionTTL time.Duration `yaml:"session_ttl"`
	GCInterval time.Duration `yaml:"gc_interval"`
	Log        Log           `yaml:"log"`
}

type Participant struct {
	ID  party.ID `yaml:"id"`
	URL string   `yaml:"url"`
}

// Aggregator configures the ceremony coordinator.
type Aggregator struct {
	Threshold    int           `yaml:"threshold"`
	Participants []Participant `yaml:"participants"`
	DataDir      string        `yaml:"data_dir"`
	// Listen is the address serving metrics.
	Listen       string        `yaml:"listen"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Log          Log           `yaml:"log"`
}

func load(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err = yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadSigner reads, completes and validates a signer configuration.
func LoadSigner(path string) (*Signer, error) {
	cfg := new(Signer)
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Signer) setDefaults() {
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.GCInterval == 0 {
		c.GCInterval = DefaultGCInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Signer) Validate() error {
	if err := c.ID.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Listen == "" {
		return errors.New("config: listen address is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.SessionTTL < 0 || c.GCInterval < 0 {
		return errors.New("config: negative duration")
	}
	return nil
}

// LoadAggregator reads, completes and validates an aggregator configuration.
func LoadAggregator(path string) (*Aggregator, error) {
	cfg := new(Aggregator)
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Aggregator) setDefaults() {
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks 1 ≤ threshold ≤ n, and that participants have distinct non-zero ids and a URL.
func (c *Aggregator) Validate() error {
	n := len(c.Participants)
	if n == 0 {
		return errors.New("config: no participants")
	}
	if c.Threshold < 1 || c.Threshold > n {
		return fmt.Errorf("config: threshold %d out of range for %d participants", c.Threshold, n)
	}
	seen := make(map[party.ID]bool, n)
	for _, p := range c.Participants {
		if err := p.ID.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate participant %d", p.ID)
		}
		seen[p.ID] = true
		if p.URL == "" {
			return fmt.Errorf("config: participant %d has no url", p.ID)
		}
	}
	// identifiers must be 1..n, as key generation assigns shares to them
	for _, id := range party.Range(n) {
		if !seen[id] {
			return fmt.Errorf("config: participant %d is missing, ids must be 1 to %d", id, n)
		}
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.CallTimeout < 0 || c.RetryBackoff < 0 || c.MaxAttempts < 0 {
		return errors.New("config: negative retry setting")
	}
	return nil
}
