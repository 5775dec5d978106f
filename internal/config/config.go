package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel      string    `yaml:"log_level"`
	MetricsListen string    `yaml:"metrics_listen"` // optional, e.g. "127.0.0.1:9190"
	Delivery      Delivery  `yaml:"delivery"`
	Accounts      []Account `yaml:"accounts"`
}

// Delivery holds the outgoing SMTP smarthost configuration.
type Delivery struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

// Account describes one monitored mailbox.
type Account struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"` // "pop3" or "imap"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // 0 selects the protocol default
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`

	ForwardTo           string `yaml:"forward_to"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	LookbackDays        int    `yaml:"lookback_days"`

	// POP3 only: mark already-forwarded messages for deletion on the server.
	DeleteForwarded bool `yaml:"delete_forwarded"`

	// IMAP only: folder to poll, INBOX when empty.
	IMAPFolder string `yaml:"imap_folder"`
}

// PollInterval returns the poll interval, defaulting to one minute.
func (a *Account) PollInterval() time.Duration {
	if a.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

// Lookback returns how far back messages are considered, defaulting to a
// week.
func (a *Account) Lookback() time.Duration {
	days := a.LookbackDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Folder returns the IMAP folder to poll.
func (a *Account) Folder() string {
	if a.IMAPFolder == "" {
		return "INBOX"
	}
	return a.IMAPFolder
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{LogLevel: "info"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Delivery.Host == "" {
		return fmt.Errorf("delivery.host is required")
	}
	if c.Delivery.Port == 0 {
		return fmt.Errorf("delivery.port is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for i := range c.Accounts {
		if err := c.Accounts[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Account) validate() error {
	label := a.Name
	if label == "" {
		return fmt.Errorf("account: name is required")
	}
	switch a.Protocol {
	case "pop3", "imap":
	default:
		return fmt.Errorf("account %s: protocol must be pop3 or imap", label)
	}
	if a.Host == "" {
		return fmt.Errorf("account %s: host is required", label)
	}
	if a.ForwardTo == "" {
		return fmt.Errorf("account %s: forward_to is required", label)
	}
	if a.DeleteForwarded && a.Protocol != "pop3" {
		return fmt.Errorf("account %s: delete_forwarded applies to pop3 only", label)
	}
	return nil
}
