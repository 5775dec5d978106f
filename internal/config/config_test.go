package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
log_level: debug
metrics_listen: "127.0.0.1:9190"
delivery:
  host: smtp.example.com
  port: 587
  username: fwd@example.com
  password: secret
accounts:
  - name: work
    protocol: pop3
    host: pop.example.com
    username: alice
    password: secret
    use_tls: true
    forward_to: archive@example.com
    poll_interval_seconds: 120
    lookback_days: 3
    delete_forwarded: true
  - name: personal
    protocol: imap
    host: imap.example.com
    port: 993
    username: alice
    password: secret
    use_tls: true
    forward_to: archive@example.com
    imap_folder: Newsletters
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9190", cfg.MetricsListen)
	assert.Equal(t, "smtp.example.com", cfg.Delivery.Host)
	require.Len(t, cfg.Accounts, 2)

	work := cfg.Accounts[0]
	assert.Equal(t, "pop3", work.Protocol)
	assert.Equal(t, 0, work.Port) // protocol default
	assert.Equal(t, 2*time.Minute, work.PollInterval())
	assert.Equal(t, 72*time.Hour, work.Lookback())
	assert.True(t, work.DeleteForwarded)

	personal := cfg.Accounts[1]
	assert.Equal(t, "Newsletters", personal.Folder())
	assert.Equal(t, time.Minute, personal.PollInterval())
	assert.Equal(t, 7*24*time.Hour, personal.Lookback())
}

func TestAccountDefaults(t *testing.T) {
	a := Account{}
	assert.Equal(t, time.Minute, a.PollInterval())
	assert.Equal(t, 7*24*time.Hour, a.Lookback())
	assert.Equal(t, "INBOX", a.Folder())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Accounts, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing delivery host", func(c *Config) { c.Delivery.Host = "" }, "delivery.host"},
		{"missing delivery port", func(c *Config) { c.Delivery.Port = 0 }, "delivery.port"},
		{"no accounts", func(c *Config) { c.Accounts = nil }, "at least one account"},
		{"unnamed account", func(c *Config) { c.Accounts[0].Name = "" }, "name is required"},
		{"bad protocol", func(c *Config) { c.Accounts[0].Protocol = "jmap" }, "protocol must be"},
		{"missing host", func(c *Config) { c.Accounts[0].Host = "" }, "host is required"},
		{"missing forward_to", func(c *Config) { c.Accounts[0].ForwardTo = "" }, "forward_to is required"},
		{"delete_forwarded on imap", func(c *Config) { c.Accounts[1].DeleteForwarded = true }, "pop3 only"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			require.NoError(t, err)
			tc.mutate(cfg)
			err = cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
