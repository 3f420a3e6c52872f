// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "scribe-cli", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.False(t, cfg.Browser().NoSandbox)
	assert.Equal(t, 10*time.Second, cfg.Timeouts().Locator)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts().PollInterval)
	assert.Equal(t, 2, cfg.Server().MaxSessions)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Relative base URL", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.PlatformCfg.BaseURL = "/writer"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be an absolute URL")
	})

	t.Run("Work template without placeholder", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.PlatformCfg.WorkURLTemplate = "/writer/works"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "{id}")
	})

	t.Run("Unbounded wait", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.TimeoutCfg.Verify = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "verify must be a positive duration")
	})

	t.Run("Zero sessions", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ServerCfg.MaxSessions = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.max_sessions")
	})
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Overrides from YAML", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yamlConfig := []byte(`
platform:
  base_url: "https://novel.example.org"
timeouts:
  locator: 4s
browser:
  mobile: true
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "https://novel.example.org", cfg.Platform().BaseURL)
		assert.Equal(t, 4*time.Second, cfg.Timeouts().Locator)
		assert.True(t, cfg.Browser().Mobile)
	})

	t.Run("Credentials from environment", func(t *testing.T) {
		t.Setenv(EnvPlatformIdentity, "writer@example.com")
		t.Setenv(EnvPlatformSecret, "hunter2")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "writer@example.com", cfg.Platform().Identity)
		assert.Equal(t, "hunter2", cfg.Platform().Secret)
	})

	t.Run("Invalid config is rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("platform.base_url", "not a url")
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestPlatformURLs(t *testing.T) {
	p := PlatformConfig{
		BaseURL:         "https://writer.example.com/",
		LoginPath:       "/login",
		WorksPath:       "writer/works",
		NewChapterPath:  "/writer/works/{id}/chapters/new",
		WorkURLTemplate: "/writer/works/{id}",
	}

	assert.Equal(t, "https://writer.example.com/login", p.LoginURL())
	assert.Equal(t, "https://writer.example.com/writer/works", p.WorksURL())
	assert.Equal(t, "https://writer.example.com/writer/works/7421", p.WorkURL("7421"))
	assert.Equal(t, "https://writer.example.com/writer/works/a%2Fb", p.WorkURL("a/b"))
	assert.Equal(t, "https://writer.example.com/writer/works/7421/chapters/new", p.NewChapterURL("7421"))

	p.WorksPath = "https://other.example.com/list"
	assert.Equal(t, "https://other.example.com/list", p.WorksURL())
}
