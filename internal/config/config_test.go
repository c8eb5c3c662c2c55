package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "./site", cfg.Content.Root)
	assert.Equal(t, "index.*", cfg.Content.IndexPattern)
	assert.Equal(t, []string{".tmpl", ".html.tmpl"}, cfg.Extensions.Template)
	assert.Equal(t, []string{".js"}, cfg.Extensions.Dynamic)
	assert.Equal(t, []string{".js", ".tmpl", ".html"}, cfg.Extensions.Priority)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 300, cfg.Watch.DebounceMs)
	assert.Equal(t, "routefs_session", cfg.Session.Cookie)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	resetViper(t)

	viper.Set("server.port", 9000)
	viper.Set("content.root", "./public")
	viper.Set("content.listing", true)
	viper.Set("extensions.priority", []string{".tmpl", ".js"})
	viper.Set("watch.enabled", false)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "./public", cfg.Content.Root)
	assert.True(t, cfg.Content.Listing)
	assert.Equal(t, []string{".tmpl", ".js"}, cfg.Extensions.Priority)
	assert.False(t, cfg.Watch.Enabled)
}

func TestValidateServerConfig(t *testing.T) {
	testCases := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"valid", ServerConfig{Port: 8080, Host: "localhost"}, false},
		{"zero port allowed", ServerConfig{Port: 0, Host: "localhost"}, false},
		{"negative port", ServerConfig{Port: -1, Host: "localhost"}, true},
		{"port too large", ServerConfig{Port: 70000, Host: "localhost"}, true},
		{"dangerous host", ServerConfig{Port: 8080, Host: "localhost;rm -rf"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateServerConfig(&tc.config)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateContentConfig(t *testing.T) {
	err := validateContentConfig(&ContentConfig{Root: "../outside", IndexPattern: "index.*"})
	assert.Error(t, err)

	err = validateContentConfig(&ContentConfig{Root: "./site", IndexPattern: "index.["})
	assert.Error(t, err)

	err = validateContentConfig(&ContentConfig{Root: "/srv/site", IndexPattern: "index.*"})
	assert.NoError(t, err)
}

func TestValidateExtensionsConfig(t *testing.T) {
	err := validateExtensionsConfig(&ExtensionsConfig{
		Template: []string{".tmpl"},
		Dynamic:  []string{".tmpl"},
	})
	assert.Error(t, err, "overlapping template and dynamic sets must be rejected")

	err = validateExtensionsConfig(&ExtensionsConfig{
		Template: []string{"tmpl"},
	})
	assert.Error(t, err, "extensions must start with a dot")

	err = validateExtensionsConfig(&ExtensionsConfig{
		Template: []string{".tmpl"},
		Dynamic:  []string{".js"},
		Priority: []string{".js", ".tmpl"},
	})
	assert.NoError(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	resetViper(t)

	viper.Set("server.port", -5)

	_, err := Load()
	assert.Error(t, err)
}
