package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "stdio" {
		t.Errorf("Expected default mode to be 'stdio', got '%s'", cfg.Mode)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}
	if cfg.ServerName != "mcp-pdf-tools" {
		t.Errorf("Expected default server name to be 'mcp-pdf-tools', got '%s'", cfg.ServerName)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}

	assert.Equal(t, 150.0, cfg.DPI)
	assert.Equal(t, 0.75, cfg.Quality)
	assert.Equal(t, 7, cfg.Iterations)
	assert.Equal(t, 0.01, cfg.QualityMin)
	assert.Equal(t, 1.0, cfg.QualityMax)
	assert.Equal(t, "-dikompres", cfg.OutputSuffix)
	assert.Equal(t, 128, cfg.CacheSize)
	assert.Empty(t, cfg.OutputDirectory)

	currentDir, _ := os.Getwd()
	if cfg.PDFDirectory != currentDir {
		t.Errorf("Expected default PDF directory to be '%s', got '%s'", currentDir, cfg.PDFDirectory)
	}
}

func TestConfigValidate(t *testing.T) {
	tempDir := t.TempDir()

	base := func() *Config {
		cfg := DefaultConfig()
		cfg.PDFDirectory = tempDir
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid stdio config", mutate: func(c *Config) {}},
		{name: "valid server config", mutate: func(c *Config) { c.Mode = ModeServer }},
		{name: "invalid mode", mutate: func(c *Config) { c.Mode = "http" }, wantErr: "mode must be"},
		{name: "invalid port in server mode", mutate: func(c *Config) {
			c.Mode = ModeServer
			c.Port = 70000
		}, wantErr: "port must be"},
		{name: "port ignored in stdio mode", mutate: func(c *Config) { c.Port = 0 }},
		{name: "empty directory", mutate: func(c *Config) { c.PDFDirectory = "" }, wantErr: "cannot be empty"},
		{name: "zero max file size", mutate: func(c *Config) { c.MaxFileSize = 0 }, wantErr: "must be positive"},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "zero dpi", mutate: func(c *Config) { c.DPI = 0 }, wantErr: "dpi must be positive"},
		{name: "quality above one", mutate: func(c *Config) { c.Quality = 1.5 }, wantErr: "quality must be"},
		{name: "negative quality", mutate: func(c *Config) { c.Quality = -0.1 }, wantErr: "quality must be"},
		{name: "quality zero is allowed", mutate: func(c *Config) { c.Quality = 0 }},
		{name: "no iterations", mutate: func(c *Config) { c.Iterations = 0 }, wantErr: "iterations"},
		{name: "inverted quality bounds", mutate: func(c *Config) {
			c.QualityMin = 0.9
			c.QualityMax = 0.1
		}, wantErr: "quality bounds"},
		{name: "empty suffix", mutate: func(c *Config) { c.OutputSuffix = "" }, wantErr: "suffix"},
		{name: "negative cache size", mutate: func(c *Config) { c.CacheSize = -1 }, wantErr: "cache size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateCreatesDirectories(t *testing.T) {
	parent := t.TempDir()
	pdfDir := filepath.Join(parent, "in", "pdfs")
	outDir := filepath.Join(parent, "out")

	cfg := DefaultConfig()
	cfg.PDFDirectory = pdfDir
	cfg.OutputDirectory = outDir

	require.NoError(t, cfg.Validate())

	for _, dir := range []string{pdfDir, outDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err, "directory %s should have been created", dir)
		assert.True(t, info.IsDir())
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "localhost", Port: 9090}
	if got := cfg.Address(); got != "localhost:9090" {
		t.Errorf("Address() = %q, want %q", got, "localhost:9090")
	}
}

func TestConfigModes(t *testing.T) {
	tests := []struct {
		mode       string
		wantServer bool
		wantStdio  bool
	}{
		{mode: ModeServer, wantServer: true},
		{mode: ModeStdio, wantStdio: true},
		{mode: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := &Config{Mode: tt.mode}
			assert.Equal(t, tt.wantServer, cfg.IsServerMode())
			assert.Equal(t, tt.wantStdio, cfg.IsStdioMode())
		})
	}
}

func TestConfigIsDebug(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, level == "debug", cfg.IsDebug(), level)
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PDFDirectory = "/data/pdfs"

	s := cfg.String()
	for _, want := range []string{"Mode: stdio", "PDFDirectory: /data/pdfs", "DPI: 150", "Quality: 0.75", "Suffix: -dikompres"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
