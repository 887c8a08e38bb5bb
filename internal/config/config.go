package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	// Compression defaults
	DefaultDPI          = 150.0
	DefaultQuality      = 0.75
	DefaultIterations   = 7
	DefaultQualityMin   = 0.01
	DefaultQualityMax   = 1.0
	DefaultOutputSuffix = "-dikompres"
	DefaultCacheSize    = 128

	// EnvPrefix is prepended to every environment variable name
	EnvPrefix = "PDF_TOOLS"

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the PDF tools server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// File locations
	PDFDirectory    string
	OutputDirectory string // empty means next to the input file

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes

	// Compression configuration
	DPI          float64
	Quality      float64
	Iterations   int
	QualityMin   float64
	QualityMax   float64
	OutputSuffix string
	CacheSize    int // render cache budget per session in MiB, 0 disables caching
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:         ModeStdio,
		Host:         DefaultHost,
		Port:         DefaultPort,
		PDFDirectory: currentDir,
		Version:      "1.0.0",
		ServerName:   "mcp-pdf-tools",
		LogLevel:     DefaultLogLevel,
		MaxFileSize:  DefaultMaxFileSize,
		DPI:          DefaultDPI,
		Quality:      DefaultQuality,
		Iterations:   DefaultIterations,
		QualityMin:   DefaultQualityMin,
		QualityMax:   DefaultQualityMax,
		OutputSuffix: DefaultOutputSuffix,
		CacheSize:    DefaultCacheSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	loadDotEnv()
	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}
	if cfg.OutputDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.OutputDirectory); err == nil {
			cfg.OutputDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads a .env file from the working directory when one exists.
// Variables already present in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("outdir", cfg.OutputDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("dpi", cfg.DPI)
	viper.SetDefault("quality", cfg.Quality)
	viper.SetDefault("iterations", cfg.Iterations)
	viper.SetDefault("qmin", cfg.QualityMin)
	viper.SetDefault("qmax", cfg.QualityMax)
	viper.SetDefault("suffix", cfg.OutputSuffix)
	viper.SetDefault("cachesize", cfg.CacheSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory containing PDF files")
	pflag.String("outdir", cfg.OutputDirectory, "Directory for generated PDF files (default: next to the input)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Float64("dpi", cfg.DPI, "Rasterization resolution for image-only pages")
	pflag.Float64("quality", cfg.Quality, "JPEG quality for rasterized pages (0.0-1.0)")
	pflag.Int("iterations", cfg.Iterations, "Binary search iterations when targeting a file size")
	pflag.Float64("qmin", cfg.QualityMin, "Lowest quality tried when targeting a file size")
	pflag.Float64("qmax", cfg.QualityMax, "Highest quality tried when targeting a file size")
	pflag.String("suffix", cfg.OutputSuffix, "Suffix appended to the stem of compressed files")
	pflag.Int("cachesize", cfg.CacheSize, "Render cache budget per document session in MiB (0 disables)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "dir", "outdir", "loglevel", "maxfilesize",
		"dpi", "quality", "iterations", "qmin", "qmax", "suffix", "cachesize",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Tools - A Model Context Protocol server for compressing and reorganizing PDF files\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                         "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/pdfs --dpi=120           "+
			"# lower rasterization resolution\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --outdir=/tmp/out --suffix=-small       "+
			"# custom output location and naming\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_MODE        Server mode\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_DIR         PDF directory\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_OUTDIR      Output directory\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_LOGLEVEL    Log level\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_MAXFILESIZE Maximum file size\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_DPI         Rasterization DPI\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_QUALITY     JPEG quality\n")
		fmt.Fprintf(os.Stderr, "  PDF_TOOLS_ITERATIONS  Size search iterations\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.OutputDirectory = viper.GetString("outdir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.DPI = viper.GetFloat64("dpi")
	cfg.Quality = viper.GetFloat64("quality")
	cfg.Iterations = viper.GetInt("iterations")
	cfg.QualityMin = viper.GetFloat64("qmin")
	cfg.QualityMax = viper.GetFloat64("qmax")
	cfg.OutputSuffix = viper.GetString("suffix")
	cfg.CacheSize = viper.GetInt("cachesize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}

	if err := ensureDirectory(c.PDFDirectory); err != nil {
		return err
	}
	if c.OutputDirectory != "" {
		if err := ensureDirectory(c.OutputDirectory); err != nil {
			return err
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return c.validateCompression()
}

func (c *Config) validateCompression() error {
	if c.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %g", c.DPI)
	}
	if c.Quality < 0 || c.Quality > 1 {
		return fmt.Errorf("quality must be between 0.0 and 1.0, got %g", c.Quality)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.QualityMin < 0 || c.QualityMax > 1 || c.QualityMin >= c.QualityMax {
		return fmt.Errorf("quality bounds must satisfy 0 <= qmin < qmax <= 1, got [%g, %g]",
			c.QualityMin, c.QualityMax)
	}
	if c.OutputSuffix == "" {
		return errors.New("output suffix cannot be empty")
	}
	if c.CacheSize < 0 {
		return errors.New("cache size cannot be negative")
	}
	return nil
}

func ensureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, OutputDirectory: %s, "+
		"LogLevel: %s, MaxFileSize: %d, DPI: %g, Quality: %g, Iterations: %d, QualityRange: [%g, %g], "+
		"Suffix: %s, CacheSize: %d}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.OutputDirectory, c.LogLevel, c.MaxFileSize,
		c.DPI, c.Quality, c.Iterations, c.QualityMin, c.QualityMax, c.OutputSuffix, c.CacheSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
