package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PRINTSIZER_"

// Config holds the application configuration
type Config struct {
	Processing ProcessingConfig `json:"processing" envPrefix:"PROCESSING_"`
	Upload     UploadConfig     `json:"upload" envPrefix:"UPLOAD_"`
	Preview    PreviewConfig    `json:"preview" envPrefix:"PREVIEW_"`
	Editor     EditorConfig     `json:"editor" envPrefix:"EDITOR_"`
	Output     OutputConfig     `json:"output" envPrefix:"OUTPUT_"`
	Log        LogConfig        `json:"log" envPrefix:"LOG_"`
}

// ProcessingConfig holds configuration for rendering outputs
type ProcessingConfig struct {
	DPI          int    `json:"dpi" env:"DPI"`
	CropStrategy string `json:"crop_strategy" env:"CROP_STRATEGY"`
}

// UploadConfig holds the limits applied to uploaded images
type UploadConfig struct {
	MaxFileSize      int64    `json:"max_file_size" env:"MAX_FILE_SIZE"`
	SupportedFormats []string `json:"supported_formats" env:"SUPPORTED_FORMATS"`
	MinImageSize     int      `json:"min_image_size" env:"MIN_IMAGE_SIZE"`
}

// PreviewConfig holds configuration for upload thumbnails
type PreviewConfig struct {
	MaxWidth  int    `json:"max_width" env:"MAX_WIDTH"`
	MaxHeight int    `json:"max_height" env:"MAX_HEIGHT"`
	Format    string `json:"format" env:"FORMAT"`
	Quality   int    `json:"quality" env:"QUALITY"`
}

// EditorConfig holds the crop editor limits
type EditorConfig struct {
	MinZoom           float64 `json:"min_zoom" env:"MIN_ZOOM"`
	MaxZoom           float64 `json:"max_zoom" env:"MAX_ZOOM"`
	ZoomStep          float64 `json:"zoom_step" env:"ZOOM_STEP"`
	MinViewportWidth  int     `json:"min_viewport_width" env:"MIN_VIEWPORT_WIDTH"`
	MinViewportHeight int     `json:"min_viewport_height" env:"MIN_VIEWPORT_HEIGHT"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir string `json:"output_dir" env:"DIR"`
	Archive   bool   `json:"archive" env:"ARCHIVE"`
	SafeNames bool   `json:"safe_names" env:"SAFE_NAMES"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" env:"LEVEL"`
	// File enables a rotating log file instead of stderr
	File string `json:"file" env:"FILE"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Processing: ProcessingConfig{
			DPI:          300,
			CropStrategy: "center",
		},
		Upload: UploadConfig{
			MaxFileSize:      50 * 1024 * 1024,
			SupportedFormats: []string{"jpeg", "png", "svg"},
			MinImageSize:     1,
		},
		Preview: PreviewConfig{
			MaxWidth:  400,
			MaxHeight: 400,
			Format:    "jpeg",
			Quality:   80,
		},
		Editor: EditorConfig{
			MinZoom:           0.5,
			MaxZoom:           3,
			ZoomStep:          0.1,
			MinViewportWidth:  800,
			MinViewportHeight: 600,
		},
		Output: OutputConfig{
			OutputDir: "./output",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename when it exists, then applies environment overrides
// and validates the result. An empty filename uses defaults only.
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			loaded, err := LoadFromFile(filename)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides fields from PRINTSIZER_* environment variables
func (c *Config) ApplyEnv() error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix})
}

func (c *Config) applyEnv(opts env.Options) error {
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Processing.DPI < 1 || c.Processing.DPI > 0xFFFF {
		return fmt.Errorf("processing.dpi must be between 1 and 65535")
	}

	if !slices.Contains([]string{"center", "smart", "saliency"}, c.Processing.CropStrategy) {
		return fmt.Errorf("processing.crop_strategy must be center, smart or saliency")
	}

	if c.Upload.MaxFileSize < 1 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}

	if c.Upload.MinImageSize < 1 {
		return fmt.Errorf("upload.min_image_size must be positive")
	}

	if len(c.Upload.SupportedFormats) == 0 {
		return fmt.Errorf("upload.supported_formats cannot be empty")
	}

	if c.Preview.MaxWidth < 1 || c.Preview.MaxHeight < 1 {
		return fmt.Errorf("preview dimensions must be positive")
	}

	if !slices.Contains([]string{"jpeg", "jpg", "webp"}, strings.ToLower(c.Preview.Format)) {
		return fmt.Errorf("preview.format must be jpeg or webp")
	}

	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		return fmt.Errorf("preview.quality must be between 1 and 100")
	}

	if c.Editor.MinZoom <= 0 || c.Editor.MaxZoom < c.Editor.MinZoom {
		return fmt.Errorf("editor zoom range is invalid")
	}

	if c.Editor.ZoomStep <= 0 {
		return fmt.Errorf("editor.zoom_step must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "print-sizer", "config.json")
}
