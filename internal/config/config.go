package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "bookforge"

type Config struct {
	Text   TextConfig   `yaml:"text" validate:"required"`
	Image  ImageConfig  `yaml:"image" validate:"required"`
	Paths  PathsConfig  `yaml:"paths" validate:"required"`
	Limits Limits       `yaml:"limits" validate:"required"`
	Layout LayoutConfig `yaml:"layout" validate:"required"`
	Trends TrendsConfig `yaml:"trends"`
	Server ServerConfig `yaml:"server"`
}

// TextConfig selects the text-generation backend.
type TextConfig struct {
	Provider string        `yaml:"provider" validate:"required,oneof=openai anthropic mock"`
	APIKey   string        `yaml:"api_key" validate:"required_unless=Provider mock"`
	Model    string        `yaml:"model" validate:"required"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"required,min=1s,max=1h"`
	// CacheTTL enables the on-disk response cache when positive.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`
}

// ImageConfig selects the image-generation backend.
type ImageConfig struct {
	Provider string        `yaml:"provider" validate:"required,oneof=openai ideogram mock"`
	APIKey   string        `yaml:"api_key" validate:"required_unless=Provider mock"`
	Model    string        `yaml:"model"`
	Size     string        `yaml:"size" validate:"omitempty,oneof=256x256 512x512 1024x1024 1792x1024 1024x1792"`
	Timeout  time.Duration `yaml:"timeout" validate:"required,min=1s,max=1h"`
}

type PathsConfig struct {
	OutputDir string `yaml:"output_dir" validate:"required"`
	DBPath    string `yaml:"db_path" validate:"required"`
}

type LayoutConfig struct {
	Format            string  `yaml:"format" validate:"required,oneof=pdf html"`
	PageSize          string  `yaml:"page_size" validate:"required,oneof=A4 A5 Letter"`
	MarginCM          float64 `yaml:"margin_cm" validate:"gte=0,lte=10"`
	CoverTitleOverlay bool    `yaml:"cover_title_overlay"`
	NumberCover       bool    `yaml:"number_cover"`
	ComposeMode       string  `yaml:"compose_mode" validate:"required,oneof=split alternate"`
	Fallback          string  `yaml:"image_fallback" validate:"required,oneof=synthesize record"`
}

// TrendsConfig lists the feeds consulted by the optional trend lookup.
type TrendsConfig struct {
	Feeds    []string `yaml:"feeds" validate:"dive,url"`
	MaxItems int      `yaml:"max_items" validate:"gte=0,lte=500"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Load reads configuration from the resolved path. A missing file is not an
// error: defaults plus environment are used instead.
func Load() (*Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFrom reads configuration from an explicit path. Overrides run after
// the file and environment are applied and before validation.
func LoadFrom(path string, overrides ...func(*Config)) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration that runs without any network access.
func Default() *Config {
	return &Config{
		Text: TextConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  2 * time.Minute,
		},
		Image: ImageConfig{
			Provider: "openai",
			Model:    "dall-e-3",
			Size:     "1024x1024",
			Timeout:  2 * time.Minute,
		},
		Paths: PathsConfig{
			OutputDir: filepath.Join(dataDir(), "output"),
			DBPath:    filepath.Join(dataDir(), "jobs.db"),
		},
		Limits: DefaultLimits(),
		Layout: LayoutConfig{
			Format:      "pdf",
			PageSize:    "A4",
			MarginCM:    2.54,
			ComposeMode: "split",
			Fallback:    "synthesize",
		},
		Trends: TrendsConfig{MaxItems: 50},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

func (c *Config) applyEnv() {
	envKey := func(current, placeholder string, names ...string) string {
		if current != "" && current != placeholder {
			return current
		}
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				return v
			}
		}
		return ""
	}

	switch c.Text.Provider {
	case "anthropic":
		c.Text.APIKey = envKey(c.Text.APIKey, "${ANTHROPIC_API_KEY}", "ANTHROPIC_API_KEY")
	case "openai":
		c.Text.APIKey = envKey(c.Text.APIKey, "${OPENAI_API_KEY}", "OPENAI_API_KEY")
	}
	switch c.Image.Provider {
	case "ideogram":
		c.Image.APIKey = envKey(c.Image.APIKey, "${IDEOGRAM_API_KEY}", "IDEOGRAM_API_KEY")
	case "openai":
		c.Image.APIKey = envKey(c.Image.APIKey, "${OPENAI_API_KEY}", "OPENAI_API_KEY")
	}
	if dir := os.Getenv("BOOKFORGE_OUTPUT_DIR"); dir != "" {
		c.Paths.OutputDir = dir
	}
}

// DefaultPath is where Load looks for the configuration file.
func DefaultPath() string {
	return getConfigPath()
}

func getConfigPath() string {
	if path := os.Getenv("BOOKFORGE_CONFIG"); path != "" {
		return path
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName, "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName, "config.yaml")
}

func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate fills zero-valued limits with defaults and checks struct tags.
func (c *Config) Validate() error {
	c.Paths.OutputDir = expandTilde(c.Paths.OutputDir)
	c.Paths.DBPath = expandTilde(c.Paths.DBPath)

	if c.Limits.ImageAttempts == 0 {
		c.Limits = DefaultLimits()
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Save writes the configuration with API keys replaced by env placeholders.
func Save(cfg *Config, configPath string) error {
	cfgToSave := *cfg
	if cfgToSave.Text.APIKey != "" {
		cfgToSave.Text.APIKey = "${" + strings.ToUpper(cfg.Text.Provider) + "_API_KEY}"
	}
	if cfgToSave.Image.APIKey != "" {
		cfgToSave.Image.APIKey = "${" + strings.ToUpper(cfg.Image.Provider) + "_API_KEY}"
	}

	data, err := yaml.Marshal(&cfgToSave)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(configPath, data, 0o600)
}
