package main

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir     = ".paper-posts"
	minAbstractMaxTokens = 500
	abstractPlaceholder  = "{{.abstract}}"
)

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/journals.json
var defaultJournals string

//go:embed config/generator-system-prompt.md
var defaultSystemPrompt string

//go:embed config/generator-user-prompt.md
var defaultUserPrompt string

//go:embed config/post-output-schema.json
var defaultPostSchema string

// ConfigOverrides allows overriding embedded defaults and settings from the
// command line
type ConfigOverrides struct {
	SystemPromptPath *string
	UserPromptPath   *string
	SchemaPath       *string
	Delay            *time.Duration
}

// Settings represents the YAML configuration structure
type Settings struct {
	Delay        time.Duration    `yaml:"delay"`
	JournalsFile string           `yaml:"journals_file"`
	Ingest       IngestSettings   `yaml:"ingest"`
	Generate     GenerateSettings `yaml:"generate"`
	Render       RenderSettings   `yaml:"render"`
}

// IngestSettings configures the scraping stage
type IngestSettings struct {
	ArticlesFile            string        `yaml:"articles_file"`
	LedgerFile              string        `yaml:"ledger_file"`
	ErrorsFile              string        `yaml:"errors_file"`
	RawDirectory            string        `yaml:"raw_directory"`
	UserAgent               string        `yaml:"user_agent"`
	Timeout                 time.Duration `yaml:"timeout"`
	DisableCloudflareBypass bool          `yaml:"disable_cloudflare_bypass"`
}

// GenerateSettings configures the post generation stage
type GenerateSettings struct {
	PostsFile         string  `yaml:"posts_file"`
	LedgerFile        string  `yaml:"ledger_file"`
	ErrorsFile        string  `yaml:"errors_file"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	AbstractMaxTokens int     `yaml:"abstract_max_tokens"`
}

// RenderSettings configures the image rendering stage
type RenderSettings struct {
	PostsFile      string        `yaml:"posts_file"`
	LedgerFile     string        `yaml:"ledger_file"`
	ErrorsFile     string        `yaml:"errors_file"`
	ImageDirectory string        `yaml:"image_directory"`
	Size           int           `yaml:"size"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	PhotoAPIURL    string        `yaml:"photo_api_url"`
	PhotoSize      string        `yaml:"photo_size"`
	PhotosPerHour  int           `yaml:"photos_per_hour"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Config holds everything a stage needs: settings, prompt overrides and
// credentials. It is built once and passed to each stage.
type Config struct {
	Dir          string
	Settings     *Settings
	Overrides    *ConfigOverrides
	AnthropicKey string
	PexelsKey    string
}

// NewConfig loads settings from dir, creating the default files on first run
func NewConfig(dir string, overrides *ConfigOverrides) (*Config, error) {
	if err := ensureConfigExists(dir); err != nil {
		return nil, fmt.Errorf("ensuring config files exist: %w", err)
	}

	settings, err := loadSettings(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if overrides != nil && overrides.Delay != nil {
		settings.Delay = *overrides.Delay
	}

	return &Config{
		Dir:       dir,
		Settings:  settings,
		Overrides: overrides,
	}, nil
}

// JournalsPath returns the journal list location
func (c *Config) JournalsPath() string {
	if c.Settings.JournalsFile != "" {
		return c.Settings.JournalsFile
	}
	return filepath.Join(c.Dir, "journals.json")
}

// GetSystemPrompt returns the generator system prompt (from override file or embedded)
func (c *Config) GetSystemPrompt() (string, error) {
	if c.Overrides != nil && c.Overrides.SystemPromptPath != nil {
		return readOverride(*c.Overrides.SystemPromptPath)
	}
	return strings.TrimSpace(defaultSystemPrompt), nil
}

// GetUserPrompt returns the generator user prompt template, which must
// contain the {{.abstract}} variable
func (c *Config) GetUserPrompt() (string, error) {
	prompt := strings.TrimSpace(defaultUserPrompt)
	if c.Overrides != nil && c.Overrides.UserPromptPath != nil {
		var err error
		if prompt, err = readOverride(*c.Overrides.UserPromptPath); err != nil {
			return "", err
		}
	}
	if !strings.Contains(prompt, abstractPlaceholder) {
		return "", fmt.Errorf("generator user prompt template must contain %s variable", abstractPlaceholder)
	}
	return prompt, nil
}

// GetPostSchema returns the structured output schema (from override file or embedded)
func (c *Config) GetPostSchema() (string, error) {
	if c.Overrides != nil && c.Overrides.SchemaPath != nil {
		return readOverride(*c.Overrides.SchemaPath)
	}
	return strings.TrimSpace(defaultPostSchema), nil
}

func readOverride(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading override %s: %w", path, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// loadSettings layers the embedded defaults, settings.yaml and
// settings.local.yaml. Local overrides only replace non-zero values.
func loadSettings(dir string) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}

	settingsPath := filepath.Join(dir, "settings.yaml")
	data, err := os.ReadFile(settingsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		debugLog("no settings file at %s, using defaults", settingsPath)
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
	default:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
		}
	}

	localPath := filepath.Join(dir, "settings.local.yaml")
	data, err = os.ReadFile(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file %s: %w", localPath, err)
	default:
		var local Settings
		if err := yaml.Unmarshal(data, &local); err != nil {
			return nil, fmt.Errorf("failed to parse local settings YAML: %w", err)
		}
		if err := mergo.Merge(&settings, local, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging local settings: %w", err)
		}
		log.Printf("Merged local settings overrides from %s", localPath)
	}

	if settings.Generate.AbstractMaxTokens < minAbstractMaxTokens {
		log.Printf("Warning: generate.abstract_max_tokens is %d, defaulting to %d (minimum)", settings.Generate.AbstractMaxTokens, minAbstractMaxTokens)
		settings.Generate.AbstractMaxTokens = minAbstractMaxTokens
	}

	return &settings, nil
}

// ensureConfigExists creates the config directory and default files if they don't exist
func ensureConfigExists(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	defaults := map[string]string{
		"settings.yaml": defaultSettings,
		"journals.json": defaultJournals,
	}
	for name, content := range defaults {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write default %s: %w", name, err)
			}
		}
	}

	return nil
}
