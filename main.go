package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	configDir        string
	apiKey           string
	pexelsKey        string
	delay            time.Duration
	systemPromptPath string
	userPromptPath   string
	schemaPath       string
	debugMode        bool
)

var rootCmd = &cobra.Command{
	Use:   "paper-posts",
	Short: "Turn new journal articles into illustrated social media posts",
	Long: `Crawls academic journals for new articles, writes a social media post for each
abstract with a language model and renders the post hook over a stock photo.

Every stage remembers what it has finished, so an interrupted run can simply be
started again.`,
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scrape article metadata from the configured journals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		summary, err := NewScrapingIngestStage(config).Run(cmd.Context())
		renderSummaries(os.Stdout, summary)
		return err
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a post draft for every scraped article",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		stage, err := newGenerateStage(config)
		if err != nil {
			return err
		}
		summary, err := stage.Run(cmd.Context())
		renderSummaries(os.Stdout, summary)
		return err
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render an image for every post draft",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		stage, err := NewPexelsRenderStage(config)
		if err != nil {
			return err
		}
		summary, err := stage.Run(cmd.Context())
		renderSummaries(os.Stdout, summary)
		return err
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, generate and render in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// Fail on missing credentials before any crawling starts
		generate, err := newGenerateStage(config)
		if err != nil {
			return err
		}
		render, err := NewPexelsRenderStage(config)
		if err != nil {
			return err
		}

		stages := []interface {
			Run(ctx context.Context) (*Summary, error)
		}{NewScrapingIngestStage(config), generate, render}

		var summaries []*Summary
		defer func() { renderSummaries(os.Stdout, summaries...) }()

		for _, stage := range stages {
			summary, err := stage.Run(cmd.Context())
			summaries = append(summaries, summary)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many items each stage has finished",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		statuses, err := collectStatus(config.Settings)
		if err != nil {
			return err
		}
		renderStatus(os.Stdout, statuses)
		return nil
	},
}

func newGenerateStage(config *Config) (*GenerateStage, error) {
	generator, err := NewAnthropicGenerator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return NewGenerateStage(config, config.Settings.Ingest.ArticlesFile, generator), nil
}

// loadConfig builds the run configuration from flags, environment and the
// settings files in the config directory
func loadConfig(cmd *cobra.Command) (*Config, error) {
	if debugMode {
		SetDebugMode(true)
	}

	overrides := &ConfigOverrides{}
	if systemPromptPath != "" {
		overrides.SystemPromptPath = &systemPromptPath
	}
	if userPromptPath != "" {
		overrides.UserPromptPath = &userPromptPath
	}
	if schemaPath != "" {
		overrides.SchemaPath = &schemaPath
	}
	if cmd.Flags().Changed("delay") {
		overrides.Delay = &delay
	}

	config, err := NewConfig(configDir, overrides)
	if err != nil {
		return nil, err
	}

	config.AnthropicKey = apiKey
	if config.AnthropicKey == "" {
		config.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	config.PexelsKey = pexelsKey
	if config.PexelsKey == "" {
		config.PexelsKey = os.Getenv("PEXELS_API_KEY")
	}

	debugLog("config dir %s, delay %s", config.Dir, config.Settings.Delay)
	return config, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", defaultConfigDir, "Directory holding settings.yaml and journals.json")
	flags.StringVar(&apiKey, "api-key", "", "Anthropic API key")
	flags.StringVar(&pexelsKey, "pexels-key", "", "Pexels API key")
	flags.DurationVar(&delay, "delay", 2*time.Second, "Pause after every remote call (overrides settings)")
	flags.StringVar(&systemPromptPath, "system-prompt", "", "Path to custom generator system prompt file")
	flags.StringVar(&userPromptPath, "user-prompt", "", "Path to custom generator user prompt file")
	flags.StringVar(&schemaPath, "schema", "", "Path to custom post JSON schema file")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(ingestCmd, generateCmd, renderCmd, runCmd, statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Println(err)
		stop()
		os.Exit(1)
	}
}
