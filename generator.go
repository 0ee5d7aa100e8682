package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

// PostGenerator turns an abstract into structured post text
type PostGenerator interface {
	GeneratePost(ctx context.Context, abstract string) (*PostContent, error)
}

// completeFunc sends one system/user prompt pair and returns the model text
type completeFunc func(systemPrompt, userPrompt string) (string, error)

// AnthropicGenerator writes posts with a single structured-output prompt
type AnthropicGenerator struct {
	systemPrompt      string
	userPrompt        string
	abstractMaxTokens int
	complete          completeFunc
}

// NewAnthropicGenerator creates a generator from the configured prompts, schema and model settings
func NewAnthropicGenerator(config *Config) (*AnthropicGenerator, error) {
	if config.AnthropicKey == "" {
		return nil, fmt.Errorf("API key required: use --api-key flag or ANTHROPIC_API_KEY environment variable")
	}

	systemPrompt, err := config.GetSystemPrompt()
	if err != nil {
		return nil, fmt.Errorf("loading system prompt: %w", err)
	}
	userPrompt, err := config.GetUserPrompt()
	if err != nil {
		return nil, fmt.Errorf("loading user prompt: %w", err)
	}
	schema, err := config.GetPostSchema()
	if err != nil {
		return nil, fmt.Errorf("loading post schema: %w", err)
	}

	gen := config.Settings.Generate
	settings := types.RequestSettings{
		Model:       gen.Model,
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
	}
	apiKey := config.AnthropicKey

	return &AnthropicGenerator{
		systemPrompt:      systemPrompt,
		userPrompt:        userPrompt,
		abstractMaxTokens: gen.AbstractMaxTokens,
		complete: func(systemPrompt, userPrompt string) (string, error) {
			response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, apiKey, settings)
			if err != nil {
				return "", err
			}
			if len(response.Content) == 0 {
				return "", fmt.Errorf("no content in response")
			}
			return response.Content[0].Text, nil
		},
	}, nil
}

// GeneratePost asks the model for a post about abstract. The llmkit prompt
// call cannot be cancelled, so ctx is unused.
func (g *AnthropicGenerator) GeneratePost(ctx context.Context, abstract string) (*PostContent, error) {
	limited := limitContentTokens(abstract, g.abstractMaxTokens)
	userPrompt := strings.ReplaceAll(g.userPrompt, abstractPlaceholder, limited)

	text, err := g.complete(g.systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generator agent failed: %w", err)
	}

	var post PostContent
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &post); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}

	debugLog("generated post: hook=%q hashtags=%v image_prompt=%q", post.Hook, post.Hashtags, post.ImagePrompt)
	return &post, nil
}

// validatePost requires the fields the render stage depends on
func validatePost(post PostDraft) *ItemFailure {
	return requireFields(
		textField("hook", post.Hook),
		textField("caption", post.Caption),
		listField("hashtags", post.Hashtags),
		textField("image_prompt", post.ImagePrompt),
	)
}

// limitContentTokens limits content to approximately N tokens (using 4 chars ≈ 1 token)
func limitContentTokens(content string, maxTokens int) string {
	maxChars := maxTokens * 4
	if maxTokens <= 0 || len(content) <= maxChars {
		return content
	}
	cut := maxChars
	for cut > 0 && !isRuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// stripCodeFence removes a ```json fence some models wrap around JSON
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
