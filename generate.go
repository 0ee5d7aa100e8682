package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// GenerateStage writes a post draft for every ingested article
type GenerateStage struct {
	settings  GenerateSettings
	source    string
	generator PostGenerator
	pacer     *Pacer
}

// NewGenerateStage creates the generate stage reading articles from source
func NewGenerateStage(config *Config, source string, generator PostGenerator) *GenerateStage {
	return &GenerateStage{
		settings:  config.Settings.Generate,
		source:    source,
		generator: generator,
		pacer:     NewPacer(config.Settings.Delay),
	}
}

// articleIdentity keys an article by DOI, or by a hash of its title when the
// DOI is missing
func articleIdentity(a Article) string {
	if doi := strings.TrimSpace(a.DOI); doi != "" {
		return doi
	}
	return titleHash(a.Title)
}

// Run generates drafts for every article not yet in the generate ledger
func (s *GenerateStage) Run(ctx context.Context) (*Summary, error) {
	articles, err := ReadArticlesCSV(s.source)
	if err != nil {
		return nil, fmt.Errorf("loading articles: %w", err)
	}
	if len(articles) == 0 {
		log.Printf("[generate] No articles in %s", s.source)
	}

	items := make([]WorkItem[Article], 0, len(articles))
	for _, article := range articles {
		items = append(items, WorkItem[Article]{ID: articleIdentity(article), Payload: article})
	}

	ledger, err := LoadLedger(s.settings.LedgerFile)
	if err != nil {
		return nil, err
	}

	runner := &BatchRunner[Article, PostDraft]{
		Stage:  "generate",
		Ledger: ledger,
		Output: NewJSONLWriter[PostDraft](s.settings.PostsFile),
		Errors: NewErrorLog(s.settings.ErrorsFile),
		Processor: &ItemProcessor[Article, PostDraft]{
			Transform: s.generate,
			Validate:  validatePost,
			Pacer:     s.pacer,
		},
	}
	return runner.Run(ctx, items)
}

func (s *GenerateStage) generate(ctx context.Context, article Article) (PostDraft, error) {
	if strings.TrimSpace(article.Abstract) == "" {
		return PostDraft{}, validationFailure(&MissingFieldsError{Fields: []string{"abstract"}})
	}

	post, err := s.generator.GeneratePost(ctx, article.Abstract)
	if err != nil {
		return PostDraft{}, err
	}

	return PostDraft{
		Hook:         post.Hook,
		Caption:      post.Caption,
		Hashtags:     post.Hashtags,
		ImagePrompt:  post.ImagePrompt,
		ArticleLink:  article.ArticleURL,
		ArticleTitle: article.Title,
		ArticleID:    articleIdentity(article),
	}, nil
}
