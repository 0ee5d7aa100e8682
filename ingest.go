package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// PageSource downloads raw pages
type PageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// loadJournalList reads the JSON5 array of journal listing URLs
func loadJournalList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading journal list %s: %w", path, err)
	}

	var journals []string
	if err := json5.Unmarshal(data, &journals); err != nil {
		return nil, fmt.Errorf("parsing journal list %s: %w", path, err)
	}

	urls := make([]string, 0, len(journals))
	for i, j := range journals {
		j = strings.TrimSpace(j)
		if !strings.HasPrefix(j, "http://") && !strings.HasPrefix(j, "https://") {
			return nil, fmt.Errorf("journal %d has invalid URL %q", i+1, j)
		}
		urls = append(urls, j)
	}
	return urls, nil
}

// IngestStage crawls journal pages and scrapes article metadata
type IngestStage struct {
	settings     IngestSettings
	journalsPath string
	fetcher      PageSource
	extractor    *ArticleExtractor
	pacer        *Pacer
}

// NewIngestStage creates the ingest stage with the given page source
func NewIngestStage(config *Config, fetcher PageSource) *IngestStage {
	return &IngestStage{
		settings:     config.Settings.Ingest,
		journalsPath: config.JournalsPath(),
		fetcher:      fetcher,
		extractor:    NewArticleExtractor(),
		pacer:        NewPacer(config.Settings.Delay),
	}
}

// NewScrapingIngestStage creates the ingest stage fetching over HTTP
func NewScrapingIngestStage(config *Config) *IngestStage {
	fetcher := NewPageFetcher(FetcherOptions{
		UserAgent:        config.Settings.Ingest.UserAgent,
		Timeout:          config.Settings.Ingest.Timeout,
		CloudflareBypass: !config.Settings.Ingest.DisableCloudflareBypass,
	})
	return NewIngestStage(config, fetcher)
}

// Run discovers article links and scrapes every article not yet crawled
func (s *IngestStage) Run(ctx context.Context) (*Summary, error) {
	journals, err := loadJournalList(s.journalsPath)
	if err != nil {
		return nil, err
	}

	links, err := s.discover(ctx, journals)
	if err != nil {
		return nil, err
	}

	items := make([]WorkItem[string], 0, len(links))
	for _, link := range links {
		items = append(items, WorkItem[string]{ID: link, Payload: link})
	}

	ledger, err := LoadLedger(s.settings.LedgerFile)
	if err != nil {
		return nil, err
	}

	runner := &BatchRunner[string, Article]{
		Stage:  "ingest",
		Ledger: ledger,
		Output: NewArticleCSVWriter(s.settings.ArticlesFile),
		Errors: NewErrorLog(s.settings.ErrorsFile),
		Processor: &ItemProcessor[string, Article]{
			Transform: s.scrape,
			Validate:  validateArticle,
			Pacer:     s.pacer,
		},
	}
	return runner.Run(ctx, items)
}

// discover collects article links from every journal page in order. A
// journal page that cannot be fetched or parsed is logged and skipped.
func (s *IngestStage) discover(ctx context.Context, journals []string) ([]string, error) {
	var links []string
	seen := make(map[string]bool)

	for i, journal := range journals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Printf("[ingest] [%d/%d] → Crawling journal %s", i+1, len(journals), journal)
		page, err := Call(s.pacer, func() ([]byte, error) {
			return s.fetcher.Fetch(ctx, journal)
		})
		if err != nil {
			log.Printf("[ingest] ✗ Journal %s: %v", journal, err)
			continue
		}

		found, err := JournalLinks(page, journal)
		if err != nil {
			log.Printf("[ingest] ✗ Journal %s: %v", journal, err)
			continue
		}

		added := 0
		for _, link := range found {
			if seen[link] {
				continue
			}
			seen[link] = true
			links = append(links, link)
			added++
		}
		debugLog("journal %s: %d links, %d new", journal, len(found), added)
	}

	log.Printf("[ingest] Discovered %d article links in %d journals", len(links), len(journals))
	return links, nil
}

func (s *IngestStage) scrape(ctx context.Context, articleURL string) (Article, error) {
	page, err := s.fetcher.Fetch(ctx, articleURL)
	if err != nil {
		return Article{}, err
	}

	if s.settings.RawDirectory != "" {
		s.saveSnapshot(articleURL, page)
	}

	return s.extractor.Extract(page, articleURL)
}

func (s *IngestStage) saveSnapshot(articleURL string, page []byte) {
	path := filepath.Join(s.settings.RawDirectory, hash8(articleURL)+".html")
	if err := os.MkdirAll(s.settings.RawDirectory, 0755); err != nil {
		log.Printf("Warning: could not create raw directory: %v", err)
		return
	}
	if err := os.WriteFile(path, page, 0644); err != nil {
		log.Printf("Warning: could not save raw page for %s: %v", articleURL, err)
		return
	}
	debugLog("saved raw page %s -> %s", articleURL, path)
}
