package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	calls []string
	posts map[string]*PostContent
}

func (g *fakeGenerator) GeneratePost(_ context.Context, abstract string) (*PostContent, error) {
	g.calls = append(g.calls, abstract)
	post, ok := g.posts[abstract]
	if !ok {
		return nil, errors.New("model returned no content")
	}
	return post, nil
}

func newGenerateConfig(t *testing.T) *Config {
	dir := t.TempDir()
	return &Config{
		Dir: dir,
		Settings: &Settings{
			Generate: GenerateSettings{
				PostsFile:  filepath.Join(dir, "data", "posts.jsonl"),
				LedgerFile: filepath.Join(dir, "data", "generated_posts.txt"),
				ErrorsFile: filepath.Join(dir, "data", "processing_errors.log"),
			},
		},
	}
}

func writeArticles(t *testing.T, path string, articles ...Article) {
	w := NewArticleCSVWriter(path)
	for _, a := range articles {
		require.NoError(t, w.Append(a))
	}
}

func TestGenerateStage(t *testing.T) {
	config := newGenerateConfig(t)
	source := filepath.Join(config.Dir, "articles.csv")

	withDOI := sampleArticle("1")
	withDOI.Abstract = "abstract one"
	noDOI := sampleArticle("2")
	noDOI.DOI = ""
	noDOI.Abstract = "abstract two"
	incomplete := sampleArticle("3")
	incomplete.Abstract = "abstract three"
	writeArticles(t, source, withDOI, noDOI, incomplete)

	gen := &fakeGenerator{posts: map[string]*PostContent{
		"abstract one":   {Hook: "H1", Caption: "C1", Hashtags: []string{"#one"}, ImagePrompt: "forest"},
		"abstract two":   {Hook: "H2", Caption: "C2", Hashtags: []string{"#two"}, ImagePrompt: "river"},
		"abstract three": {Hook: "H3", Caption: "C3"},
	}}

	summary, err := NewGenerateStage(config, source, gen).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)

	drafts, err := ReadJSONL[PostDraft](config.Settings.Generate.PostsFile)
	require.NoError(t, err)
	require.Equal(t, []PostDraft{
		{
			Hook: "H1", Caption: "C1", Hashtags: []string{"#one"}, ImagePrompt: "forest",
			ArticleLink: withDOI.ArticleURL, ArticleTitle: withDOI.Title, ArticleID: withDOI.DOI,
		},
		{
			Hook: "H2", Caption: "C2", Hashtags: []string{"#two"}, ImagePrompt: "river",
			ArticleLink: noDOI.ArticleURL, ArticleTitle: noDOI.Title, ArticleID: titleHash(noDOI.Title),
		},
	}, drafts)

	errorsLog, err := os.ReadFile(config.Settings.Generate.ErrorsFile)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(errorsLog), incomplete.DOI+": validation failure"))

	ledger, err := LoadLedger(config.Settings.Generate.LedgerFile)
	require.NoError(t, err)
	require.True(t, ledger.Contains(withDOI.DOI))
	require.True(t, ledger.Contains(titleHash(noDOI.Title)))
	require.False(t, ledger.Contains(incomplete.DOI))

	// Rerun: only the failed article is sent to the model again
	gen.calls = nil
	summary, err = NewGenerateStage(config, source, gen).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, []string{"abstract three"}, gen.calls)
}

func TestGenerateStageModelFailure(t *testing.T) {
	config := newGenerateConfig(t)
	source := filepath.Join(config.Dir, "articles.csv")
	writeArticles(t, source, sampleArticle("1"))

	summary, err := NewGenerateStage(config, source, &fakeGenerator{}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, UpstreamFailure, summary.Results[0].Failure.Kind)
}

func TestGenerateStageEmptyAbstract(t *testing.T) {
	config := newGenerateConfig(t)
	source := filepath.Join(config.Dir, "articles.csv")
	article := sampleArticle("1")
	article.Abstract = ""
	writeArticles(t, source, article)

	gen := &fakeGenerator{}
	summary, err := NewGenerateStage(config, source, gen).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ValidationFailure, summary.Results[0].Failure.Kind)
	require.Empty(t, gen.calls)
}

func TestGenerateStageMissingSource(t *testing.T) {
	config := newGenerateConfig(t)

	summary, err := NewGenerateStage(config, filepath.Join(config.Dir, "none.csv"), &fakeGenerator{}).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Total)
}
