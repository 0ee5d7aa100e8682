package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePhotos struct {
	searches []string
	photo    *Photo
	err      error
}

func (f *fakePhotos) Search(_ context.Context, query string) (*Photo, error) {
	f.searches = append(f.searches, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.photo, nil
}

func (f *fakePhotos) Download(context.Context, *Photo) (image.Image, error) {
	return solidImage(60, 40, color.RGBA{G: 200, A: 255}), nil
}

type fakeRenderer struct {
	calls int
	fail  map[string]error
}

func (r *fakeRenderer) RenderPost(_ context.Context, draft PostDraft) (*Rendering, error) {
	r.calls++
	if err, ok := r.fail[draft.ArticleTitle]; ok {
		return nil, err
	}
	return &Rendering{Image: solidImage(8, 8, color.White), Photographer: "Jane Doe"}, nil
}

func newRenderConfig(t *testing.T) *Config {
	dir := t.TempDir()
	return &Config{
		Dir: dir,
		Settings: &Settings{
			Render: RenderSettings{
				PostsFile:      filepath.Join(dir, "output", "posts_with_images.jsonl"),
				LedgerFile:     filepath.Join(dir, "output", "generated_images.txt"),
				ErrorsFile:     filepath.Join(dir, "output", "image_errors.log"),
				ImageDirectory: filepath.Join(dir, "output"),
				JPEGQuality:    90,
			},
		},
	}
}

func writeDrafts(t *testing.T, path string, drafts ...PostDraft) {
	w := NewJSONLWriter[PostDraft](path)
	for _, d := range drafts {
		require.NoError(t, w.Append(d))
	}
}

func TestPexelsRendererRenderPost(t *testing.T) {
	composer, err := NewComposer(108)
	require.NoError(t, err)
	photos := &fakePhotos{photo: &Photo{ID: 7, Photographer: "Jane Doe"}}

	rendering, err := NewPexelsRenderer(photos, composer).RenderPost(context.Background(),
		PostDraft{Hook: "Fire!", ImagePrompt: "burnt forest"})
	require.NoError(t, err)
	require.Equal(t, []string{"burnt forest"}, photos.searches)
	require.Equal(t, "Jane Doe", rendering.Photographer)
	require.Equal(t, image.Rect(0, 0, 108, 108), rendering.Image.Bounds())

	photos.err = errors.New("no photos found")
	_, err = NewPexelsRenderer(photos, composer).RenderPost(context.Background(), PostDraft{Hook: "x", ImagePrompt: "y"})
	require.Error(t, err)
}

func TestRenderStage(t *testing.T) {
	config := newRenderConfig(t)
	source := filepath.Join(config.Dir, "posts.jsonl")
	drafts := []PostDraft{
		{Hook: "H1", Caption: "C1", Hashtags: []string{"#a"}, ImagePrompt: "forest", ArticleTitle: "Fire regimes", ArticleID: "10.1071/WF1"},
		{Hook: "H2", Caption: "C2", Hashtags: []string{"#b"}, ImagePrompt: "sea", ArticleTitle: "Ocean heat"},
		{Hook: "H3", Caption: "C3", Hashtags: []string{"#c"}, ImagePrompt: "void", ArticleTitle: "Nothing found", ArticleID: "10.1071/WF3"},
	}
	writeDrafts(t, source, drafts...)

	renderer := &fakeRenderer{fail: map[string]error{"Nothing found": errors.New("no photos found for \"void\"")}}
	summary, err := NewRenderStage(config, source, renderer).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)

	posts, err := ReadJSONL[RenderedPost](config.Settings.Render.PostsFile)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, drafts[0], posts[0].PostDraft)
	require.Equal(t, "Jane Doe", posts[0].PhotoCredit)
	require.Equal(t, imageFilename(config.Settings.Render.ImageDirectory, "Fire regimes", "10.1071/WF1"), posts[0].ImagePath)

	f, err := os.Open(posts[1].ImagePath)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())

	ledger, err := LoadLedger(config.Settings.Render.LedgerFile)
	require.NoError(t, err)
	require.True(t, ledger.Contains("10.1071/WF1"))
	require.True(t, ledger.Contains(titleHash("Ocean heat")))
	require.False(t, ledger.Contains("10.1071/WF3"))

	errorsLog, err := os.ReadFile(config.Settings.Render.ErrorsFile)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(errorsLog), "10.1071/WF3: upstream failure: no photos found"))

	// Rerun only retries the failure
	summary, err = NewRenderStage(config, source, renderer).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 4, renderer.calls)
}

func TestRenderStageRejectsDraftWithoutHook(t *testing.T) {
	config := newRenderConfig(t)
	source := filepath.Join(config.Dir, "posts.jsonl")
	writeDrafts(t, source, PostDraft{ArticleTitle: "No hook", ImagePrompt: "x"})

	renderer := &fakeRenderer{}
	summary, err := NewRenderStage(config, source, renderer).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ValidationFailure, summary.Results[0].Failure.Kind)
	require.Zero(t, renderer.calls)
}

func TestRenderedPostWriterImageFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not a directory"), 0644))

	w := NewRenderedPostWriter(filepath.Join(blocker, "images"), 90, filepath.Join(dir, "posts.jsonl"))
	err := w.Append(RenderedPost{PostDraft: PostDraft{ArticleTitle: "T"}, Image: solidImage(4, 4, color.Black)})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "posts.jsonl"))
	require.True(t, os.IsNotExist(statErr), "no record without its image")
}

func TestImageFilename(t *testing.T) {
	name := imageFilename("output", "Fire Regimes: A Review", "10.1071/WF1")
	require.Equal(t, filepath.Join("output", "fire-regimes-a-review-"+hash8("10.1071/WF1")+".jpg"), name)

	// Titles that slug the same still get distinct files
	require.NotEqual(t,
		imageFilename("output", "Fire regimes!", titleHash("Fire regimes!")),
		imageFilename("output", "Fire regimes?", titleHash("Fire regimes?")))
}

func TestRenderStageSameTitleDistinctImages(t *testing.T) {
	config := newRenderConfig(t)
	source := filepath.Join(config.Dir, "posts.jsonl")
	writeDrafts(t, source,
		PostDraft{Hook: "H1", ImagePrompt: "paper", ArticleTitle: "Corrigendum", ArticleID: "10.1/a"},
		PostDraft{Hook: "H2", ImagePrompt: "paper", ArticleTitle: "Corrigendum", ArticleID: "10.1/b"},
	)

	summary, err := NewRenderStage(config, source, &fakeRenderer{}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Succeeded)

	posts, err := ReadJSONL[RenderedPost](config.Settings.Render.PostsFile)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.NotEqual(t, posts[0].ImagePath, posts[1].ImagePath)
	for _, p := range posts {
		_, err := os.Stat(p.ImagePath)
		require.NoError(t, err)
	}
}
