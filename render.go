package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Rendering is a composed post image and the credit for its background
type Rendering struct {
	Image        image.Image
	Photographer string
}

// PostRenderer turns a post draft into an image
type PostRenderer interface {
	RenderPost(ctx context.Context, draft PostDraft) (*Rendering, error)
}

// PhotoSource finds and downloads background photos
type PhotoSource interface {
	Search(ctx context.Context, query string) (*Photo, error)
	Download(ctx context.Context, photo *Photo) (image.Image, error)
}

// PexelsRenderer composes the hook over a stock photo matching the image prompt
type PexelsRenderer struct {
	photos   PhotoSource
	composer *Composer
}

// NewPexelsRenderer creates a renderer from a photo source and a composer
func NewPexelsRenderer(photos PhotoSource, composer *Composer) *PexelsRenderer {
	return &PexelsRenderer{photos: photos, composer: composer}
}

// RenderPost searches for a background, downloads it and draws the post on it
func (r *PexelsRenderer) RenderPost(ctx context.Context, draft PostDraft) (*Rendering, error) {
	photo, err := r.photos.Search(ctx, draft.ImagePrompt)
	if err != nil {
		return nil, err
	}
	log.Printf("  → Photo %d by %s for %q", photo.ID, photo.Photographer, draft.ImagePrompt)

	background, err := r.photos.Download(ctx, photo)
	if err != nil {
		return nil, err
	}

	return &Rendering{
		Image:        r.composer.Compose(background, draft.Hook, photo.Photographer),
		Photographer: photo.Photographer,
	}, nil
}

// RenderedPostWriter saves each rendered image as a JPEG and appends the
// annotated draft to a JSONL store
type RenderedPostWriter struct {
	imageDir string
	quality  int
	records  *JSONLWriter[RenderedPost]
}

// NewRenderedPostWriter creates a writer saving images under imageDir
func NewRenderedPostWriter(imageDir string, quality int, postsPath string) *RenderedPostWriter {
	return &RenderedPostWriter{
		imageDir: imageDir,
		quality:  quality,
		records:  NewJSONLWriter[RenderedPost](postsPath),
	}
}

// Append writes the image first, so a record never points at a missing file
func (w *RenderedPostWriter) Append(post RenderedPost) error {
	if post.Image == nil {
		return fmt.Errorf("rendered post %q has no image", post.ArticleTitle)
	}

	path := imageFilename(w.imageDir, post.ArticleTitle, renderIdentity(post.PostDraft))
	if err := saveJPEG(path, post.Image, w.quality); err != nil {
		return fmt.Errorf("saving image %s: %w", path, err)
	}
	log.Printf("  → Saved image: %s", path)

	post.ImagePath = path
	return w.records.Append(post)
}

func saveJPEG(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// imageFilename names an image by its title slug and a hash of the render
// identity, so drafts sharing a title get distinct files
func imageFilename(dir, title, id string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jpg", generateSlugFromTitle(title), hash8(id)))
}

// renderIdentity keys a draft by its article id, or by the full title hash
// when the draft predates article ids
func renderIdentity(draft PostDraft) string {
	if id := strings.TrimSpace(draft.ArticleID); id != "" {
		return id
	}
	return titleHash(draft.ArticleTitle)
}

func titleHash(title string) string {
	h := sha256.Sum256([]byte(title))
	return fmt.Sprintf("%x", h)
}

func hash8(s string) string {
	return titleHash(s)[:8]
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	slugDashes   = regexp.MustCompile(`-+`)
)

// generateSlugFromTitle creates a filename slug from an article title
func generateSlugFromTitle(title string) string {
	if title == "" {
		return "article"
	}

	slug := strings.ToLower(title)
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	// Limit length to avoid filesystem issues
	if len(slug) > 50 {
		slug = slug[:50]
		slug = strings.Trim(slug, "-")
	}

	if slug == "" {
		return "article"
	}

	return slug
}

func validateRendering(post RenderedPost) *ItemFailure {
	if post.Image == nil {
		return validationFailure(&MissingFieldsError{Fields: []string{"image"}})
	}
	return nil
}

// RenderStage draws an image for every generated post draft
type RenderStage struct {
	settings RenderSettings
	source   string
	renderer PostRenderer
	pacer    *Pacer
}

// NewRenderStage creates the render stage reading drafts from source
func NewRenderStage(config *Config, source string, renderer PostRenderer) *RenderStage {
	return &RenderStage{
		settings: config.Settings.Render,
		source:   source,
		renderer: renderer,
		pacer:    NewPacer(config.Settings.Delay),
	}
}

// NewPexelsRenderStage wires the Pexels photo client and compositor from config
func NewPexelsRenderStage(config *Config) (*RenderStage, error) {
	photos, err := NewPhotoClient(PhotoClientOptions{
		BaseURL: config.Settings.Render.PhotoAPIURL,
		APIKey:  config.PexelsKey,
		Size:    config.Settings.Render.PhotoSize,
		PerHour: config.Settings.Render.PhotosPerHour,
		Timeout: config.Settings.Render.Timeout,
	})
	if err != nil {
		return nil, err
	}

	composer, err := NewComposer(config.Settings.Render.Size)
	if err != nil {
		return nil, fmt.Errorf("creating composer: %w", err)
	}

	return NewRenderStage(config, config.Settings.Generate.PostsFile, NewPexelsRenderer(photos, composer)), nil
}

// Run renders every draft not yet in the render ledger
func (s *RenderStage) Run(ctx context.Context) (*Summary, error) {
	drafts, err := ReadJSONL[PostDraft](s.source)
	if err != nil {
		return nil, fmt.Errorf("loading post drafts: %w", err)
	}
	if len(drafts) == 0 {
		log.Printf("[render] No post drafts in %s", s.source)
	}

	items := make([]WorkItem[PostDraft], 0, len(drafts))
	for _, draft := range drafts {
		items = append(items, WorkItem[PostDraft]{ID: renderIdentity(draft), Payload: draft})
	}

	ledger, err := LoadLedger(s.settings.LedgerFile)
	if err != nil {
		return nil, err
	}

	runner := &BatchRunner[PostDraft, RenderedPost]{
		Stage:  "render",
		Ledger: ledger,
		Output: NewRenderedPostWriter(s.settings.ImageDirectory, s.settings.JPEGQuality, s.settings.PostsFile),
		Errors: NewErrorLog(s.settings.ErrorsFile),
		Processor: &ItemProcessor[PostDraft, RenderedPost]{
			Transform: s.render,
			Validate:  validateRendering,
			Pacer:     s.pacer,
		},
	}
	return runner.Run(ctx, items)
}

func (s *RenderStage) render(ctx context.Context, draft PostDraft) (RenderedPost, error) {
	if strings.TrimSpace(draft.Hook) == "" {
		return RenderedPost{}, validationFailure(&MissingFieldsError{Fields: []string{"hook"}})
	}

	rendering, err := s.renderer.RenderPost(ctx, draft)
	if err != nil {
		return RenderedPost{}, err
	}

	return RenderedPost{
		PostDraft:   draft,
		PhotoCredit: rendering.Photographer,
		Image:       rendering.Image,
	}, nil
}
