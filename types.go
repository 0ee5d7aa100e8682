package main

import "image"

// WorkItem is one unit of batch input keyed by a stable identity
type WorkItem[T any] struct {
	ID      string
	Payload T
}

// Article represents the citation metadata scraped from one article page
type Article struct {
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Abstract        string   `json:"abstract"`
	PublicationDate string   `json:"publication_date"`
	JournalName     string   `json:"journal_name"`
	DOI             string   `json:"doi"`
	PDFURL          string   `json:"pdf_url"`
	ArticleURL      string   `json:"article_url"`
}

// PostContent is the structured output requested from the language model
type PostContent struct {
	Hook        string   `json:"hook"`
	Caption     string   `json:"caption"`
	Hashtags    []string `json:"hashtags"`
	ImagePrompt string   `json:"image_prompt"`
}

// PostDraft is a generated post linked back to its source article
type PostDraft struct {
	Hook         string   `json:"hook"`
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	ImagePrompt  string   `json:"image_prompt"`
	ArticleLink  string   `json:"article_link"`
	ArticleTitle string   `json:"article_title"`
	ArticleID    string   `json:"article_id,omitempty"`
}

// RenderedPost is a post draft annotated with its rendered image
type RenderedPost struct {
	PostDraft
	ImagePath   string `json:"image_path"`
	PhotoCredit string `json:"photo_credit,omitempty"`

	Image image.Image `json:"-"`
}

// ProcessingStatus represents the outcome of one work item
type ProcessingStatus string

const (
	StatusSucceeded ProcessingStatus = "succeeded"
	StatusSkipped   ProcessingStatus = "skipped"
	StatusFailed    ProcessingStatus = "failed"
)

// ProcessingResult tracks the outcome of processing each work item
type ProcessingResult struct {
	ID      string
	Status  ProcessingStatus
	Failure *ItemFailure
}

// Summary counts the outcomes of one stage run
type Summary struct {
	Stage     string
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	Results   []ProcessingResult
}

func (s *Summary) add(result ProcessingResult) {
	s.Results = append(s.Results, result)
	switch result.Status {
	case StatusSkipped:
		s.Skipped++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	}
}
