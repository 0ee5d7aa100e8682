package main

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// JournalLinks returns the absolute article links on a journal listing page,
// in page order and without duplicates. Links are taken from the first
// anchor inside each article's h3 heading.
func JournalLinks(page []byte, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing journal URL %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing journal page: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		href, ok := article.Find("h3").First().Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			debugLog("skipping malformed link %q: %v", href, err)
			return
		}
		link := base.ResolveReference(ref).String()
		if seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	return links, nil
}

// ArticleExtractor pulls citation metadata out of article pages
type ArticleExtractor struct {
	converter *md.Converter
}

// NewArticleExtractor creates an extractor that renders abstract markup as
// plain markdown text
func NewArticleExtractor() *ArticleExtractor {
	return &ArticleExtractor{converter: md.NewConverter("", true, nil)}
}

// Extract reads the citation_* meta tags of an article page. Missing tags
// leave the corresponding fields empty; see validateArticle.
func (e *ArticleExtractor) Extract(page []byte, articleURL string) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Article{}, fmt.Errorf("parsing article page: %w", err)
	}

	meta := func(name string) string {
		content, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
		return strings.TrimSpace(content)
	}

	var authors []string
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.AttrOr("content", "")); name != "" {
			authors = append(authors, name)
		}
	})

	return Article{
		Title:           meta("citation_title"),
		Authors:         authors,
		Abstract:        e.plainText(meta("citation_abstract")),
		PublicationDate: meta("citation_publication_date"),
		JournalName:     meta("citation_journal_title"),
		DOI:             meta("citation_doi"),
		PDFURL:          meta("citation_pdf_url"),
		ArticleURL:      articleURL,
	}, nil
}

// plainText converts abstract markup (often <p> or <i> fragments) to text
func (e *ArticleExtractor) plainText(abstract string) string {
	if !strings.Contains(abstract, "<") {
		return abstract
	}
	text, err := e.converter.ConvertString(abstract)
	if err != nil {
		debugLog("abstract conversion failed, keeping raw markup: %v", err)
		return abstract
	}
	return strings.TrimSpace(text)
}

// validateArticle requires every citation field to be present and non-empty
func validateArticle(a Article) *ItemFailure {
	return requireFields(
		textField("title", a.Title),
		listField("authors", a.Authors),
		textField("abstract", a.Abstract),
		textField("publication_date", a.PublicationDate),
		textField("journal_name", a.JournalName),
		textField("doi", a.DOI),
		textField("pdf_url", a.PDFURL),
	)
}
