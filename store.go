package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// RecordWriter appends one output record and flushes it before returning
type RecordWriter[R any] interface {
	Append(record R) error
}

// JSONLWriter appends records as newline-delimited JSON
type JSONLWriter[R any] struct {
	path string
}

// NewJSONLWriter creates a writer that appends to path
func NewJSONLWriter[R any](path string) *JSONLWriter[R] {
	return &JSONLWriter[R]{path: path}
}

// Append marshals record onto its own line
func (w *JSONLWriter[R]) Append(record R) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	if err := appendLine(w.path, data); err != nil {
		return fmt.Errorf("appending to %s: %w", w.path, err)
	}
	return nil
}

// ReadJSONL loads every record from a newline-delimited JSON file. A missing
// file yields no records. A final line without a trailing newline is a write
// torn by a crash and is skipped.
func ReadJSONL[R any](path string) ([]R, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	end := lastLineEnd(data)
	if tail := bytes.TrimSpace(data[end:]); len(tail) > 0 {
		log.Printf("Warning: skipping incomplete last line of %s", path)
	}

	var records []R
	for i, line := range bytes.Split(data[:end], []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var record R
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", path, i+1, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// CountLines returns the number of non-empty lines in path, 0 if missing
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count, scanner.Err()
}

// ErrorLog appends one "{identity}: {reason}" line per failed item
type ErrorLog struct {
	path string
}

// NewErrorLog creates an error log appending to path
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path}
}

// Record appends the failure for id
func (e *ErrorLog) Record(id string, failure *ItemFailure) error {
	reason := strings.Join(strings.Fields(failure.Error()), " ")
	line := fmt.Sprintf("%s: %s", id, reason)
	if err := appendLine(e.path, []byte(line)); err != nil {
		return fmt.Errorf("appending to %s: %w", e.path, err)
	}
	return nil
}

const (
	csvDelimiter    = ';'
	authorSeparator = " | "
)

var articleColumns = []string{
	"title", "authors", "abstract", "publication_date", "journal_name", "doi", "pdf_url", "article_url",
}

// ArticleCSVWriter appends articles to a semicolon-delimited file, writing
// the header only when the file is new or empty.
type ArticleCSVWriter struct {
	path     string
	repaired bool
}

// NewArticleCSVWriter creates a writer appending to path
func NewArticleCSVWriter(path string) *ArticleCSVWriter {
	return &ArticleCSVWriter{path: path}
}

// Append writes one article row. The first append drops a partial row left
// by an interrupted write.
func (w *ArticleCSVWriter) Append(article Article) error {
	if !w.repaired {
		if err := truncateIncompleteRow(w.path); err != nil {
			return fmt.Errorf("repairing %s: %w", w.path, err)
		}
		w.repaired = true
	}

	needsHeader := true
	if info, err := os.Stat(w.path); err == nil && info.Size() > 0 {
		needsHeader = false
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Comma = csvDelimiter
	if needsHeader {
		if err := cw.Write(articleColumns); err != nil {
			return err
		}
	}
	if err := cw.Write(articleRow(article)); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("encoding article row: %w", err)
	}

	if err := appendLine(w.path, bytes.TrimSuffix(buf.Bytes(), []byte("\n"))); err != nil {
		return fmt.Errorf("appending to %s: %w", w.path, err)
	}
	return nil
}

func articleRow(a Article) []string {
	return []string{
		a.Title,
		strings.Join(a.Authors, authorSeparator),
		a.Abstract,
		a.PublicationDate,
		a.JournalName,
		a.DOI,
		a.PDFURL,
		a.ArticleURL,
	}
}

// ReadArticlesCSV loads the article store written by the ingest stage. A
// missing file yields no articles. A partial last row is skipped.
func ReadArticlesCSV(path string) ([]Article, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	end := lastRowEnd(data)
	if len(bytes.TrimSpace(data[end:])) > 0 {
		log.Printf("Warning: skipping incomplete last row of %s", path)
	}

	return parseArticlesCSV(bytes.NewReader(data[:end]))
}

// lastRowEnd returns the length of the prefix of data made of complete CSV
// rows. A newline inside a quoted field does not end a row.
func lastRowEnd(data []byte) int {
	end := 0
	quoted := false
	for i, b := range data {
		switch b {
		case '"':
			quoted = !quoted
		case '\n':
			if !quoted {
				end = i + 1
			}
		}
	}
	return end
}

func truncateIncompleteRow(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	end := lastRowEnd(data)
	if end == len(data) {
		return nil
	}
	log.Printf("Warning: dropping %d bytes of incomplete row at end of %s", len(data)-end, path)
	return os.Truncate(path, int64(end))
}

func parseArticlesCSV(r io.Reader) ([]Article, error) {
	reader := csv.NewReader(r)
	reader.Comma = csvDelimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range articleColumns[:7] {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("article store is missing column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var articles []Article
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading article row: %w", err)
		}

		articles = append(articles, Article{
			Title:           cell(row, "title"),
			Authors:         splitAuthors(cell(row, "authors")),
			Abstract:        cell(row, "abstract"),
			PublicationDate: cell(row, "publication_date"),
			JournalName:     cell(row, "journal_name"),
			DOI:             cell(row, "doi"),
			PDFURL:          cell(row, "pdf_url"),
			ArticleURL:      cell(row, "article_url"),
		})
	}

	return articles, nil
}

func splitAuthors(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, strings.TrimSpace(authorSeparator))
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			authors = append(authors, p)
		}
	}
	return authors
}
