package main

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate compact <ledger> | migrate rekey-images <posts_with_images.jsonl> <ledger>")
	}

	command := os.Args[1]

	switch command {
	case "compact":
		kept, dropped, err := compactLedger(os.Args[2])
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Compacted %s: kept %d, dropped %d duplicate lines", os.Args[2], kept, dropped)
	case "rekey-images":
		if len(os.Args) < 4 {
			log.Fatal("Usage: migrate rekey-images <posts_with_images.jsonl> <ledger>")
		}
		count, err := rekeyImages(os.Args[2], os.Args[3])
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote %d render identities to %s", count, os.Args[3])
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// compactLedger rewrites a ledger without blank or repeated lines, keeping
// first-seen order
func compactLedger(path string) (kept, dropped int, err error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, 0, err
	}

	unique := uniqueLines(lines)
	if err := writeLinesAtomic(path, unique); err != nil {
		return 0, 0, err
	}
	return len(unique), len(lines) - len(unique), nil
}

type renderedRecord struct {
	ArticleID    string `json:"article_id"`
	ArticleTitle string `json:"article_title"`
}

// rekeyImages rebuilds the render ledger from the rendered posts store, so
// old title-prefix keys are replaced by article ids or full title hashes
func rekeyImages(postsPath, ledgerPath string) (int, error) {
	data, err := os.ReadFile(postsPath)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", postsPath, err)
	}

	var ids []string
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var record renderedRecord
		if err := json.Unmarshal(line, &record); err != nil {
			log.Printf("Skipping line %d of %s: %v", i+1, postsPath, err)
			continue
		}
		ids = append(ids, renderIdentity(record))
	}

	unique := uniqueLines(ids)
	if err := writeLinesAtomic(ledgerPath, unique); err != nil {
		return 0, err
	}
	return len(unique), nil
}

func renderIdentity(r renderedRecord) string {
	if id := strings.TrimSpace(r.ArticleID); id != "" {
		return id
	}
	h := sha256.Sum256([]byte(r.ArticleTitle))
	return fmt.Sprintf("%x", h)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	unique := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		unique = append(unique, line)
	}
	return unique
}

// writeLinesAtomic replaces path with lines via a synced temp file and rename
func writeLinesAtomic(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
