package main

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Ledger is the persisted set of identities a stage has already processed
// successfully. Entries are only ever appended.
type Ledger struct {
	path string
	seen map[string]struct{}
}

// LoadLedger reads the ledger at path. A missing file is an empty ledger.
func LoadLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, seen: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	// An unterminated last line is an interrupted write and may be a
	// prefix of a real identity
	complete := data[:lastLineEnd(data)]
	if len(complete) < len(data) {
		log.Printf("Warning: ignoring incomplete last entry in ledger %s", path)
	}

	for _, line := range strings.Split(string(complete), "\n") {
		id := strings.TrimSpace(line)
		if id == "" {
			continue
		}
		l.seen[id] = struct{}{}
	}

	return l, nil
}

// Contains reports whether id was recorded by this or an earlier run
func (l *Ledger) Contains(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Record appends id to the ledger file and syncs it before returning
func (l *Ledger) Record(id string) error {
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("ledger identity contains a line break: %q", id)
	}

	if err := appendLine(l.path, []byte(id)); err != nil {
		return fmt.Errorf("recording %s in ledger: %w", id, err)
	}

	l.seen[id] = struct{}{}
	return nil
}

// Len returns the number of distinct identities in the ledger
func (l *Ledger) Len() int {
	return len(l.seen)
}

// Path returns the ledger file location
func (l *Ledger) Path() string {
	return l.path
}

// appendLine writes line plus a newline to the end of path in a single write
// and flushes it to disk. Bytes after the last newline are left over from an
// interrupted write and are truncated first.
func appendLine(path string, line []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}

	if err := truncateTornTail(f); err != nil {
		f.Close()
		return err
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func truncateTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return err
	}
	end := lastLineEnd(data)
	log.Printf("Warning: dropping %d bytes of incomplete line at end of %s", size-int64(end), f.Name())
	return f.Truncate(int64(end))
}

// lastLineEnd returns the length of the prefix of data made of complete lines
func lastLineEnd(data []byte) int {
	return bytes.LastIndexByte(data, '\n') + 1
}
