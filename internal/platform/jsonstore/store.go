// Package jsonstore persists whole JSON documents on the local filesystem.
// Every document is rewritten in full: mutations stage temporary files and
// publish them with renames, so readers never observe a torn document and a
// crash mid-commit cannot mix old and new collection states out of order.
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	docExt = ".json"
	tmpExt = ".json.tmp"
)

// Document pairs a collection name with the value to persist for it.
type Document struct {
	Name  string
	Value any
}

// Store reads and writes named JSON documents under a single directory.
type Store struct {
	dir string
}

// Open prepares a store rooted at dir, creating the directory when missing.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("jsonstore: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Load decodes the named document into v. A missing or empty file leaves v
// untouched; unreadable or malformed content is an error, never silently
// treated as an empty collection.
func (s *Store) Load(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path(name, docExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jsonstore: read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonstore: decode %s: %w", name, err)
	}
	return nil
}

// Commit persists the given documents. All documents are first staged as
// temporary files; only when every stage succeeds are they renamed into place,
// in argument order. A failure while staging removes the staged files and
// leaves every live document untouched.
func (s *Store) Commit(ctx context.Context, docs ...Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := make([]string, 0, len(docs))
	cleanup := func() {
		for _, name := range staged {
			_ = os.Remove(s.path(name, tmpExt))
		}
	}
	for _, doc := range docs {
		data, err := json.MarshalIndent(doc.Value, "", "  ")
		if err != nil {
			cleanup()
			return fmt.Errorf("jsonstore: encode %s: %w", doc.Name, err)
		}
		if err := writeFileSync(s.path(doc.Name, tmpExt), data); err != nil {
			cleanup()
			return fmt.Errorf("jsonstore: stage %s: %w", doc.Name, err)
		}
		staged = append(staged, doc.Name)
	}
	for _, name := range staged {
		if err := os.Rename(s.path(name, tmpExt), s.path(name, docExt)); err != nil {
			return fmt.Errorf("jsonstore: publish %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) path(name, ext string) string {
	return filepath.Join(s.dir, name+ext)
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
