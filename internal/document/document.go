// Package document loads input documents and persists processed copies.
package document

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrEmptyInput is returned for blank text or files
	ErrEmptyInput = errors.New("input is empty")
	// ErrFileNotFound is returned when the input path does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrUnreadableFile is returned when the input cannot be read as text
	ErrUnreadableFile = errors.New("file is not readable")
)

// OutputKind selects the prefix of a persisted copy
type OutputKind string

const (
	OutputSafe       OutputKind = "safe"
	OutputAnonymized OutputKind = "anonymized"
	OutputDeleted    OutputKind = "deleted"
)

// Document is one piece of input text under review
type Document struct {
	ID   string
	Path string
	Text string
	Hash string
}

// Load reads a UTF-8 text file
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s: not valid UTF-8", ErrUnreadableFile, path)
	}

	doc, err := FromText(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// FromText wraps raw text entered by the user
func FromText(text string) (*Document, error) {
	if err := CheckText(text); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(text))
	return &Document{
		ID:   uuid.NewString(),
		Text: text,
		Hash: fmt.Sprintf("sha256:%x", sum),
	}, nil
}

// CheckText rejects text that is blank after trimming
func CheckText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// Name returns the base name of the document, or a generated one for
// text that did not come from a file.
func (d *Document) Name() string {
	if d.Path != "" {
		return filepath.Base(d.Path)
	}
	return "document_" + d.ID[:8] + ".txt"
}

// OutputName derives the persisted file name, e.g. safe_report.txt
func OutputName(kind OutputKind, path string) string {
	return string(kind) + "_" + filepath.Base(path)
}

// Save writes text to dir/name and returns the written path
func Save(dir, name, text string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}
