package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
)

// Source is a document split into ordered pages of raw text, plus any
// outline the file format carries.
type Source struct {
	Name    string
	Path    string
	Pages   []string
	Outline []docmap.OutlineEntry
}

// Parser converts raw document bytes into a Source.
type Parser interface {
	Parse(r io.Reader, filename string) (*Source, error)
}

// Options tunes format-specific fallbacks.
type Options struct {
	// FallbackPdftotext runs the pdftotext command when the Go PDF reader
	// yields nothing.
	FallbackPdftotext bool
	// AllowBinaryFallback decodes raw PDF bytes as text when every other
	// extractor fails. Output is degraded; off unless configured.
	AllowBinaryFallback bool
}

// ExtractionFailure means no usable page text could be read from a file.
// It fails that document only.
type ExtractionFailure struct {
	Name   string
	Reason string
	Err    error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Name, e.Reason)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// IsExtractionFailure reports whether err wraps an *ExtractionFailure.
func IsExtractionFailure(err error) bool {
	var ef *ExtractionFailure
	return errors.As(err, &ef)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.FallbackPdftotext, AllowBinaryFallback: opts.AllowBinaryFallback}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Parse picks a parser by filename, parses data and rejects sources with
// no pages.
func Parse(data []byte, filename string, opts Options) (*Source, error) {
	p, err := ForFile(filename, opts)
	if err != nil {
		return nil, err
	}
	src, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}
	if len(src.Pages) == 0 {
		return nil, &ExtractionFailure{Name: filename, Reason: "no extractable pages"}
	}
	return src, nil
}

// LoadFile reads and parses a document from disk.
func LoadFile(path string, opts Options) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	src, err := Parse(data, filepath.Base(path), opts)
	if err != nil {
		return nil, err
	}
	src.Path = path
	return src, nil
}
