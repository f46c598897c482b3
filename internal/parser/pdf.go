package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// PDFParser handles PDF files. It tries the Go text-layer reader first,
// then pdftotext if enabled, then (only when allowed) a raw byte decode.
// Bookmarks become the outline when pdfcpu can read them.
type PDFParser struct {
	FallbackPdftotext   bool
	AllowBinaryFallback bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*Source, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "dealmap-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	src := &Source{Name: filepath.Base(filename)}

	pages, err := extractPDFPages(tmpPath)
	if err == nil && hasText(pages) {
		src.Pages = pages
		src.Outline = readOutline(tmpPath)
		return src, nil
	}
	lastErr := err

	if p.FallbackPdftotext {
		text, err := extractPdftotext(tmpPath)
		if err == nil {
			if pages := nonEmptyPages(splitFormFeeds(text)); len(pages) > 0 {
				src.Pages = pages
				return src, nil
			}
		} else {
			lastErr = err
		}
	}

	if p.AllowBinaryFallback {
		raw, err := os.ReadFile(tmpPath)
		if err == nil {
			if text := strings.ToValidUTF8(string(raw), ""); strings.TrimSpace(text) != "" {
				src.Pages = []string{text}
				return src, nil
			}
		}
	}

	return nil, &ExtractionFailure{Name: src.Name, Reason: "no text layer", Err: lastErr}
}

// extractPDFPages returns one entry per page, keeping empty pages so page
// numbers line up with the file.
func extractPDFPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// readOutline flattens the bookmark tree. Errors mean no outline.
func readOutline(path string) []docmap.OutlineEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	marks, err := api.Bookmarks(f, nil)
	if err != nil {
		return nil
	}
	var out []docmap.OutlineEntry
	var walk func(bms []pdfcpu.Bookmark, level int)
	walk = func(bms []pdfcpu.Bookmark, level int) {
		for _, bm := range bms {
			if title := strings.TrimSpace(bm.Title); title != "" {
				out = append(out, docmap.OutlineEntry{Title: title, Page: bm.PageFrom, Level: level})
			}
			walk(bm.Kids, level+1)
		}
	}
	walk(marks, 1)
	return out
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func splitFormFeeds(text string) []string {
	return strings.Split(text, "\f")
}

func nonEmptyPages(parts []string) []string {
	var pages []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			pages = append(pages, p)
		}
	}
	return pages
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if p != "" {
			return true
		}
	}
	return false
}
