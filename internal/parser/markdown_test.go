package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingsBecomeOutline(t *testing.T) {
	input := `# Credit Agreement

Intro text.

## Section 2.01 Commitments

Each Lender agrees to make Loans.

### 2.01(a) Revolving Loans

Revolving content.
`
	p := &MarkdownParser{}
	src, err := p.Parse(strings.NewReader(input), "credit.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(src.Pages))
	}
	if len(src.Outline) != 3 {
		t.Fatalf("expected 3 outline entries, got %d", len(src.Outline))
	}
	if e := src.Outline[1]; e.Title != "Section 2.01 Commitments" || e.Level != 2 || e.Page != 1 {
		t.Errorf("unexpected outline entry %+v", e)
	}

	lines := strings.Split(src.Pages[0], "\n")
	want := []string{"Credit Agreement", "Intro text.", "Section 2.01 Commitments", "Each Lender agrees to make Loans.", "2.01(a) Revolving Loans", "Revolving content."}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line[%d]: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestMarkdownParser_PageMarkers(t *testing.T) {
	input := "# Cover\n\nCover text.\n[PAGE 2]\n## Section 6.02 Prepayment\n\nVoluntary prepayments are permitted.\n"
	p := &MarkdownParser{}
	src, err := p.Parse(strings.NewReader(input), "deal.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d: %q", len(src.Pages), src.Pages)
	}
	last := src.Outline[len(src.Outline)-1]
	if last.Page != 2 || last.Title != "Section 6.02 Prepayment" {
		t.Errorf("expected heading on page 2, got %+v", last)
	}
}

func TestMarkdownParser_CodeBlocksKept(t *testing.T) {
	input := "# Schedule\n\n```\nTranche A  $50,000,000\nTranche B  $25,000,000\n```\n\nMore text after code.\n"
	p := &MarkdownParser{}
	src, err := p.Parse(strings.NewReader(input), "schedule.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(src.Pages[0], "Tranche B  $25,000,000") {
		t.Errorf("expected code block content, got %q", src.Pages[0])
	}
	if !strings.HasSuffix(src.Pages[0], "More text after code.") {
		t.Errorf("expected trailing paragraph, got %q", src.Pages[0])
	}
}

func TestMarkdownParser_NoDuplicateParagraphText(t *testing.T) {
	p := &MarkdownParser{}
	src, err := p.Parse(strings.NewReader("Just some plain text."), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Pages[0] != "Just some plain text." {
		t.Errorf("expected single copy of paragraph, got %q", src.Pages[0])
	}
}

func TestHTMLParser_BlocksAndHeadings(t *testing.T) {
	input := `<html><head><title>Notice</title><style>p{}</style></head><body>
<nav>Home</nav>
<h1>Rate Notice</h1>
<p>Effective as of March 1, 2026,<br>the Benchmark Rate is SOFR.</p>
<h2>Margin</h2>
<ul><li>Applicable Margin: 2.25%</li></ul>
</body></html>`
	p := &HTMLParser{}
	src, err := p.Parse(strings.NewReader(input), "notice.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(src.Pages[0], "\n")
	want := []string{"Rate Notice", "Effective as of March 1, 2026,", "the Benchmark Rate is SOFR.", "Margin", "Applicable Margin: 2.25%"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if strings.TrimSpace(lines[i]) != want[i] {
			t.Errorf("line[%d]: expected %q, got %q", i, want[i], lines[i])
		}
	}
	if len(src.Outline) != 2 || src.Outline[1].Level != 2 {
		t.Errorf("unexpected outline %+v", src.Outline)
	}
}

func TestHTMLHeadingLevel(t *testing.T) {
	if got := headingLevel("h4"); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	if got := headingLevel("hr"); got != 0 {
		t.Errorf("expected 0 for hr, got %d", got)
	}
}
