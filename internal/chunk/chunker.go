// Package chunk splits crawled page content into ordered chunks suitable for
// embedding. Markdown is split on headings and paragraph boundaries; HTML and
// plain text are kept whole.
package chunk

import (
	"regexp"
	"strings"
)

// DefaultMaxChunkSize is the soft maximum chunk size in characters.
const DefaultMaxChunkSize = 3000

// ContentKind selects the chunking strategy.
type ContentKind string

const (
	// KindMarkdown splits on headings and paragraphs.
	KindMarkdown ContentKind = "markdown"
	// KindHTML keeps the whole input as a single chunk.
	KindHTML ContentKind = "html"
)

// Chunk is one contiguous slice of text plus its heading context.
type Chunk struct {
	// Index is the 0-based position of the chunk within the document.
	Index int
	// Header is the text of the nearest preceding markdown heading, or
	// empty when the chunk has no heading context.
	Header string
	// Text is the chunk content, including its heading line when present.
	Text string
}

// Matches headers: # Title, ## Title, etc.
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// Collapses runs of three or more newlines into a paragraph break.
var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// Chunker splits text into chunks with a configurable soft size limit.
type Chunker struct {
	maxChunkSize int
}

// NewChunker creates a chunker with the default soft size limit.
func NewChunker() *Chunker {
	return NewChunkerWithSize(DefaultMaxChunkSize)
}

// NewChunkerWithSize creates a chunker with a custom soft size limit.
func NewChunkerWithSize(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	return &Chunker{maxChunkSize: maxSize}
}

// Chunk splits content into ordered chunks. Markdown is split on headings,
// then oversized sections are split on paragraph boundaries. Other content
// kinds produce a single chunk. Whitespace-only input yields no chunks.
// Results are deterministic for a given input.
func (c *Chunker) Chunk(content string, kind ContentKind) []Chunk {
	normalized := normalize(content)
	if normalized == "" {
		return nil
	}

	if kind != KindMarkdown {
		return []Chunk{{Index: 0, Text: normalized}}
	}

	var chunks []Chunk
	for _, sec := range parseSections(normalized) {
		for _, text := range c.splitSection(sec.content) {
			chunks = append(chunks, Chunk{
				Index:  len(chunks),
				Header: sec.header,
				Text:   text,
			})
		}
	}

	// Non-empty input always produces at least one chunk.
	if len(chunks) == 0 {
		chunks = []Chunk{{Index: 0, Text: normalized}}
	}

	return chunks
}

// normalize trims surrounding whitespace and collapses blank-line runs.
func normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = blankRunPattern.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// section is a heading plus the content up to the next heading.
type section struct {
	header  string
	content string
}

// parseSections splits markdown into sections on heading lines. Content
// before the first heading becomes a section with no header. The heading
// line itself stays in the section content so that joining chunk texts
// reproduces the document.
func parseSections(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	var current section
	var builder strings.Builder

	flush := func() {
		text := strings.TrimSpace(builder.String())
		if text != "" {
			current.content = text
			sections = append(sections, current)
		}
		builder.Reset()
	}

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()
			current = section{header: strings.TrimSpace(match[2])}
		}
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	flush()

	return sections
}

// splitSection splits an oversized section on paragraph boundaries so no
// chunk exceeds the soft size limit. A single paragraph larger than the
// limit is kept whole; the limit is soft.
func (c *Chunker) splitSection(content string) []string {
	if len(content) <= c.maxChunkSize {
		return []string{content}
	}

	paragraphs := strings.Split(content, "\n\n")
	var parts []string
	var builder strings.Builder

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if builder.Len() > 0 && builder.Len()+len(para)+2 > c.maxChunkSize {
			parts = append(parts, builder.String())
			builder.Reset()
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(para)
	}

	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}

	return parts
}
