// Package ingest handles document upload, text extraction, chunking
// and indexing into the vector store.
package ingest

import (
	"strings"
	"unicode/utf8"
)

// ChunkerConfig holds configuration for the chunker.
type ChunkerConfig struct {
	// TargetSize is the target chunk size in tokens (approximate).
	TargetSize int

	// Overlap is the number of tokens to overlap between chunks.
	Overlap int
}

// DefaultChunkerConfig returns sensible defaults for prose documents.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetSize: 512,
		Overlap:    64,
	}
}

// minChunkTokens is the smallest chunk a heading boundary may produce.
const minChunkTokens = 32

// Chunker splits document text into overlapping chunks.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a chunker with the given configuration.
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.TargetSize <= 0 {
		cfg = DefaultChunkerConfig()
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	// Overlap must stay well below the target size or chunking never
	// makes progress.
	if cfg.Overlap >= cfg.TargetSize/2 {
		cfg.Overlap = cfg.TargetSize / 4
	}
	return &Chunker{config: cfg}
}

// Chunk splits text into chunks of roughly TargetSize tokens with
// Overlap tokens carried between adjacent chunks. Markdown is split on
// headings so sections stay together; everything else is split on line
// boundaries.
func (c *Chunker) Chunk(text, ext string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if estimateTokens(text) <= c.config.TargetSize {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "md", "markdown":
		return c.chunkByHeadings(text, lines)
	default:
		return c.chunkByLines(text, lines)
	}
}

// chunkByLines accumulates lines until the target size is reached.
func (c *Chunker) chunkByLines(text string, lines []string) []string {
	var chunks []string
	var current strings.Builder
	var previousOverlap string

	for i, line := range lines {
		current.WriteString(line)
		if i < len(lines)-1 {
			current.WriteString("\n")
		}

		isLastLine := i == len(lines)-1
		if estimateTokens(current.String()) >= c.config.TargetSize || isLastLine {
			content := current.String()
			if strings.TrimSpace(content) != "" {
				chunks = append(chunks, previousOverlap+content)
				previousOverlap = c.extractOverlap(content)
				current.Reset()
			}
		}
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// chunkByHeadings splits markdown at "##" headings, falling back to the
// size limit inside oversized sections.
func (c *Chunker) chunkByHeadings(text string, lines []string) []string {
	var chunks []string
	var current strings.Builder
	var previousOverlap string

	for i, line := range lines {
		isHeading := strings.HasPrefix(strings.TrimSpace(line), "##")
		tokens := estimateTokens(current.String())

		if (isHeading && tokens >= minChunkTokens) || tokens >= c.config.TargetSize {
			content := current.String()
			if strings.TrimSpace(content) != "" {
				chunks = append(chunks, previousOverlap+content)
				previousOverlap = c.extractOverlap(content)
				current.Reset()
			}
		}

		current.WriteString(line)
		if i < len(lines)-1 {
			current.WriteString("\n")
		}
	}

	if content := current.String(); strings.TrimSpace(content) != "" {
		chunks = append(chunks, previousOverlap+content)
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// estimateTokens estimates the token count for text.
// Uses a simple heuristic: ~4 characters per token.
func estimateTokens(text string) int {
	runeCount := utf8.RuneCountInString(text)
	return (runeCount + 3) / 4
}

// extractOverlap extracts approximately Overlap tokens from the end of
// content to prepend to the next chunk.
func (c *Chunker) extractOverlap(content string) string {
	if c.config.Overlap == 0 || content == "" {
		return ""
	}

	overlapChars := c.config.Overlap * 4
	if overlapChars > len(content)/2 {
		overlapChars = len(content) / 2
	}

	startPos := len(content) - overlapChars
	if startPos <= 0 {
		return content
	}

	// Prefer a newline boundary near the overlap point, then a space.
	if pos := strings.LastIndex(content[:startPos+overlapChars/2], "\n"); pos > startPos-overlapChars/4 {
		return content[pos+1:]
	}
	if pos := strings.LastIndex(content[:startPos+overlapChars/2], " "); pos > startPos-overlapChars/4 {
		return content[pos+1:]
	}

	return content[startPos:]
}
