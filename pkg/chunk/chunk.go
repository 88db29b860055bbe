// Package chunk splits markdown-flavored text into bounded, retrievable
// units. Heading boundaries are preferred over arbitrary token cuts, and
// markdown tables are never split across chunks.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/arborlabs/arbor/backend/internal/util"
)

const encoder = "cl100k_base"

var (
	headingRe  = regexp.MustCompile(`^#{1,4} `)
	tableRowRe = regexp.MustCompile(`^\s*\|`)
)

// Chunk is one bounded unit of text produced by the chunker. Indices are
// zero-based and assigned in emission order.
type Chunk struct {
	Content     string
	Index       int
	TokenCount  int
	ContentHash string
}

// Chunker splits text into token-bounded chunks.
type Chunker struct {
	enc           *tiktoken.Tiktoken
	maxTokens     int
	overlapTokens int
}

// NewChunkerParams contains configuration for creating a Chunker.
type NewChunkerParams struct {
	MaxTokens     int
	OverlapTokens int
}

// NewChunker creates a chunker backed by the cl100k_base encoding.
func NewChunker(params NewChunkerParams) (*Chunker, error) {
	if params.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", params.MaxTokens)
	}
	if params.OverlapTokens < 0 || params.OverlapTokens >= params.MaxTokens {
		return nil, fmt.Errorf("overlap tokens must be in [0, max), got %d", params.OverlapTokens)
	}

	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}

	return &Chunker{
		enc:           enc,
		maxTokens:     params.MaxTokens,
		overlapTokens: params.OverlapTokens,
	}, nil
}

// Split chunks text at markdown heading boundaries when any are present,
// falling back to fixed token windows with overlap otherwise. Empty or
// whitespace-only input returns no chunks.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if hasHeading(text) {
		return c.headingChunk(text)
	}
	return c.tokenChunk(text)
}

func hasHeading(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if headingRe.MatchString(line) {
			return true
		}
	}
	return false
}

// section is a heading line plus everything until the next heading. Leading
// text before the first heading has an empty heading.
type section struct {
	heading string
	body    string
}

func (c *Chunker) headingChunk(text string) []Chunk {
	var chunks []Chunk

	for _, sec := range splitIntoSections(text) {
		sectionText := sec.body
		if sec.heading != "" {
			sectionText = strings.TrimSpace(sec.heading + "\n\n" + sec.body)
		}
		tokens := c.enc.Encode(sectionText, nil, nil)

		if len(tokens) <= c.maxTokens {
			chunks = appendChunk(chunks, sectionText, len(tokens))
		} else {
			chunks = c.splitOversizedSection(chunks, sec.heading, sec.body)
		}
	}

	return chunks
}

func splitIntoSections(text string) []section {
	var sections []section
	currentHeading := ""
	var currentBody strings.Builder

	flush := func() {
		if currentBody.Len() > 0 || currentHeading != "" {
			sections = append(sections, section{
				heading: currentHeading,
				body:    strings.TrimSpace(currentBody.String()),
			})
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if headingRe.MatchString(line) {
			flush()
			currentHeading = strings.TrimRight(line, " \t\r\n")
			currentBody.Reset()
			continue
		}
		currentBody.WriteString(line)
	}
	flush()

	return sections
}

// splitOversizedSection token-splits a section that exceeds the budget,
// re-prepending the heading to every continuation chunk. Table blocks are
// treated as atomic parts: a table that does not fit the remaining buffer
// flushes the buffer and starts a fresh chunk. A single part larger than
// the budget is force-split.
func (c *Chunker) splitOversizedSection(chunks []Chunk, heading, body string) []Chunk {
	parts := splitPreservingTables(body)

	var headingTokens []int
	if heading != "" {
		headingTokens = c.enc.Encode(heading+"\n\n", nil, nil)
	}
	bufferTokens := append([]int(nil), headingTokens...)

	// A heading at or over the budget would stall the force-split below,
	// so continuations of such a section go out without it.
	carryTokens := headingTokens
	if len(headingTokens) >= c.maxTokens {
		carryTokens = nil
	}
	// prefixLen tracks how many leading tokens of the buffer are the
	// re-prepended heading; a buffer holding only that prefix is empty.
	prefixLen := len(headingTokens)

	for _, part := range parts {
		partTokens := c.enc.Encode(part.text, nil, nil)

		if len(bufferTokens)+len(partTokens) <= c.maxTokens {
			bufferTokens = append(bufferTokens, partTokens...)
			continue
		}

		if len(bufferTokens) > prefixLen {
			chunks = appendChunk(chunks, c.enc.Decode(bufferTokens), len(bufferTokens))
		}

		bufferTokens = append(append([]int(nil), headingTokens...), partTokens...)
		prefixLen = len(headingTokens)

		if part.isTable {
			// Atomicity wins over the size cap: a lone table bigger than
			// the budget goes out as one oversized chunk.
			if len(bufferTokens) > c.maxTokens {
				chunks = appendChunk(chunks, c.enc.Decode(bufferTokens), len(bufferTokens))
				bufferTokens = append([]int(nil), headingTokens...)
			}
			continue
		}

		for len(bufferTokens) > c.maxTokens {
			sliceTokens := bufferTokens[:c.maxTokens]
			chunks = appendChunk(chunks, c.enc.Decode(sliceTokens), len(sliceTokens))
			bufferTokens = append(append([]int(nil), carryTokens...), bufferTokens[c.maxTokens:]...)
			prefixLen = len(carryTokens)
		}
	}

	if len(bufferTokens) > prefixLen {
		chunks = appendChunk(chunks, c.enc.Decode(bufferTokens), len(bufferTokens))
	}

	return chunks
}

// part is a slice of section body text. Markdown table blocks (consecutive
// lines starting with |) are single parts and never merge with prose.
type part struct {
	text    string
	isTable bool
}

func splitPreservingTables(text string) []part {
	var parts []part
	var current strings.Builder
	inTable := false

	flush := func(isTable bool) {
		if current.Len() > 0 {
			parts = append(parts, part{text: current.String(), isTable: isTable})
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		isTableRow := tableRowRe.MatchString(line) && strings.TrimSpace(line) != ""
		if isTableRow {
			if !inTable {
				flush(false)
			}
			current.WriteString(line)
			inTable = true
			continue
		}
		if inTable {
			flush(true)
			inTable = false
		}
		current.WriteString(line)
	}
	flush(inTable)

	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p.text) != "" {
			kept = append(kept, p)
		}
	}
	return kept
}

// tokenChunk slides a fixed window of maxTokens across the token stream,
// advancing by maxTokens-overlapTokens each step.
func (c *Chunker) tokenChunk(text string) []Chunk {
	tokens := c.enc.Encode(text, nil, nil)
	var chunks []Chunk

	step := c.maxTokens - c.overlapTokens
	for start := 0; start < len(tokens); start += step {
		end := min(start+c.maxTokens, len(tokens))
		window := tokens[start:end]
		chunks = appendChunk(chunks, c.enc.Decode(window), len(window))
	}

	return chunks
}

func appendChunk(chunks []Chunk, content string, tokenCount int) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return chunks
	}
	return append(chunks, Chunk{
		Content:     content,
		Index:       len(chunks),
		TokenCount:  tokenCount,
		ContentHash: util.HashContent(content),
	})
}
