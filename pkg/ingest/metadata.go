package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

const (
	metadataTokenLimit   = 2000
	fallbackTitleLength  = 200
	metadataTokenEncoder = "cl100k_base"
)

type documentMetadata struct {
	Title        string   `json:"title" jsonschema_description:"Concise title for the document"`
	Summary      string   `json:"summary" jsonschema_description:"Two to three sentence summary of the document"`
	Topics       []string `json:"topics" jsonschema_description:"Three to five topic keywords"`
	DocumentDate string   `json:"document_date" jsonschema_description:"Date the document was authored in YYYY-MM-DD format, or empty if unknown"`
}

// extractMetadata asks the model for a title, summary, topics and date
// based on the start of the document. Failures fall back to the first
// line of text as the title so ingestion never stalls on metadata.
func extractMetadata(ctx context.Context, client ai.Client, text string) documentMetadata {
	var result documentMetadata
	err := client.GenerateCompletionWithFormat(
		ctx,
		"document_metadata",
		"Title, summary, topics and date for a document",
		ai.DocumentMetadataPrompt()+"\n\n"+truncateTokens(text, metadataTokenLimit),
		&result,
	)
	if err != nil {
		logger.Warn("metadata extraction failed", "error", err)
		return documentMetadata{Title: fallbackTitle(text)}
	}
	result.Title = strings.TrimSpace(result.Title)
	if result.Title == "" {
		result.Title = fallbackTitle(text)
	}
	return result
}

func (m documentMetadata) date() *time.Time {
	raw := strings.TrimSpace(m.DocumentDate)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func fallbackTitle(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	runes := []rune(line)
	if len(runes) > fallbackTitleLength {
		line = string(runes[:fallbackTitleLength])
	}
	return line
}

func truncateTokens(text string, limit int) string {
	enc, err := tiktoken.GetEncoding(metadataTokenEncoder)
	if err != nil {
		// Without an encoder, approximate with a generous char cap.
		runes := []rune(text)
		if len(runes) > limit*4 {
			return string(runes[:limit*4])
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return enc.Decode(tokens[:limit])
}
