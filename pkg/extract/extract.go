// Package extract converts raw document bytes into a single markdown-flavored
// text representation. Headings, lists, and tables are the common structural
// language; everything downstream (chunking, embedding, graph extraction)
// operates on this representation.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when no extractor is registered for
	// the declared file type.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMalformedInput is returned when the bytes cannot be parsed as the
	// declared file type.
	ErrMalformedInput = errors.New("malformed input")
)

type extractFunc func(ctx context.Context, content []byte) (string, error)

var extractors = map[string]extractFunc{
	"txt":      extractPlainText,
	"text":     extractPlainText,
	"md":       extractPlainText,
	"markdown": extractPlainText,
	"csv":      extractCSV,
	"html":     extractHTML,
	"htm":      extractHTML,
	"docx":     extractDocx,
	"pdf":      extractPDF,
}

// Extract converts document bytes into cleaned markdown text.
// The file type is matched case-insensitively and without a leading dot.
func Extract(ctx context.Context, content []byte, fileType string) (string, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
	fn, ok := extractors[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileType)
	}

	text, err := fn(ctx, content)
	if err != nil {
		return "", err
	}

	return CleanText(text), nil
}

// Supported reports whether an extractor is registered for the file type.
func Supported(fileType string) bool {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
	_, ok := extractors[key]
	return ok
}

func extractPlainText(_ context.Context, content []byte) (string, error) {
	return string(content), nil
}
