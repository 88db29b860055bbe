package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reSpacesTabs  = regexp.MustCompile(`[ \t]+`)
	reBlankLines  = regexp.MustCompile(`\n{3,}`)
	reTrailingWSP = regexp.MustCompile(`[ \t]+\n`)
)

// CleanText normalizes extracted text: CRLF to LF, control characters
// stripped, runs of spaces and tabs collapsed per line, three or more
// consecutive blank lines collapsed to one blank line, and the whole
// string trimmed.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			sb.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		sb.WriteRune(r)
	}
	text = sb.String()

	text = reSpacesTabs.ReplaceAllString(text, " ")
	text = reTrailingWSP.ReplaceAllString(text, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
