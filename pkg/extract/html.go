package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"header": true,
	"footer": true,
	"aside":  true,
}

var headingLevels = map[string]int{
	"h1": 1,
	"h2": 2,
	"h3": 3,
	"h4": 4,
}

func extractHTML(_ context.Context, content []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	var sb strings.Builder
	walkHTML(doc, &sb)

	return sb.String(), nil
}

func walkHTML(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if skippedElements[n.Data] {
			return
		}
		if level, ok := headingLevels[n.Data]; ok {
			text := nodeText(n)
			if text != "" {
				sb.WriteString(strings.Repeat("#", level))
				sb.WriteByte(' ')
				sb.WriteString(text)
				sb.WriteString("\n\n")
			}
			return
		}
		switch n.Data {
		case "li":
			text := nodeText(n)
			if text != "" {
				sb.WriteString("- ")
				sb.WriteString(text)
				sb.WriteByte('\n')
			}
			return
		case "table":
			writeMarkdownTable(n, sb)
			return
		case "p":
			text := nodeText(n)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n\n")
			}
			return
		case "ul", "ol":
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walkHTML(c, sb)
			}
			sb.WriteByte('\n')
			return
		case "br":
			sb.WriteByte('\n')
			return
		}
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, sb)
	}
}

// writeMarkdownTable renders an HTML table as a GitHub-flavored markdown
// table: first row becomes the header, followed by a --- separator row
// sized to the column count.
func writeMarkdownTable(table *html.Node, sb *strings.Builder) {
	var rows [][]string
	var collectRows func(n *html.Node)
	collectRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, nodeText(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectRows(c)
		}
	}
	collectRows(table)

	if len(rows) == 0 {
		return
	}

	for i, cells := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", len(cells)))
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')
}

// nodeText returns the concatenated, whitespace-normalized text beneath a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.Join(strings.Fields(sb.String()), " ")
}
