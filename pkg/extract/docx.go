package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// document.xml larger than this is rejected rather than decompressed.
const docXMLMax = 50 << 20

func extractDocx(_ context.Context, content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to open docx: %v", ErrMalformedInput, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: document.xml not found in docx", ErrMalformedInput)
	}
	if docFile.UncompressedSize64 > docXMLMax {
		return "", fmt.Errorf("%w: document.xml too large: %d bytes",
			ErrMalformedInput, docFile.UncompressedSize64)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open document.xml: %v", ErrMalformedInput, err)
	}
	defer rc.Close()

	text, err := walkDocumentXML(io.LimitReader(rc, int64(docXMLMax)))
	if err != nil {
		return "", err
	}

	return text, nil
}

// walkDocumentXML streams the body of word/document.xml in document order,
// so interleaved paragraphs and tables come out in their original sequence.
// Named heading styles become markdown headings and tables become GFM tables.
func walkDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var sb strings.Builder

	var (
		inText    bool
		delDepth  int
		paraStyle string
		paraBuf   strings.Builder
		insideTbl bool
		cellBuf   strings.Builder
		rowCells  []string
		tableRows [][]string
	)

	flushParagraph := func() {
		text := strings.TrimSpace(paraBuf.String())
		paraBuf.Reset()
		style := paraStyle
		paraStyle = ""
		if text == "" {
			return
		}
		if level := headingStyleLevel(style); level > 0 {
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	flushTable := func() {
		if len(tableRows) == 0 {
			return
		}
		for i, cells := range tableRows {
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
		tableRows = nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to parse document.xml: %v", ErrMalformedInput, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "del":
				delDepth++
			case "t":
				inText = true
			case "pStyle":
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						paraStyle = attr.Value
					}
				}
			case "tab":
				if delDepth == 0 {
					paraBuf.WriteByte(' ')
				}
			case "br", "cr":
				if delDepth == 0 {
					paraBuf.WriteByte('\n')
				}
			case "noBreakHyphen":
				if delDepth == 0 {
					paraBuf.WriteRune('-')
				}
			case "tbl":
				insideTbl = true
			case "tr":
				rowCells = nil
			case "tc":
				cellBuf.Reset()
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if delDepth != 0 {
					break
				}
				if insideTbl {
					if cellBuf.Len() > 0 {
						cellBuf.WriteByte(' ')
					}
					cellBuf.WriteString(strings.TrimSpace(paraBuf.String()))
					paraBuf.Reset()
					paraStyle = ""
					break
				}
				flushParagraph()
			case "tc":
				if delDepth == 0 {
					rowCells = append(rowCells, strings.TrimSpace(cellBuf.String()))
				}
			case "tr":
				if delDepth == 0 && len(rowCells) > 0 {
					tableRows = append(tableRows, rowCells)
				}
			case "tbl":
				insideTbl = false
				if delDepth == 0 {
					flushTable()
				}
			case "del":
				if delDepth > 0 {
					delDepth--
				}
			}

		case xml.CharData:
			if delDepth != 0 || !inText {
				continue
			}
			paraBuf.WriteString(string([]byte(t)))
		}
	}
	flushParagraph()

	return sb.String(), nil
}

// headingStyleLevel maps DOCX paragraph style ids like "Heading1" to a
// markdown heading level between 1 and 4. Unknown styles return 0.
func headingStyleLevel(style string) int {
	s := strings.ToLower(style)
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(s, "heading")))
	if err != nil || n < 1 {
		return 0
	}
	if n > 4 {
		n = 4
	}
	return n
}
