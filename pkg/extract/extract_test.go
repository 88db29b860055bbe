package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := Extract(context.Background(), []byte("data"), "xlsx")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractPlainText(t *testing.T) {
	tests := []struct {
		name     string
		fileType string
		input    string
		want     string
	}{
		{
			name:     "txt passthrough",
			fileType: "txt",
			input:    "hello world",
			want:     "hello world",
		},
		{
			name:     "markdown passthrough",
			fileType: "md",
			input:    "# Title\n\nBody text",
			want:     "# Title\n\nBody text",
		},
		{
			name:     "uppercase extension with dot",
			fileType: ".TXT",
			input:    "hello",
			want:     "hello",
		},
		{
			name:     "crlf normalized",
			fileType: "txt",
			input:    "line one\r\nline two",
			want:     "line one\nline two",
		},
		{
			name:     "blank lines collapsed",
			fileType: "txt",
			input:    "a\n\n\n\n\nb",
			want:     "a\n\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(context.Background(), []byte(tt.input), tt.fileType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "control characters stripped",
			input: "he\x01llo\x7f",
			want:  "hello",
		},
		{
			name:  "tabs and newlines kept",
			input: "a\tb\nc",
			want:  "a b\nc",
		},
		{
			name:  "space runs collapsed",
			input: "a     b",
			want:  "a b",
		},
		{
			name:  "trailing whitespace trimmed",
			input: "  hello  \n",
			want:  "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.input)
			if got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "headings become markdown",
			input: "<html><body><h1>Top</h1><h2>Sub</h2><p>Body</p></body></html>",
			want:  "# Top\n\n## Sub\n\nBody",
		},
		{
			name:  "list items prefixed",
			input: "<ul><li>one</li><li>two</li></ul>",
			want:  "- one\n- two",
		},
		{
			name:  "script and nav stripped",
			input: "<body><nav>menu</nav><script>var x=1;</script><p>content</p></body>",
			want:  "content",
		},
		{
			name:  "aside and footer stripped",
			input: "<body><p>keep</p><aside>side</aside><footer>foot</footer></body>",
			want:  "keep",
		},
		{
			name:  "unrecognized element falls back to inner text",
			input: "<body><blockquote>quoted words</blockquote></body>",
			want:  "quoted words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(context.Background(), []byte(tt.input), "html")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractHTMLTable(t *testing.T) {
	input := `<table>
		<tr><th>Name</th><th>Age</th></tr>
		<tr><td>Ada</td><td>36</td></tr>
		<tr><td>Alan</td><td>41</td></tr>
	</table>`

	got, err := Extract(context.Background(), []byte(input), "html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "| Name | Age |\n| --- | --- |\n| Ada | 36 |\n| Alan | 41 |"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseCSV(t *testing.T) {
	t.Run("valid rows", func(t *testing.T) {
		got, err := ParseCSV([]byte("a,b,c\n1,2,3\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "a,b,c\n1,2,3\n"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("empty rows skipped", func(t *testing.T) {
		got, err := ParseCSV([]byte("a,b\n,\n1,2\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "a,b\n1,2\n"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("fields quoted when needed", func(t *testing.T) {
		got, err := ParseCSV([]byte("a,b\n\"x,y\",2\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "a,b\n\"x,y\",2\n"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ParseCSV([]byte(""))
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("err = %v, want ErrMalformedInput", err)
		}
	})
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	t.Run("headings and paragraphs", func(t *testing.T) {
		doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Title</w:t></w:r></w:p>
    <w:p><w:r><w:t>Some body text.</w:t></w:r></w:p>
    <w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Section</w:t></w:r></w:p>
  </w:body>
</w:document>`

		got, err := Extract(context.Background(), buildDocx(t, doc), "docx")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "# Title\n\nSome body text.\n\n## Section"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("table rendered as markdown", func(t *testing.T) {
		doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>H1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>H2</w:t></w:r></w:p></w:tc></w:tr>
      <w:tr><w:tc><w:p><w:r><w:t>a</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>b</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`

		got, err := Extract(context.Background(), buildDocx(t, doc), "docx")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "| H1 | H2 |\n| --- | --- |\n| a | b |"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("not a zip", func(t *testing.T) {
		_, err := Extract(context.Background(), []byte("plain bytes"), "docx")
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("err = %v, want ErrMalformedInput", err)
		}
	})

	t.Run("tracked deletions skipped", func(t *testing.T) {
		doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>kept</w:t></w:r><w:del><w:r><w:t>removed</w:t></w:r></w:del></w:p>
  </w:body>
</w:document>`

		got, err := Extract(context.Background(), buildDocx(t, doc), "docx")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(got, "removed") {
			t.Errorf("deleted text leaked into output: %q", got)
		}
		if got != "kept" {
			t.Errorf("got %q, want %q", got, "kept")
		}
	})
}

func TestHeadingStyleLevel(t *testing.T) {
	tests := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"Heading2", 2},
		{"Heading4", 4},
		{"Heading9", 4},
		{"heading3", 3},
		{"Normal", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			if got := headingStyleLevel(tt.style); got != tt.want {
				t.Errorf("headingStyleLevel(%q) = %d, want %d", tt.style, got, tt.want)
			}
		})
	}
}
