package services

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const docxDocumentXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`

const pptxSlideXML = `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <a:t>Slide title</a:t>
    <a:t>Bullet one</a:t>
  </p:spTree></p:cSld>
</p:sld>`

func TestSniffBlobKind(t *testing.T) {
	docx := buildZip(t, map[string]string{"word/document.xml": docxDocumentXML})
	pptx := buildZip(t, map[string]string{"ppt/slides/slide1.xml": pptxSlideXML})
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

	tests := []struct {
		name     string
		fileName string
		mime     string
		data     []byte
		want     string
	}{
		{"pdf magic", "report.pdf", "application/pdf", []byte("%PDF-1.7 rest"), BlobKindPDF},
		{"pdf magic beats wrong mime", "report.bin", "text/plain", []byte("%PDF-1.4"), BlobKindPDF},
		{"docx zip", "notes.docx", "", docx, BlobKindDOCX},
		{"pptx zip", "deck.pptx", "", pptx, BlobKindPPTX},
		{"png image", "scan.png", "", png, BlobKindImage},
		{"jpeg image", "photo.jpg", "", []byte{0xFF, 0xD8, 0xFF, 0xE0}, BlobKindImage},
		{"html doctype", "page.html", "", []byte("<!DOCTYPE html><html><body>hi</body></html>"), BlobKindHTML},
		{"plain text", "readme.txt", "text/plain", []byte("just some words\n"), BlobKindText},
		{"empty", "x", "", nil, BlobKindUnknown},
		{"binary noise", "blob.bin", "", []byte{0x00, 0x01, 0x02, 0x03, 0x04}, BlobKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SniffBlobKind(tt.fileName, tt.mime, tt.data)
			if got != tt.want {
				t.Errorf("SniffBlobKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractNativeTextDOCX(t *testing.T) {
	docx := buildZip(t, map[string]string{"word/document.xml": docxDocumentXML})
	text, err := ExtractNativeText(BlobKindDOCX, "notes.docx", docx)
	if err != nil {
		t.Fatalf("ExtractNativeText: %v", err)
	}
	for _, want := range []string{"Hello", "world", "Second paragraph"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q: %q", want, text)
		}
	}
}

func TestExtractNativeTextPPTX(t *testing.T) {
	pptx := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": pptxSlideXML,
		"ppt/theme/theme1.xml":  `<a:theme xmlns:a="x"><a:t>theme noise</a:t></a:theme>`,
	})
	text, err := ExtractNativeText(BlobKindPPTX, "deck.pptx", pptx)
	if err != nil {
		t.Fatalf("ExtractNativeText: %v", err)
	}
	if !strings.Contains(text, "Slide title") || !strings.Contains(text, "Bullet one") {
		t.Errorf("slide text missing: %q", text)
	}
	if strings.Contains(text, "theme noise") {
		t.Errorf("non-slide xml leaked into text: %q", text)
	}
}

func TestExtractNativeTextHTML(t *testing.T) {
	html := `<html><head><title>T</title></head><body><p>First&nbsp;part</p><div>and &amp; second</div></body></html>`
	text, err := ExtractNativeText(BlobKindHTML, "page.html", []byte(html))
	if err != nil {
		t.Fatalf("ExtractNativeText: %v", err)
	}
	if strings.Contains(text, "<") {
		t.Errorf("tags survived strip: %q", text)
	}
	if !strings.Contains(text, "First part") || !strings.Contains(text, "and & second") {
		t.Errorf("entities not decoded: %q", text)
	}
}

func TestExtractNativeTextUnknownKind(t *testing.T) {
	if _, err := ExtractNativeText(BlobKindPDF, "a.pdf", []byte("%PDF-")); err == nil {
		t.Fatal("expected error for kind without native extractor")
	}
}

func TestSplitIntoChunks(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		got := SplitIntoChunks("hello world", 1200)
		if len(got) != 1 || got[0] != "hello world" {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("empty text yields nothing", func(t *testing.T) {
		if got := SplitIntoChunks("   ", 1200); got != nil {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("long text splits on word boundaries", func(t *testing.T) {
		words := make([]string, 0, 400)
		for i := 0; i < 400; i++ {
			words = append(words, "alpha")
		}
		text := strings.Join(words, " ")
		chunks := SplitIntoChunks(text, 100)
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		var total int
		for i, ch := range chunks {
			if len(ch) > 100 {
				t.Errorf("chunk %d exceeds max: %d chars", i, len(ch))
			}
			if strings.HasPrefix(ch, " ") || strings.HasSuffix(ch, " ") {
				t.Errorf("chunk %d has surrounding whitespace", i)
			}
			total += len(strings.Fields(ch))
		}
		if total != 400 {
			t.Errorf("words lost in chunking: got %d, want 400", total)
		}
	})

	t.Run("non-positive max falls back to default", func(t *testing.T) {
		got := SplitIntoChunks("short", 0)
		if len(got) != 1 {
			t.Fatalf("got %v", got)
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty = %d, want 0", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("abcd = %d, want 1", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("abcde = %d, want 2", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("  a\n\n b\t\tc  ")
	if got != "a b c" {
		t.Errorf("got %q", got)
	}
}
