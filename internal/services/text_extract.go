package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

// Blob kinds as determined by magic-byte sniffing. Claimed mime types and
// extensions are only consulted when the bytes themselves are ambiguous.
const (
	BlobKindPDF     = "pdf"
	BlobKindDOCX    = "docx"
	BlobKindPPTX    = "pptx"
	BlobKindHTML    = "html"
	BlobKindText    = "text"
	BlobKindImage   = "image"
	BlobKindUnknown = "unknown"
)

// SniffBlobKind determines the true file type from bytes.
func SniffBlobKind(originalName string, mimeType string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if len(data) == 0 {
		return BlobKindUnknown
	}
	if isPDF(data) {
		return BlobKindPDF
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return BlobKindUnknown
		}
		return kind
	}
	if isPNG(data) || isJPEG(data) || isTIFF(data) {
		return BlobKindImage
	}
	if looksLikeHTML(data) || mt == "text/html" || ext == ".html" || ext == ".htm" {
		return BlobKindHTML
	}
	if isProbablyText(data) || mt == "text/plain" || ext == ".txt" || ext == ".md" || ext == ".markdown" {
		return BlobKindText
	}
	return BlobKindUnknown
}

// ExtractNativeText extracts text for the kinds the process handles without
// an external document processor: DOCX, PPTX, HTML, plain text.
func ExtractNativeText(kind string, originalName string, data []byte) (string, error) {
	switch kind {
	case BlobKindDOCX:
		return extractDOCX(data)
	case BlobKindPPTX:
		return extractPPTX(data)
	case BlobKindHTML:
		return extractHTML(string(data)), nil
	case BlobKindText:
		return collapseWhitespace(string(data)), nil
	default:
		return "", fmt.Errorf("no native extractor for kind=%s name=%s head=%s", kind, originalName, firstBytesHex(data, 16))
	}
}

// ------------------------
// Sniff helpers
// ------------------------

func isPDF(b []byte) bool {
	// PDF starts with "%PDF-"
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	// ZIP local file header: PK\x03\x04
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func isPNG(b []byte) bool {
	return len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
}

func isJPEG(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF
}

func isTIFF(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return (b[0] == 'I' && b[1] == 'I' && b[2] == 0x2A && b[3] == 0x00) ||
		(b[0] == 'M' && b[1] == 'M' && b[2] == 0x00 && b[3] == 0x2A)
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(string(b[:minInt(len(b), 2048)]))
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<!doctype") {
		return true
	}
	if strings.HasPrefix(trimmed, "<html") {
		return true
	}
	// also catch saved error pages
	if strings.Contains(s, "<html") && strings.Contains(s, "</html>") {
		return true
	}
	return false
}

func isProbablyText(b []byte) bool {
	// Heuristic: if most bytes are printable / whitespace and no NULs.
	sample := b[:minInt(len(b), 4096)]
	if len(sample) == 0 {
		return false
	}
	nul := 0
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			nul++
			continue
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	if nul > 0 {
		return false
	}
	// allow some binary noise
	return float64(good)/float64(len(sample)) > 0.9
}

func firstBytesHex(b []byte, n int) string {
	n = minInt(len(b), n)
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, hexdigits[b[i]>>4], hexdigits[b[i]&0x0f])
	}
	return string(out)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ------------------------
// Extractors
// ------------------------

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	hasWord := false
	hasPpt := false
	for _, f := range zr.File {
		name := f.Name
		if strings.HasPrefix(name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return BlobKindDOCX, nil
	case hasPpt && !hasWord:
		return BlobKindPPTX, nil
	default:
		return BlobKindUnknown, fmt.Errorf("zip does not look like docx or pptx")
	}
}

func extractDOCX(zipBytes []byte) (string, error) {
	// DOCX: extract from word/document.xml, gather <w:t>
	return extractOpenXMLText(zipBytes, []string{"word/document.xml"}, []xmlTag{{Local: "t"}})
}

func extractPPTX(zipBytes []byte) (string, error) {
	// PPTX: scan ppt/slides/*.xml, gather <a:t>
	return extractOpenXMLTextByPrefix(zipBytes, "ppt/slides/", ".xml", []xmlTag{{Local: "t"}})
}

type xmlTag struct{ Local string }

func extractOpenXMLText(zipBytes []byte, files []string, tags []xmlTag) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, target := range files {
		f := findZipFile(zr, target)
		if f == nil {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out.WriteString(extractTextFromXML(b, tags))
		out.WriteString("\n")
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from openxml")
	}
	return s, nil
}

func extractOpenXMLTextByPrefix(zipBytes []byte, prefix string, suffix string, tags []xmlTag) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, prefix) && strings.HasSuffix(f.Name, suffix) {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			b, _ := io.ReadAll(rc)
			_ = rc.Close()
			out.WriteString(extractTextFromXML(b, tags))
			out.WriteString("\n")
		}
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from openxml prefix %s", prefix)
	}
	return s, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func extractTextFromXML(xmlBytes []byte, tags []xmlTag) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		local := se.Name.Local
		want := false
		for _, t := range tags {
			if t.Local == local {
				want = true
				break
			}
		}
		if !want {
			continue
		}
		var v string
		_ = dec.DecodeElement(&v, &se)
		if v != "" {
			out.WriteString(v)
			out.WriteString(" ")
		}
	}
	return out.String()
}

func extractHTML(s string) string {
	re := regexp.MustCompile(`(?s)<[^>]*>`)
	s = re.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// SplitIntoChunks cuts extracted text into roughly maxChars-sized pieces on
// word boundaries. Order is the chunk seq.
func SplitIntoChunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 1200
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}
	words := strings.Fields(text)
	var chunks []string
	var b strings.Builder
	for _, w := range words {
		if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// EstimateTokens is the usual chars/4 heuristic, good enough for budgeting
// prompt context.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
