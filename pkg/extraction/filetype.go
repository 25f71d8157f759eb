package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FileType is a sniffed or declared upload format.
type FileType struct {
	Ext  string
	MIME string
}

var declaredTypes = map[string]FileType{
	"application/pdf": {"pdf", "application/pdf"},
	"image/jpeg":      {"jpg", "image/jpeg"},
	"image/jpg":       {"jpg", "image/jpeg"},
	"image/png":       {"png", "image/png"},
	"image/gif":       {"gif", "image/gif"},
	"image/webp":      {"webp", "image/webp"},
	"image/base64":    {"png", "image/png"},
}

// SniffFileType detects PNG, JPEG, PDF, GIF and WEBP signatures. It needs at
// least 8 bytes.
func SniffFileType(data []byte) (FileType, bool) {
	if len(data) < 8 {
		return FileType{}, false
	}
	switch {
	case bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FileType{"png", "image/png"}, true
	case bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return FileType{"jpg", "image/jpeg"}, true
	case bytes.Equal(data[:4], []byte("%PDF")):
		return FileType{"pdf", "application/pdf"}, true
	case bytes.Equal(data[:4], []byte("GIF8")):
		return FileType{"gif", "image/gif"}, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FileType{"webp", "image/webp"}, true
	}
	return FileType{}, false
}

// DetectFileType prefers magic bytes and falls back to the declared MIME
// type, then to PNG.
func DetectFileType(data []byte, declared string) FileType {
	if ft, ok := SniffFileType(data); ok {
		return ft
	}
	clean := strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	if ft, ok := declaredTypes[clean]; ok {
		return ft
	}
	return FileType{"png", "image/png"}
}

// PDFText returns the text layer of a PDF. Scanned PDFs yield "".
func PDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
