package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
)

// ErrUnsupported is returned for files whose text can't be extracted.
var ErrUnsupported = errors.New("extract: unsupported file type")

type Kind string

const (
	KindPDF  Kind = "pdf"
	KindHTML Kind = "html"
	KindText Kind = "text"
	KindNone Kind = ""
)

// Detect guesses the kind of a file from its content type and name.
func Detect(name, contentType string) Kind {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf":
		return KindPDF
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return KindHTML
	case strings.HasPrefix(mediaType, "text/"):
		return KindText
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	case ".txt", ".md", ".csv", ".json":
		return KindText
	}
	return KindNone
}

// Text extracts the readable text of an uploaded file.
func Text(name, contentType string, data []byte) (string, error) {
	switch Detect(name, contentType) {
	case KindPDF:
		return PDF(data)
	case KindHTML:
		return HTML(data, contentType)
	case KindText:
		return Plain(data, contentType)
	default:
		return "", ErrUnsupported
	}
}

// PDF returns the plain text of a PDF document.
func PDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: couldn't open pdf: %w", err)
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: couldn't get pdf text: %w", err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("extract: couldn't read pdf text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// HTML converts an HTML document to markdown, dropping scripts and styles.
func HTML(data []byte, contentType string) (string, error) {
	rd, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("extract: couldn't detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(rd)
	if err != nil {
		return "", fmt.Errorf("extract: couldn't parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("extract: couldn't render html: %w", err)
	}
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		// Fall back to the condensed text of the document
		return condense(doc.Text()), nil
	}
	return strings.TrimSpace(markdown), nil
}

// Plain decodes a text file to UTF-8.
func Plain(data []byte, contentType string) (string, error) {
	rd, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("extract: couldn't detect charset: %w", err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("extract: couldn't decode text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func condense(text string) string {
	text = strings.TrimSpace(text)
	for _, c := range []string{"\t", "\n", "\r"} {
		text = strings.ReplaceAll(text, c, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}
