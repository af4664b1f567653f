package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Extractor pulls text out of uploaded supporting documents. PDFs go through
// mupdf; plain text files are read directly. Implements
// port.DocumentExtractor.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a new document extractor
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract returns the document's text and page count.
func (e *Extractor) Extract(ctx context.Context, path string) (string, int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", 0, fmt.Errorf("document not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return e.extractPDF(ctx, path)
	case ".txt", ".csv":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", 0, fmt.Errorf("failed to read document: %w", err)
		}
		return string(content), 1, nil
	default:
		return "", 0, fmt.Errorf("unsupported document type: %s", ext)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (string, int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	e.logger.Debug("Extracting PDF text", zap.String("path", path), zap.Int("pages", pageCount))

	var sb strings.Builder
	extracted := 0
	for page := 0; page < pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		text, err := doc.Text(page)
		if err != nil {
			e.logger.Warn("Failed to extract page text",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		extracted++
	}

	if extracted == 0 && pageCount > 0 {
		return "", pageCount, fmt.Errorf("no text extracted from %d page(s)", pageCount)
	}
	return sb.String(), pageCount, nil
}
