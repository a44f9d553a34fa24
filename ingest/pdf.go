package ingest

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// ExtractTextPDF returns the embedded text layer of a PDF, pages joined
// with newlines. A PDF with no text layer yields "".
func ExtractTextPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", ErrTextExtraction, err)
	}
	defer f.Close()

	var pages []string
	for n := 1; n <= r.NumPage(); n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// RenderPDFToImages rasterizes up to maxPages pages into destination as
// page_N.png (1-based), for OCR of scanned documents.
func RenderPDFToImages(path, destination string, maxPages int) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering pdf: %v", ErrTextExtraction, err)
	}
	defer doc.Close()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating render dir: %v", ErrTextExtraction, err)
	}

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var out []string
	for n := 0; n < pages; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return out, fmt.Errorf("%w: rasterizing page %d: %v", ErrTextExtraction, n+1, err)
		}
		target := filepath.Join(destination, fmt.Sprintf("page_%d.png", n+1))
		f, err := os.Create(target)
		if err != nil {
			return out, fmt.Errorf("%w: creating page image: %v", ErrTextExtraction, err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			os.Remove(target)
			return out, fmt.Errorf("%w: encoding page image: %v", ErrTextExtraction, err)
		}
		if err := f.Close(); err != nil {
			return out, fmt.Errorf("%w: closing page image: %v", ErrTextExtraction, err)
		}
		out = append(out, target)
	}
	return out, nil
}
