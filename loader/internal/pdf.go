package internal

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFToMarkdown extracts per-page plain text from a local PDF, prefixing
// every page with a "Page N" marker line so the chunker's page strategy
// applies and citations can carry page fragments.
func PDFToMarkdown(path string) (string, error) {
	if err := api.ValidateFile(path, api.LoadConfiguration()); err != nil {
		return "", fmt.Errorf("invalid pdf %s: %w", path, err)
	}

	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			log.Printf("[pdf] skipping page %d of %s: %v", i, filepath.Base(path), err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "Page %d\n\n%s\n\n", i, text)
	}
	return b.String(), nil
}

// CropHeaderFooter writes a copy of the PDF with top and bottom margins
// (in points, 1 pt = 1/72 inch) cropped away, keeping running headers and
// footers out of the extracted text.
func CropHeaderFooter(inputPath, outputPath string, top, bottom float64) error {
	conf := api.LoadConfiguration()
	pages := []string{"1-"}

	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0", top, bottom), types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, pages, box, conf); err != nil {
		return fmt.Errorf("failed to crop pdf: %w", err)
	}
	return nil
}
