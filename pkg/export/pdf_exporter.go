package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets as a landscape A4 table. Audit trails carry
// wide rows (timestamps, checksums, free-text reasons), so cells are
// truncated rather than wrapped to keep one entry per line.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const pdfTableWidth = 277.0 // landscape A4 minus margins

// Render creates the document with an optional title line above the table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetMargins(10, 12, 10)
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont("Arial", "I", 8)
		doc.CellFormat(0, 8, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "R", false, 0, "")
	})
	doc.AddPage()

	if title != "" {
		doc.SetFont("Arial", "B", 13)
		doc.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
		doc.Ln(3)
	}

	colWidth := pdfTableWidth / float64(len(data.Headers))

	doc.SetFont("Arial", "B", 9)
	doc.SetFillColor(235, 235, 235)
	for _, h := range data.Headers {
		doc.CellFormat(colWidth, 7, h, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 8)
	for _, cells := range data.Rows {
		for _, value := range data.row(cells) {
			doc.CellFormat(colWidth, 6, clip(doc, value, colWidth), "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// clip shortens a value until it fits the column, marking the cut with an
// ellipsis.
func clip(doc *gofpdf.Fpdf, value string, width float64) string {
	const pad = 2.0
	if doc.GetStringWidth(value) <= width-pad {
		return value
	}
	runes := []rune(value)
	for len(runes) > 1 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if doc.GetStringWidth(candidate) <= width-pad {
			return candidate
		}
	}
	return "..."
}
