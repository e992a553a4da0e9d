package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/poiesic/corpora/core"
	"github.com/xuri/excelize/v2"
)

// Content types with local extractors.
const (
	TypePDF  = "application/pdf"
	TypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	TypeHTML = "text/html"
	TypeText = "text/plain"
)

// MaxTableRows caps the rows kept per spreadsheet table.
const MaxTableRows = 200

// ErrEmptyFile is returned for zero-length input.
var ErrEmptyFile = errors.New("file is empty")

// Result is what local extraction found in a file.
type Result struct {
	ContentType string
	PageCount   int
	Title       string
	Text        string
	Tables      []core.ElementPayload
}

// Extract runs every extractor that applies to the file's content type.
func Extract(filename string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	res := &Result{ContentType: ContentType(filename, data)}

	var err error
	switch res.ContentType {
	case TypePDF:
		res.PageCount, err = PDFPageCount(data)
	case TypeXLSX:
		res.Tables, err = Spreadsheet(data)
	case TypeHTML:
		res.Title, res.Text, err = HTML(data)
	case TypeText:
		res.Text = string(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filename, err)
	}
	return res, nil
}

var knownTypes = map[string]string{
	".pdf":  TypePDF,
	".xlsx": TypeXLSX,
	".html": TypeHTML,
	".htm":  TypeHTML,
	".txt":  TypeText,
	".md":   TypeText,
}

// ContentType guesses the MIME type from the extension, falling back to
// sniffing the first bytes. Parameters such as charset are dropped.
func ContentType(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := knownTypes[ext]; ok {
		return ct
	}
	ct := ""
	if ext != "" {
		ct = mime.TypeByExtension(ext)
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	if base, _, err := mime.ParseMediaType(ct); err == nil {
		return base
	}
	return ct
}

// PDFPageCount validates a PDF and returns its page count.
func PDFPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}

// Spreadsheet returns one table per non-empty sheet.
func Spreadsheet(data []byte) ([]core.ElementPayload, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tables []core.ElementPayload
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		rows = trimRows(rows)
		if len(rows) == 0 {
			continue
		}
		if len(rows) > MaxTableRows {
			rows = rows[:MaxTableRows]
		}
		tables = append(tables, core.ElementPayload{Title: sheet, Rows: rows})
	}
	return tables, nil
}

func trimRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}

// HTML returns the page title and the readable text of headings, paragraphs
// and list items, preferring main or article content when present.
func HTML(data []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style, nav, footer").Remove()
	title = strings.TrimSpace(doc.Find("title").First().Text())

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	var parts []string
	sel.Find("h1, h2, h3, h4, p, li, td, th").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	return title, strings.Join(parts, "\n"), nil
}
