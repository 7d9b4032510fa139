// Package mupdf opens PDFs with MuPDF through go-fitz.
package mupdf

import (
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"

	"github.com/customeros/mailarchive/interfaces"
)

type opener struct{}

func NewOpener() interfaces.PDFOpener {
	return opener{}
}

func (opener) Open(data []byte) (interfaces.PDFDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	return &document{doc: doc}, nil
}

// document guards the MuPDF context, which is not safe for concurrent use.
type document struct {
	mu  sync.Mutex
	doc *fitz.Document
}

func (d *document) NumPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

func (d *document) Text(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Text(page)
}

func (d *document) ImagePNG(page int, dpi float64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.ImagePNG(page, dpi)
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
