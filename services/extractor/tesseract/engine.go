// Package tesseract runs OCR through the Tesseract C library.
package tesseract

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"

	"github.com/customeros/mailarchive/interfaces"
)

type engine struct {
	language string
}

func NewEngine(language string) interfaces.OCREngine {
	if language == "" {
		language = "eng"
	}
	return &engine{language: language}
}

type ocrResult struct {
	text string
	err  error
}

// Recognize returns early when ctx is done; the native call finishes in the
// background and its client is closed there.
func (e *engine) Recognize(ctx context.Context, image []byte) (string, error) {
	done := make(chan ocrResult, 1)
	go func() {
		text, err := e.recognize(image)
		done <- ocrResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

func (e *engine) recognize(image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(e.language, "+")...); err != nil {
		return "", errors.Wrap(err, "set ocr language")
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", errors.Wrap(err, "load ocr image")
	}
	text, err := client.Text()
	if err != nil {
		return "", errors.Wrap(err, "ocr")
	}
	return text, nil
}
