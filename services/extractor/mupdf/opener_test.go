package mupdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailarchive/internal/testutil"
)

func TestOpen_TextAndRender(t *testing.T) {
	doc, err := NewOpener().Open(testutil.MinimalPDF)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 1, doc.NumPage())

	text, err := doc.Text(0)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(text), "invoice 1042")

	png, err := doc.ImagePNG(0, 72)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestOpen_Garbage(t *testing.T) {
	_, err := NewOpener().Open([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
