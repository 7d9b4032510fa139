package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	assert.Equal(t, "Invoice 42", NormalizeEmailSubject("Re: Fwd: Invoice 42"))
	assert.Equal(t, "Invoice", NormalizeEmailSubject("  RE[2]: Invoice "))
	assert.Equal(t, "", NormalizeEmailSubject(""))
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID(" <abc@example.com> "))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncateRunes("héllo", 10, "..."))
	assert.Equal(t, "hé...", TruncateRunes("héllo", 2, "..."))
	assert.Equal(t, "", TruncateRunes("abc", 0, "..."))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", Snippet("short   text", []string{"text"}, 50))
	assert.Equal(t, "", Snippet("anything", nil, 0))

	text := strings.Repeat("filler ", 40) + "Total Due 120 EUR " + strings.Repeat("tail ", 40)
	snippet := Snippet(text, []string{"total"}, 40)
	assert.Contains(t, snippet, "Total Due")
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))

	head := Snippet(text, []string{"missing"}, 20)
	assert.True(t, strings.HasPrefix(head, "filler"))
	assert.True(t, strings.HasSuffix(head, "..."))
}

func TestSnippet_RuneSafe(t *testing.T) {
	text := strings.Repeat("ä", 30) + " Rechnung " + strings.Repeat("ö", 30)
	snippet := Snippet(text, []string{"rechnung"}, 20)
	assert.Contains(t, snippet, "Rechnung")
	assert.True(t, utf8.ValidString(snippet))
}
