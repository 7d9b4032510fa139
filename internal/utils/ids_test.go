package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("doc", 16)
	assert.True(t, strings.HasPrefix(id, "doc_"))
	assert.Len(t, id, len("doc_")+16)
	assert.NotEqual(t, id, GenerateNanoIDWithPrefix("doc", 16))
}

func TestGenerateMessageID_Stable(t *testing.T) {
	a := GenerateMessageID("mailarchive.local", "acct|INBOX|42")
	b := GenerateMessageID("mailarchive.local", "acct|INBOX|42")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasSuffix(a, "@mailarchive.local>"))
	assert.NotEqual(t, a, GenerateMessageID("mailarchive.local", "acct|INBOX|43"))
}
