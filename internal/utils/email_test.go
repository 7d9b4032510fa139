package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomainFromEmail("Billing <billing@Example.com>"))
	assert.Equal(t, "a.io", ExtractDomainFromEmail("x@a.io"))
	assert.Equal(t, "", ExtractDomainFromEmail("not-an-email"))
	assert.Equal(t, "", ExtractDomainFromEmail(""))
}

func TestContainsAnyFold(t *testing.T) {
	assert.True(t, ContainsAnyFold("Your INVOICE is ready", []string{"invoice"}))
	assert.False(t, ContainsAnyFold("hello", []string{"", "bye"}))
}
