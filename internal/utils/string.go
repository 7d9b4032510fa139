package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var subjectPrefixRegex = regexp.MustCompile(`(?i)^(Re|Fwd|Fw|Aw|Sv)(\[\d+\])?:\s*`)

// NormalizeEmailSubject removes prefixes like Re:, Fwd:, etc. from a subject
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for subjectPrefixRegex.MatchString(subject) {
		subject = subjectPrefixRegex.ReplaceAllString(subject, "")
		subject = strings.TrimSpace(subject)
	}
	return subject
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// TruncateRunes cuts s to at most n runes, appending suffix when it had to cut.
func TruncateRunes(s string, n int, suffix string) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + suffix
}

// Snippet returns about length runes of text around the first occurrence of
// any term, with whitespace collapsed. Terms are matched case-insensitively;
// without a match the snippet starts at the beginning of the text.
func Snippet(text string, terms []string, length int) string {
	if length <= 0 {
		return ""
	}
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= length {
		return string(runes)
	}

	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}
	match := -1
	for _, term := range terms {
		if pos := indexRunes(lower, []rune(strings.ToLower(term))); pos >= 0 && (match < 0 || pos < match) {
			match = pos
		}
	}

	start := 0
	if match > 0 {
		start = match - length/4
	}
	if start < 0 {
		start = 0
	}
	if start > len(runes)-length {
		start = len(runes) - length
	}
	end := start + length

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i <= len(haystack)-len(needle); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
