package documents

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/utils"
)

const (
	unnamedSegment = "unnamed"
	unknownDate    = "unknown_date"
	noSubject      = "no_subject"
	unknownSender  = "unknown_sender"
	unknownAccount = "unknown_account"
)

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)
	whitespace   = regexp.MustCompile(`\s+`)
	tokenPattern = regexp.MustCompile(`\{[^{}]*\}`)
)

// SanitizeSegment makes s safe as a single path component: separators,
// reserved characters and whitespace become underscores, leading and
// trailing dots and underscores are stripped, and the result is capped at
// maxLen runes. An empty result becomes "unnamed".
func SanitizeSegment(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	s = illegalChars.ReplaceAllString(s, "_")
	s = whitespace.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimRight(string([]rune(s)[:maxLen]), "._")
	}
	if s == "" {
		return unnamedSegment
	}
	return s
}

// SanitizeFilename sanitizes the stem and extension separately so the
// extension survives truncation.
func SanitizeFilename(name string, maxLen int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	ext = strings.ToLower(illegalChars.ReplaceAllString(whitespace.ReplaceAllString(ext, ""), ""))
	if len(ext) > 16 || ext == "." {
		ext = ""
	}
	stemMax := maxLen - utf8.RuneCountInString(ext)
	if stemMax < 1 {
		stemMax = 1
	}
	return SanitizeSegment(stem, stemMax) + ext
}

type pathTokens struct {
	email   string
	date    string
	year    string
	month   string
	sender  string
	subject string
}

func tokensFor(email *models.Email, account *models.Account, dateFormat string) pathTokens {
	t := pathTokens{
		email:   unknownAccount,
		date:    unknownDate,
		year:    unknownDate,
		month:   unknownDate,
		sender:  unknownSender,
		subject: noSubject,
	}
	if account != nil && account.Email != "" {
		t.email = cleanAddress(account.Email)
	}
	if email == nil {
		return t
	}
	if email.SentAt != nil && !email.SentAt.IsZero() {
		sent := email.SentAt.UTC()
		t.date = sent.Format(dateFormat)
		t.year = sent.Format("2006")
		t.month = sent.Format("01")
	}
	if email.FromAddress != "" {
		t.sender = cleanAddress(email.FromAddress)
	} else if email.FromName != "" {
		t.sender = email.FromName
	}
	if subject := utils.NormalizeEmailSubject(email.Subject); subject != "" {
		t.subject = subject
	}
	return t
}

func cleanAddress(address string) string {
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		return validation.CleanEmail
	}
	return strings.ToLower(strings.TrimSpace(address))
}

// resolveDir substitutes tokens segment by segment and sanitizes each
// segment. The template's own separators define the directory depth.
func resolveDir(template string, tokens pathTokens, maxLen int) ([]string, error) {
	values := map[string]string{
		"{email}":   tokens.email,
		"{date}":    tokens.date,
		"{year}":    tokens.year,
		"{month}":   tokens.month,
		"{sender}":  tokens.sender,
		"{subject}": tokens.subject,
	}

	var segments []string
	for _, raw := range strings.Split(filepath.ToSlash(template), "/") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		var unresolved string
		resolved := tokenPattern.ReplaceAllStringFunc(raw, func(token string) string {
			if v, ok := values[token]; ok {
				return v
			}
			unresolved = token
			return token
		})
		if unresolved != "" {
			return nil, errors.Wrap(mailarchive_errors.ErrUnresolvedPathToken, unresolved)
		}
		segments = append(segments, SanitizeSegment(resolved, maxLen))
	}
	return segments, nil
}

// containedPath joins parts under base and rejects any result outside it.
func containedPath(base string, parts ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	target := filepath.Join(append([]string{absBase}, parts...)...)
	rel, err := filepath.Rel(absBase, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", errors.Wrap(mailarchive_errors.ErrPathEscapesBase, target)
	}
	return target, nil
}

// withSuffix returns stem_n.ext for a collision on path.
func withSuffix(path string, n int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strconv.Itoa(n) + ext
}
