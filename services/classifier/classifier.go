// Package classifier labels documents and emails, using an external model
// when one is configured and keyword rules otherwise.
package classifier

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/jaytaylor/html2text"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

const (
	SourceModel = "model"
	SourceRules = "rules"

	summaryFallbackRunes = 200
	emailPreviewRunes    = 300
)

type classifier struct {
	cfg   *config.ClassifierConfig
	model interfaces.LanguageModel
	log   logger.Logger
	now   func() time.Time

	mu sync.Mutex
	// model calls are skipped until this instant after a failure
	coolUntil time.Time
}

// NewClassifier returns a classifier. model may be nil.
func NewClassifier(cfg *config.ClassifierConfig, model interfaces.LanguageModel, log logger.Logger) interfaces.Classifier {
	return &classifier{
		cfg:   cfg,
		model: model,
		log:   log,
		now:   time.Now,
	}
}

func (c *classifier) Classify(ctx context.Context, text, filename string) dto.Classification {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Classifier.Classify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("filename", filename)

	if reply, err := c.ask(ctx, documentPrompt(c.truncate(text), filename)); err == nil {
		label, summary, ok := parseDocumentReply(reply)
		if ok {
			if summary == "" {
				summary = fallbackSummary(text)
			}
			span.LogKV("source", SourceModel, "label", label)
			return dto.Classification{Label: label, Summary: summary, Source: SourceModel}
		}
		c.log.Debug("Model reply carried no known label, using rules", zap.String("reply", utils.TruncateRunes(reply, 80, "")))
	} else {
		span.LogKV("modelError", err.Error())
	}

	label := ClassifyByRules(text, filename)
	span.LogKV("source", SourceRules, "label", label)
	return dto.Classification{Label: label, Summary: fallbackSummary(text), Source: SourceRules}
}

func (c *classifier) ClassifyEmail(ctx context.Context, email *models.Email) dto.EmailClassification {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Classifier.ClassifyEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, email.ID)

	body := email.BodyText
	if strings.TrimSpace(body) == "" && email.BodyHTML != "" {
		if text, err := html2text.FromString(email.BodyHTML, html2text.Options{OmitLinks: true}); err == nil {
			body = text
		}
	}
	preview := utils.TruncateRunes(strings.TrimSpace(body), emailPreviewRunes, "")

	signals := readHeaderSignals(email.RawMessage, email.Subject, email.FromAddress)
	if signals.automated {
		span.LogKV("source", SourceHeaders, "reason", signals.reason)
		return dto.EmailClassification{Class: enum.EmailClassNotification, Summary: fallbackSummary(body), Source: SourceHeaders}
	}

	result := dto.EmailClassification{Summary: fallbackSummary(body), Source: SourceRules}
	if reply, err := c.ask(ctx, emailPrompt(email.Subject, email.FromAddress, preview)); err == nil {
		if class, ok := parseEmailClass(reply); ok {
			result.Class, result.Source = class, SourceModel
		}
	}
	if result.Source == SourceRules {
		result.Class = ClassifyEmailByRules(email.Subject, email.FromAddress, preview)
	}
	if class, refined := signals.refine(result.Class); refined {
		result.Class, result.Source = class, SourceHeaders
	}
	return result
}

// ask calls the model under the configured timeout. Any failure is reported
// as ErrClassificationUnavailable and starts the cooldown.
func (c *classifier) ask(ctx context.Context, prompt string) (string, error) {
	if c.model == nil {
		return "", mailarchive_errors.ErrClassificationUnavailable
	}
	if c.cooling() {
		return "", errors.Wrap(mailarchive_errors.ErrClassificationUnavailable, "cooling down")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reply, err := c.model.Generate(callCtx, prompt)
	if err != nil {
		c.startCooldown()
		c.log.Warn("Classification model unavailable, using rules", zap.String("model", c.model.Name()), zap.Error(err))
		return "", errors.Wrap(mailarchive_errors.ErrClassificationUnavailable, err.Error())
	}
	return reply, nil
}

func (c *classifier) cooling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.coolUntil)
}

func (c *classifier) startCooldown() {
	if c.cfg.Cooldown <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coolUntil = c.now().Add(c.cfg.Cooldown)
}

func (c *classifier) truncate(text string) string {
	if c.cfg.MaxInputChars <= 0 {
		return text
	}
	return utils.TruncateRunes(text, c.cfg.MaxInputChars, "")
}

func documentPrompt(text, filename string) string {
	var b strings.Builder
	b.WriteString("Classify this document into exactly ONE category: invoice, receipt, statement, contract, other.\n")
	b.WriteString("Answer with two lines. Line 1: the category name only. Line 2: a one or two sentence summary.\n\n")
	b.WriteString("Filename: ")
	b.WriteString(filename)
	b.WriteString("\nContent:\n")
	b.WriteString(text)
	return b.String()
}

func emailPrompt(subject, sender, preview string) string {
	return "Classify this email into ONE category: invoice, newsletter, shipping, notification, other.\n" +
		"Respond with ONLY the category name.\n\n" +
		"From: " + sender + "\nSubject: " + subject + "\nPreview: " + preview
}

// parseDocumentReply reads the label from the first word of the reply and
// the summary from the remaining lines.
func parseDocumentReply(reply string) (enum.DocumentLabel, string, bool) {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	label := enum.DocumentLabel(firstWord(lines[0]))
	if !label.IsValid() {
		return "", "", false
	}
	summary := strings.TrimSpace(strings.Join(lines[1:], " "))
	summary = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(summary, "Summary:"), "summary:"))
	return label, summary, true
}

func parseEmailClass(reply string) (enum.EmailClassification, bool) {
	class := enum.EmailClassification(firstWord(reply))
	switch class {
	case enum.EmailClassInvoice, enum.EmailClassNewsletter, enum.EmailClassShipping, enum.EmailClassNotification, enum.EmailClassOther:
		return class, true
	}
	return "", false
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "category" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

// fallbackSummary is the first 200 characters of the text.
func fallbackSummary(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return utils.TruncateRunes(text, summaryFallbackRunes, "...")
}
