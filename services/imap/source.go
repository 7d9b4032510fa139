// Package imap reads messages from IMAP mailboxes. Fetching never changes
// mailbox state; post-actions are a separate call.
package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

const defaultCommandTimeout = 60 * time.Second

// IMAPSource is both the EmailSource and the PostActionRunner for IMAP
// accounts. Each call opens its own session.
type IMAPSource struct {
	credentials interfaces.CredentialStore
	timeout     time.Duration
	log         logger.Logger
}

// NewIMAPSource builds the source. timeout bounds each network command; zero
// means one minute.
func NewIMAPSource(credentials interfaces.CredentialStore, timeout time.Duration, log logger.Logger) *IMAPSource {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &IMAPSource{
		credentials: credentials,
		timeout:     timeout,
		log:         log,
	}
}

// Fetch returns up to limit messages per run, newest last, from the account's
// folders. Folders are opened with EXAMINE and bodies fetched with
// BODY.PEEK[], so no flag changes on the server.
func (s *IMAPSource) Fetch(ctx context.Context, account *models.Account, since time.Time, criteria enum.SearchCriteria, limit int) ([]*dto.RawEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSource.Fetch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.LogKV("since", since, "criteria", criteria, "limit", limit)

	folders := []string(account.Folders)
	if len(folders) == 0 {
		folders = []string{"INBOX"}
	}

	var out []*dto.RawEmail
	err := s.withSession(ctx, account, func(c *client.Client) error {
		for _, folder := range folders {
			remaining := 0
			if limit > 0 {
				remaining = limit - len(out)
				if remaining <= 0 {
					return nil
				}
			}
			messages, err := s.fetchFolder(ctx, c, account, folder, since, criteria, remaining)
			if err != nil {
				return errors.Wrapf(err, "folder %s", folder)
			}
			out = append(out, messages...)
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("fetched", len(out))
	return out, nil
}

func (s *IMAPSource) fetchFolder(ctx context.Context, c *client.Client, account *models.Account, folder string, since time.Time, criteria enum.SearchCriteria, limit int) ([]*dto.RawEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSource.fetchFolder")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("folder", folder)

	if _, err := c.Select(folder, true); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	uids, err := c.UidSearch(searchCriteria(account, since, criteria))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	span.LogKV("matched", len(uids))
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var out []*dto.RawEmail
	for msg := range messages {
		raw, err := s.toRawEmail(account, folder, msg, section)
		if err != nil {
			s.log.Warn("Skipping unreadable message", zap.String("accountId", account.ID), zap.String("folder", folder), zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		out = append(out, raw)
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func searchCriteria(account *models.Account, since time.Time, criteria enum.SearchCriteria) *imap.SearchCriteria {
	sc := imap.NewSearchCriteria()
	if !since.IsZero() {
		sc.Since = since
	}
	switch criteria {
	case enum.SearchUnseen:
		sc.WithoutFlags = []string{imap.SeenFlag}
	case enum.SearchSeen:
		sc.WithFlags = []string{imap.SeenFlag}
	case enum.SearchFlagged:
		sc.WithFlags = []string{imap.FlaggedFlag}
	}
	if account.SubjectFilter != "" {
		sc.Header.Add("Subject", account.SubjectFilter)
	}
	if account.FromFilter != "" {
		sc.Header.Add("From", account.FromFilter)
	}
	return sc
}

func (s *IMAPSource) toRawEmail(account *models.Account, folder string, msg *imap.Message, section *imap.BodySectionName) (*dto.RawEmail, error) {
	literal := msg.GetBody(section)
	if literal == nil {
		return nil, errors.New("server returned no body")
	}
	body, err := io.ReadAll(literal)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	raw := &dto.RawEmail{
		AccountID: account.ID,
		Folder:    folder,
		UID:       msg.Uid,
		Date:      msg.InternalDate,
		Raw:       body,
	}
	if env := msg.Envelope; env != nil {
		raw.MessageID = utils.NormalizeMessageID(env.MessageId)
		raw.Subject = env.Subject
		if !env.Date.IsZero() {
			raw.Date = env.Date
		}
		if len(env.From) > 0 {
			raw.From = cleanSender(env.From[0].Address())
			raw.FromName = env.From[0].PersonalName
		}
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		s.log.Debug("MIME parse failed, keeping raw bytes", zap.Uint32("uid", msg.Uid), zap.Error(err))
	} else {
		raw.BodyText = envelope.Text
		raw.BodyHTML = envelope.HTML
		if raw.Subject == "" {
			raw.Subject = envelope.GetHeader("Subject")
		}
		if raw.MessageID == "" {
			raw.MessageID = utils.NormalizeMessageID(envelope.GetHeader("Message-ID"))
		}
		if raw.From == "" {
			if from, err := envelope.AddressList("From"); err == nil && len(from) > 0 {
				raw.From = cleanSender(from[0].Address)
				raw.FromName = from[0].Name
			}
		}
	}

	if raw.MessageID == "" {
		// stable for the same message so a re-fetch maps to the same row
		metadata := fmt.Sprintf("%s|%s|%d|%s|%s", account.ID, folder, msg.Uid, raw.Subject, raw.Date.UTC().Format(time.RFC3339))
		raw.MessageID = utils.NormalizeMessageID(utils.GenerateMessageID(utils.ExtractDomainFromEmail(account.Email), metadata))
	}
	return raw, nil
}

func cleanSender(address string) string {
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		return validation.CleanEmail
	}
	return strings.ToLower(strings.TrimSpace(address))
}
