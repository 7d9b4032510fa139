package imap

import (
	"context"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
)

// ApplyPostAction changes the given messages on the server. It is the only
// call of this package that writes to a mailbox.
func (s *IMAPSource) ApplyPostAction(ctx context.Context, account *models.Account, action enum.PostAction, messages []*dto.RawEmail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSource.ApplyPostAction")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.LogKV("action", action, "messages", len(messages))

	if action == "" || action == enum.PostActionNone || len(messages) == 0 {
		return nil
	}
	if !action.IsValid() {
		return errors.Wrapf(mailarchive_errors.ErrInvalidInput, "post action %q", action)
	}
	if action == enum.PostActionMove && account.MoveToFolder == "" {
		return errors.Wrap(mailarchive_errors.ErrInvalidInput, "move needs a destination folder")
	}

	byFolder := map[string][]uint32{}
	var order []string
	for _, m := range messages {
		if m.UID == 0 {
			continue
		}
		if _, ok := byFolder[m.Folder]; !ok {
			order = append(order, m.Folder)
		}
		byFolder[m.Folder] = append(byFolder[m.Folder], m.UID)
	}

	err := s.withSession(ctx, account, func(c *client.Client) error {
		for _, folder := range order {
			if _, err := c.Select(folder, false); err != nil {
				return errors.Wrapf(err, "select %s", folder)
			}
			seqSet := new(imap.SeqSet)
			seqSet.AddNum(byFolder[folder]...)
			if err := s.apply(c, account, action, folder, seqSet); err != nil {
				return errors.Wrapf(err, "%s in %s", action, folder)
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *IMAPSource) apply(c *client.Client, account *models.Account, action enum.PostAction, folder string, seqSet *imap.SeqSet) error {
	switch action {
	case enum.PostActionMarkRead:
		return addFlag(c, seqSet, imap.SeenFlag)
	case enum.PostActionDelete:
		if err := addFlag(c, seqSet, imap.DeletedFlag); err != nil {
			return err
		}
		return c.Expunge(nil)
	case enum.PostActionMove:
		return move(c, seqSet, account.MoveToFolder)
	case enum.PostActionArchive:
		dest, err := s.archiveFolder(c, account)
		if err != nil {
			return err
		}
		if dest == folder {
			return nil
		}
		return move(c, seqSet, dest)
	}
	return nil
}

// archiveFolder picks the first existing folder from the account's move
// target and the provider's archive list, creating "Archive" when none exists.
func (s *IMAPSource) archiveFolder(c *client.Client, account *models.Account) (string, error) {
	candidates := account.Provider.Settings().ArchiveFolders
	if account.MoveToFolder != "" {
		candidates = append([]string{account.MoveToFolder}, candidates...)
	}

	existing := map[string]bool{}
	mailboxes := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()
	for m := range mailboxes {
		existing[m.Name] = true
	}
	if err := <-done; err != nil {
		return "", errors.Wrap(err, "list folders")
	}

	for _, name := range candidates {
		if existing[name] {
			return name, nil
		}
	}
	s.log.Info("No archive folder found, creating one", zap.String("accountId", account.ID))
	if err := c.Create("Archive"); err != nil {
		return "", errors.Wrap(err, "create archive folder")
	}
	return "Archive", nil
}

func addFlag(c *client.Client, seqSet *imap.SeqSet, flag string) error {
	op := imap.FormatFlagsOp(imap.AddFlags, true)
	return c.UidStore(seqSet, op, []interface{}{flag}, nil)
}

// move uses MOVE when the server has it, else COPY then delete.
func move(c *client.Client, seqSet *imap.SeqSet, dest string) error {
	if ok, err := c.Support("MOVE"); err == nil && ok {
		return c.UidMove(seqSet, dest)
	}
	if err := c.UidCopy(seqSet, dest); err != nil {
		return err
	}
	if err := addFlag(c, seqSet, imap.DeletedFlag); err != nil {
		return err
	}
	return c.Expunge(nil)
}
