package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
)

// connect dials and logs in to the account's server. The caller owns the
// returned session and must release it with logout.
func (s *IMAPSource) connect(ctx context.Context, account *models.Account, secret string) (*client.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSource.connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	host, port := account.ServerAddress()
	if host == "" {
		return nil, errors.Errorf("account %s has no imap server", account.ID)
	}
	serverAddr := fmt.Sprintf("%s:%d", host, port)
	useTLS := account.UseTLS || port == 993
	span.SetTag("server", serverAddr)
	span.SetTag("tls", useTLS)

	dialer := &net.Dialer{
		Timeout:   s.timeout,
		KeepAlive: 30 * time.Second,
	}

	var (
		c   *client.Client
		err error
	)
	if useTLS {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: host})
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "connect to %s", serverAddr)
	}
	c.Timeout = s.timeout

	if account.AuthMethod == enum.AuthMethodOAuth2 {
		err = c.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: account.LoginName(),
			Token:    secret,
		}))
	} else {
		err = c.Login(account.LoginName(), secret)
	}
	if err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "login as %s", account.LoginName())
	}

	s.log.Debug("Connected to mail server", zap.String("accountId", account.ID), zap.String("server", serverAddr))
	return c, nil
}

// logout ends the session, giving the server five seconds to answer.
func (s *IMAPSource) logout(accountID string, c *client.Client) {
	if c == nil {
		return
	}
	c.Timeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Debug("Logout failed", zap.String("accountId", accountID), zap.Error(err))
		}
	case <-time.After(5 * time.Second):
		s.log.Warn("Logout timed out", zap.String("accountId", accountID))
		_ = c.Terminate()
	}
}

// withSession runs fn on a logged-in session. Cancelling ctx tears the
// connection down, which unblocks any command in flight.
func (s *IMAPSource) withSession(ctx context.Context, account *models.Account, fn func(c *client.Client) error) error {
	secret, err := s.credentials.GetSecret(ctx, account.ID)
	if err != nil {
		return err
	}
	c, err := s.connect(ctx, account, secret)
	if err != nil {
		return err
	}
	defer s.logout(account.ID, c)

	stop := context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})
	defer stop()

	if err := fn(c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
