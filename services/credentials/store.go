// Package credentials keeps account secrets encrypted under a key derived
// from a master password. Secrets are only readable while the store is
// unlocked.
package credentials

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
)

const (
	DefaultIterations = 210000
	verifierPlaintext = "mailarchive-vault-v1"
)

type credentialStore struct {
	repo       interfaces.CredentialRepository
	iterations int
	log        logger.Logger

	mu  sync.RWMutex
	key []byte
}

type Option func(*credentialStore)

// WithIterations overrides the PBKDF2 work factor.
func WithIterations(n int) Option {
	return func(s *credentialStore) {
		if n > 0 {
			s.iterations = n
		}
	}
}

func NewCredentialStore(repo interfaces.CredentialRepository, log logger.Logger, opts ...Option) interfaces.CredentialStore {
	s := &credentialStore{
		repo:       repo,
		iterations: DefaultIterations,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unlock derives the vault key. The first unlock creates the vault and
// fixes the master password.
func (s *credentialStore) Unlock(ctx context.Context, masterPassword string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CredentialStore.Unlock")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if masterPassword == "" {
		return errors.Wrap(mailarchive_errors.ErrInvalidInput, "empty master password")
	}

	vault, err := s.repo.GetVault(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	var key []byte
	if vault == nil {
		salt, err := newSalt()
		if err != nil {
			return err
		}
		key = deriveKey(masterPassword, salt, s.iterations)
		verifier, err := seal(key, []byte(verifierPlaintext))
		if err != nil {
			return err
		}
		if err := s.repo.SaveVault(ctx, &models.CredentialVault{Salt: salt, Verifier: verifier}); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		s.log.Info("Credential vault created")
	} else {
		key = deriveKey(masterPassword, vault.Salt, s.iterations)
		plain, err := open(key, vault.Verifier)
		if err != nil || subtle.ConstantTimeCompare(plain, []byte(verifierPlaintext)) != 1 {
			span.LogKV("result", "wrong password")
			return mailarchive_errors.ErrWrongMasterPassword
		}
	}

	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
	return nil
}

func (s *credentialStore) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}

func (s *credentialStore) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

func (s *credentialStore) currentKey() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, mailarchive_errors.ErrLockedCredentialStore
	}
	return append([]byte(nil), s.key...), nil
}

func (s *credentialStore) GetSecret(ctx context.Context, accountID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CredentialStore.GetSecret")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	key, err := s.currentKey()
	if err != nil {
		return "", err
	}
	credential, err := s.repo.Get(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if credential == nil {
		return "", errors.Wrap(mailarchive_errors.ErrCredentialNotFound, accountID)
	}
	plain, err := open(key, credential.Ciphertext)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Error("Stored credential does not decrypt", zap.String("accountId", accountID), zap.Error(err))
		return "", errors.Wrap(err, "open credential")
	}
	return string(plain), nil
}

func (s *credentialStore) SetSecret(ctx context.Context, accountID, secret string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CredentialStore.SetSecret")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	if accountID == "" || secret == "" {
		return mailarchive_errors.ErrInvalidInput
	}
	key, err := s.currentKey()
	if err != nil {
		return err
	}
	sealed, err := seal(key, []byte(secret))
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, &models.Credential{AccountID: accountID, Ciphertext: sealed}); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
