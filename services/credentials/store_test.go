package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/testutil"
)

func newStore(t *testing.T) (interfaces.CredentialStore, interfaces.CredentialRepository) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewCredentialRepository(db)
	return NewCredentialStore(repo, logger.NewNopLogger(), WithIterations(1000)), repo
}

func TestLockedStoreRefusesSecrets(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	assert.False(t, store.IsUnlocked())
	_, err := store.GetSecret(ctx, "acct_1")
	assert.ErrorIs(t, err, mailarchive_errors.ErrLockedCredentialStore)
	assert.Equal(t, enum.ErrorKindLockedCredentials, mailarchive_errors.Kind(err))
	assert.ErrorIs(t, store.SetSecret(ctx, "acct_1", "pw"), mailarchive_errors.ErrLockedCredentialStore)
}

func TestSecretRoundTrip(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Unlock(ctx, "correct horse"))
	require.NoError(t, store.SetSecret(ctx, "acct_1", "app-password"))

	stored, err := repo.Get(ctx, "acct_1")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.Ciphertext), "app-password")

	secret, err := store.GetSecret(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "app-password", secret)

	store.Lock()
	_, err = store.GetSecret(ctx, "acct_1")
	assert.ErrorIs(t, err, mailarchive_errors.ErrLockedCredentialStore)

	require.NoError(t, store.Unlock(ctx, "correct horse"))
	secret, err = store.GetSecret(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "app-password", secret)
}

func TestWrongMasterPassword(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Unlock(ctx, "first"))
	store.Lock()

	err := store.Unlock(ctx, "second")
	assert.ErrorIs(t, err, mailarchive_errors.ErrWrongMasterPassword)
	assert.False(t, store.IsUnlocked())

	// a fresh process with the same database sees the same vault
	other := NewCredentialStore(repo, logger.NewNopLogger(), WithIterations(1000))
	assert.ErrorIs(t, other.Unlock(ctx, "second"), mailarchive_errors.ErrWrongMasterPassword)
	assert.NoError(t, other.Unlock(ctx, "first"))
}

func TestMissingCredential(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Unlock(ctx, "pw"))

	_, err := store.GetSecret(ctx, "acct_none")
	assert.ErrorIs(t, err, mailarchive_errors.ErrCredentialNotFound)
	assert.ErrorIs(t, store.Unlock(ctx, ""), mailarchive_errors.ErrInvalidInput)
}

func TestSealProducesDistinctCiphertexts(t *testing.T) {
	key := deriveKey("pw", []byte("0123456789abcdef"), 1000)
	a, err := seal(key, []byte("secret"))
	require.NoError(t, err)
	b, err := seal(key, []byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	plain, err := open(key, a)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))

	_, err = open(deriveKey("other", []byte("0123456789abcdef"), 1000), a)
	assert.Error(t, err)
	_, err = open(key, []byte("short"))
	assert.Error(t, err)
}
