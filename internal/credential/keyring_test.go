package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))

	require.NoError(t, s.Set("imap:suporte@example.com", "s3cret"))

	got, err := s.Get("imap:suporte@example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, s.Delete("imap:suporte@example.com"))
	_, err = s.Get("imap:suporte@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingKey(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))
	assert.NoError(t, s.Delete("imap:nobody@example.com"))
}
