package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpark/mailcopy/internal/mailstore"
)

func TestLookupSetDelete(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))
	ep, err := mailstore.ParseURL("imaps://alice@mail.example.com/INBOX")
	require.NoError(t, err)

	_, ok, err := s.Lookup(ep)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ep, "s3cret"))
	pw, ok, err := s.Lookup(ep)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3cret", pw)

	// same account on another folder shares the password
	other, err := mailstore.ParseURL("imaps://alice@mail.example.com:993/Sent")
	require.NoError(t, err)
	pw, ok, err = s.Lookup(other)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3cret", pw)

	require.NoError(t, s.Delete(ep))
	_, ok, err = s.Lookup(ep)
	require.NoError(t, err)
	assert.False(t, ok)
}
