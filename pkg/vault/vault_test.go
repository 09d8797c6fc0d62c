package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	plain := []byte("db_password: hunter2\napi_key: abc\n")
	enc, err := Encrypt(plain, []byte("s3cret"))
	require.NoError(t, err)
	assert.True(t, IsVault(enc))
	assert.NotContains(t, string(enc), "hunter2")

	dec, err := Decrypt(enc, []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestWrongPassphrase(t *testing.T) {
	enc, err := Encrypt([]byte("x"), []byte("right"))
	require.NoError(t, err)
	_, err = Decrypt(enc, []byte("wrong"))
	assert.Error(t, err)
}

func TestMissingPassphrase(t *testing.T) {
	_, err := Encrypt([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrNoPassphrase)
}

func TestNotVault(t *testing.T) {
	assert.False(t, IsVault([]byte("plain: yaml\n")))
	_, err := Decrypt([]byte("plain: yaml\n"), []byte("p"))
	assert.ErrorIs(t, err, ErrNotVault)
}
