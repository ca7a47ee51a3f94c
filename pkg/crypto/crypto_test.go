package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrypter_EncryptDecrypt(t *testing.T) {
	key, err := LoadOrGenerateKey(filepath.Join(t.TempDir(), "key"))
	require.NoError(t, err)
	c, err := NewCrypter(key)
	require.NoError(t, err)

	enc, err := c.Encrypt("Tejas@123")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(enc))
	assert.NotContains(t, enc, "Tejas@123")

	again, err := c.Encrypt("Tejas@123")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonce must differ per call")

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "Tejas@123", plain)
}

func TestCrypter_Errors(t *testing.T) {
	_, err := NewCrypter([]byte("short"))
	require.Error(t, err)

	key := make([]byte, KeySize)
	c, err := NewCrypter(key)
	require.NoError(t, err)

	_, err = c.Decrypt("plaintext")
	assert.ErrorIs(t, err, ErrNotEncrypted)

	_, err = c.Decrypt(Prefix + "AAAA")
	assert.ErrorIs(t, err, ErrCiphertext)

	other := make([]byte, KeySize)
	other[0] = 1
	oc, err := NewCrypter(other)
	require.NoError(t, err)
	enc, err := oc.Encrypt("x")
	require.NoError(t, err)
	_, err = c.Decrypt(enc)
	assert.Error(t, err, "wrong key must not decrypt")
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "routerctl.key")
	first, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	require.Len(t, first, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("dG9vc2hvcnQ=\n"), 0600))
	_, err = LoadKey(path)
	assert.Error(t, err)
}
