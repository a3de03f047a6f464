package wallet

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/cookiepool/crypto"
)

func TestKeystoreRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pool.key")

	require.NoError(t, SaveKey(path, "hunter2", priv))

	loaded, err := LoadKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, priv, loaded)

	_, err = LoadKey(path, "wrong")
	assert.True(t, errors.Is(err, ErrWrongPassword))
}

func TestKeystoreMissingFile(t *testing.T) {
	_, err := LoadKey(filepath.Join(t.TempDir(), "absent.key"), "x")
	assert.Error(t, err)
}
