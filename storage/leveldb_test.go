package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/cookiepool/core"
)

func TestLevelDBBackedStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	db, err := NewLevelDB(path)
	require.NoError(t, err)

	state := NewStateDB(db)
	require.NoError(t, state.SetGamer(&core.Gamer{Address: "alice", Rewards: 300}))
	require.NoError(t, state.SetGamerAddress("p-alice", "alice"))
	require.NoError(t, state.Commit())
	require.NoError(t, db.Close())

	db, err = NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	state = NewStateDB(db)

	g, err := state.GetGamer("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), g.Rewards)
	addr, err := state.GetGamerAddress("p-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", addr)
	n, err := state.CountGamers()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = db.Get([]byte("missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}
