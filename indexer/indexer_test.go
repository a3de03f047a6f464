package indexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/internal/testutil"
)

func commit(e *events.Emitter, txid string, nonce uint64, gamer string) {
	e.Emit(events.Event{
		Type:  events.EventTxCommitted,
		TxID:  txid,
		Nonce: nonce,
		Data:  map[string]any{"action": "register", "gamer": gamer},
	})
}

func TestTxLifecycle(t *testing.T) {
	e := events.NewEmitter()
	idx := New(testutil.NewMemDB(), e)

	commit(e, "t1", 1, "alice")
	commit(e, "t2", 2, "bob")
	commit(e, "t3", 3, "carol")

	st, err := idx.GetTxStatus("t2")
	require.NoError(t, err)
	assert.Equal(t, TxPending, st.State)
	assert.Equal(t, "bob", st.Gamer)
	assert.Equal(t, uint64(2), st.Nonce)

	e.Emit(events.Event{Type: events.EventTxFinalized, TxID: "t2", Data: map[string]any{"pruned": []string{"t1"}}})
	e.Emit(events.Event{Type: events.EventTxRolledBack, TxID: "t3", Nonce: 3})

	for txid, want := range map[string]TxState{"t1": TxFinalized, "t2": TxFinalized, "t3": TxRolledBack} {
		st, err := idx.GetTxStatus(txid)
		require.NoError(t, err)
		assert.Equal(t, want, st.State, txid)
	}

	txs, err := idx.GetTxsByGamer("carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, txs)
}

func TestUnknownTx(t *testing.T) {
	idx := New(testutil.NewMemDB(), events.NewEmitter())
	_, err := idx.GetTxStatus("nope")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	txs, err := idx.GetTxsByGamer("nobody")
	require.NoError(t, err)
	assert.Empty(t, txs)
}
