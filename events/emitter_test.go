package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitDeliversByType(t *testing.T) {
	e := NewEmitter()
	var got []Event
	e.Subscribe(EventTxCommitted, func(ev Event) { got = append(got, ev) })

	e.Emit(Event{Type: EventTxCommitted, TxID: "a", Nonce: 1})
	e.Emit(Event{Type: EventTxFinalized, TxID: "a"})

	assert.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Nonce)
}

func TestSubscribeAllCancel(t *testing.T) {
	e := NewEmitter()
	n := 0
	cancel := e.SubscribeAll(func(Event) { n++ })
	e.Emit(Event{Type: EventTxCommitted})
	e.Emit(Event{Type: EventRewardClaimed})
	cancel()
	e.Emit(Event{Type: EventTxCommitted})
	assert.Equal(t, 2, n)
}

func TestPanickingHandlerIsContained(t *testing.T) {
	e := NewEmitter()
	called := false
	e.Subscribe(EventTxRolledBack, func(Event) { panic("boom") })
	e.Subscribe(EventTxRolledBack, func(Event) { called = true })

	assert.NotPanics(t, func() { e.Emit(Event{Type: EventTxRolledBack}) })
	assert.True(t, called)
}
