// Package indexer tracks the lifecycle of every pool transaction the
// coordinator signed so orchestrators can ask what happened to a txid
// after it left the ledger.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/storage"
)

const (
	prefixTxStatus = "idx:tx:"
	prefixGamerTxs = "idx:gamer:tx:"
)

// TxState is the lifecycle position of a signed pool transaction.
type TxState string

const (
	TxPending    TxState = "pending"
	TxFinalized  TxState = "finalized"
	TxRolledBack TxState = "rolled_back"
)

// TxStatus is the indexed record of one transaction.
type TxStatus struct {
	Txid   string  `json:"txid"`
	Nonce  uint64  `json:"nonce"`
	Action string  `json:"action"`
	Gamer  string  `json:"gamer,omitempty"`
	State  TxState `json:"state"`
}

// Indexer subscribes to ledger events and updates secondary lookup tables.
type Indexer struct {
	mu      sync.Mutex
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventTxCommitted, idx.onCommitted)
	emitter.Subscribe(events.EventTxFinalized, idx.onFinalized)
	emitter.Subscribe(events.EventTxRolledBack, idx.onRolledBack)
	return idx
}

// GetTxStatus returns the indexed status of txid, or core.ErrNotFound.
func (idx *Indexer) GetTxStatus(txid string) (*TxStatus, error) {
	data, err := idx.db.Get([]byte(prefixTxStatus + txid))
	if err != nil {
		return nil, err
	}
	var st TxStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return &st, nil
}

// GetTxsByGamer returns every txid the gamer initiated, oldest first.
func (idx *Indexer) GetTxsByGamer(gamer string) ([]string, error) {
	return idx.getList(prefixGamerTxs + gamer)
}

// ---- event handlers ----

func (idx *Indexer) onCommitted(ev events.Event) {
	if ev.TxID == "" {
		return
	}
	action, _ := ev.Data["action"].(string)
	gamer, _ := ev.Data["gamer"].(string)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logErr(ev, idx.put(&TxStatus{Txid: ev.TxID, Nonce: ev.Nonce, Action: action, Gamer: gamer, State: TxPending}))
	if gamer != "" {
		idx.logErr(ev, idx.addToList(prefixGamerTxs+gamer, ev.TxID))
	}
}

// onFinalized marks the finalized tx and every tx it pruned from the ledger.
func (idx *Indexer) onFinalized(ev events.Event) {
	pruned, _ := ev.Data["pruned"].([]string)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, txid := range append(pruned, ev.TxID) {
		idx.logErr(ev, idx.setState(txid, TxFinalized))
	}
}

func (idx *Indexer) onRolledBack(ev events.Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logErr(ev, idx.setState(ev.TxID, TxRolledBack))
}

func (idx *Indexer) setState(txid string, state TxState) error {
	if txid == "" {
		return nil
	}
	st, err := idx.GetTxStatus(txid)
	if errors.Is(err, core.ErrNotFound) {
		st = &TxStatus{Txid: txid}
	} else if err != nil {
		return err
	}
	st.State = state
	return idx.put(st)
}

func (idx *Indexer) put(st *TxStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(prefixTxStatus+st.Txid), data)
}

func (idx *Indexer) logErr(ev events.Event, err error) {
	if err != nil {
		log.WithFields(log.Fields{"component": "indexer", "type": ev.Type, "txid": ev.TxID}).
			WithError(err).Warn("index update failed")
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	data, err := json.Marshal(append(ids, value))
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
