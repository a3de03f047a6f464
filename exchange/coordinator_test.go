package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/crypto"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/identity"
	"github.com/tolelom/cookiepool/internal/testutil"
	"github.com/tolelom/cookiepool/storage"
	"golang.org/x/sync/errgroup"
)

const (
	orch     = "orchestrator"
	psbtHex  = "70736274ff"
	startSec = 1_700_000_000
)

var runeID = core.CoinID{Block: 840000, Tx: 7}

func txid(c string) string { return strings.Repeat(c, 64) }

type fakeSigner struct {
	key       *btcec.PublicKey
	keyCalls  atomic.Int32
	signCalls atomic.Int32
	sign      func(ctx context.Context) (string, error)
}

func (s *fakeSigner) PoolKey(ctx context.Context, derivation []byte) (*btcec.PublicKey, error) {
	s.keyCalls.Add(1)
	return s.key, nil
}

func (s *fakeSigner) Sign(ctx context.Context, txHex string, consumed []core.Utxo, derivation []byte) (string, error) {
	s.signCalls.Add(1)
	if s.sign != nil {
		return s.sign(ctx)
	}
	return "signed:" + txHex, nil
}

type resolverFunc func(ctx context.Context, address string) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, address string) (string, error) {
	return f(ctx, address)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	c          *Coordinator
	db         *testutil.FailingDB
	signer     *fakeSigner
	ids        *identity.Static
	clock      *clock
	violations []error

	mu     sync.Mutex
	events []events.Event

	address string
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	e := &env{
		db:     &testutil.FailingDB{MemDB: testutil.NewMemDB()},
		signer: &fakeSigner{key: priv.Key().PubKey()},
		ids: identity.NewStatic(map[string]string{
			"alice": "p-alice", "bob": "p-bob", "carol": "p-carol", "dave": "p-dave",
		}),
		clock: &clock{t: time.Unix(startSec, 0)},
	}
	emitter := events.NewEmitter()
	emitter.SubscribeAll(func(ev events.Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})
	base := []Option{
		WithClock(e.clock.Now),
		WithNetwork(&chaincfg.RegressionNetParams),
		WithEmitter(emitter),
		WithExternalTimeout(200 * time.Millisecond),
		WithViolationHandler(func(err error) { e.violations = append(e.violations, err) }),
	}
	e.c = New(storage.NewStateDB(e.db), e.signer, e.ids, append(base, opts...)...)

	_, err = e.c.Init(Setup{
		RuneName:     "COOKIE",
		RuneID:       runeID,
		Orchestrator: orch,
		Game: core.Game{
			Duration:       3600,
			RegisterFee:    10_000,
			ClaimCooldown:  60,
			RewardPerClaim: 100,
			MaxRewards:     1_000,
		},
	})
	require.NoError(t, err)
	return e
}

func (e *env) fund(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	addr, err := e.c.InitKey(ctx)
	require.NoError(t, err)
	e.address = addr
	require.NoError(t, e.c.Deposit(ctx, orch, e.runeUtxo(1_000), core.Utxo{Txid: txid("a"), Vout: 0, Sats: 100_000}))
}

func (e *env) runeUtxo(value uint64) core.Utxo {
	return core.Utxo{Txid: txid("9"), Vout: 0, Sats: 546, Rune: &core.CoinBalance{ID: runeID, Value: value}}
}

func (e *env) register(gamer string, nonce uint64, spend, receive string) core.ExecuteRequest {
	return core.ExecuteRequest{
		TxHex: psbtHex,
		Txid:  strings.SplitN(receive, ":", 2)[0],
		Intent: core.Intent{
			Action:          core.IntentRegister,
			PoolAddress:     e.address,
			Nonce:           nonce,
			PoolUtxoSpend:   []string{spend},
			PoolUtxoReceive: []string{receive},
			InputCoins: []core.InputCoin{
				{From: gamer, Coin: core.CoinBalance{ID: core.BTC, Value: 10_000}},
			},
			InitiatorAddress: gamer,
		},
	}
}

// chain registers gamers in order, each spending the previous output.
func (e *env) chain(t *testing.T, gamers ...string) []string {
	t.Helper()
	ids := []string{"b", "c", "d", "e", "f"}
	prev := txid("a") + ":0"
	var out []string
	for i, g := range gamers {
		recv := txid(ids[i]) + ":1"
		_, err := e.c.Execute(context.Background(), orch, e.register(g, uint64(i), prev, recv))
		require.NoError(t, err, g)
		head := e.states(t)
		assert.Equal(t, uint64(i+1), head[len(head)-1].Nonce, g)
		assert.Equal(t, uint64(100_000+(i+1)*10_000), head[len(head)-1].Utxo.Sats, g)
		out = append(out, txid(ids[i]))
		prev = recv
	}
	return out
}

func (e *env) states(t *testing.T) []core.PoolState {
	t.Helper()
	states, err := e.c.PoolStates()
	require.NoError(t, err)
	return states
}

func (e *env) poolKey(t *testing.T) string {
	t.Helper()
	ex, err := e.c.Exchange()
	require.NoError(t, err)
	return ex.Key
}

func (e *env) eventsOf(typ events.EventType) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestInitKeyAndDepositStartGame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	st, err := e.c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.PhaseInitializing, st.Phase)

	addr, err := e.c.InitKey(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "bcrt1p"))
	again, err := e.c.InitKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, int32(1), e.signer.keyCalls.Load(), "key derived once")

	st, err = e.c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.Status{Phase: core.PhaseInitializing, KeyReady: true}, st)

	e.address = addr
	require.NoError(t, e.c.Deposit(ctx, orch, e.runeUtxo(1_000), core.Utxo{Txid: txid("a"), Sats: 100_000}))
	st, err = e.c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.PhasePlaying, st.Phase)

	ex, err := e.c.Exchange()
	require.NoError(t, err)
	assert.Equal(t, uint64(startSec), ex.Game.StartTime)

	states := e.states(t)
	require.Len(t, states, 1)
	assert.Nil(t, states[0].ID)
	assert.Equal(t, uint64(0), states[0].Nonce)
	assert.Equal(t, uint64(1_000), states[0].RuneBalance)
	assert.Equal(t, core.ActionInit, states[0].Action.Kind)
	assert.Empty(t, e.violations)
}

func TestDepositRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	btc := core.Utxo{Txid: txid("a"), Sats: 100_000}

	err := e.c.Deposit(ctx, "mallory", e.runeUtxo(1_000), btc)
	assert.True(t, errors.Is(err, core.ErrAccessDenied))

	err = e.c.Deposit(ctx, orch, e.runeUtxo(999), btc)
	assert.True(t, errors.Is(err, core.ErrDepositBalanceMismatch))

	wrongRune := e.runeUtxo(1_000)
	wrongRune.Rune.ID = core.CoinID{Block: 1, Tx: 1}
	err = e.c.Deposit(ctx, orch, wrongRune, btc)
	assert.True(t, errors.Is(err, core.ErrInvalidIntent))

	err = e.c.Deposit(ctx, orch, e.runeUtxo(1_000), core.Utxo{Txid: "not-a-txid", Sats: 100_000})
	assert.True(t, errors.Is(err, core.ErrInvalidIntent), "got %v", err)

	badRune := e.runeUtxo(1_000)
	badRune.Txid = "zz"
	err = e.c.Deposit(ctx, orch, badRune, btc)
	assert.True(t, errors.Is(err, core.ErrInvalidIntent), "got %v", err)

	err = e.c.Deposit(ctx, orch, e.runeUtxo(1_000), core.Utxo{Txid: txid("a"), Sats: MinimalTxValue - 1})
	assert.True(t, errors.Is(err, core.ErrInvalidIntent), "got %v", err)
	assert.Empty(t, e.states(t))

	require.NoError(t, e.c.Deposit(ctx, orch, e.runeUtxo(1_000), btc))
	err = e.c.Deposit(ctx, orch, e.runeUtxo(1_000), btc)
	assert.True(t, errors.Is(err, core.ErrAlreadyDeposited))
	assert.Len(t, e.states(t), 1)
}

func TestExecuteWorkedExample(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()

	req := e.register("alice", 0, txid("a")+":0", txid("b")+":1")
	signed, err := e.c.Execute(ctx, orch, req)
	require.NoError(t, err)
	assert.Equal(t, "signed:"+psbtHex, signed)

	states := e.states(t)
	require.Len(t, states, 2)
	head := states[1]
	assert.Equal(t, uint64(1), head.Nonce)
	assert.Equal(t, txid("b"), head.Utxo.Txid)
	assert.Equal(t, uint32(1), head.Utxo.Vout)
	assert.Equal(t, uint64(110_000), head.Utxo.Sats)
	assert.Equal(t, core.Action{Kind: core.ActionRegister, Gamer: "alice", Principal: "p-alice"}, head.Action)

	info, err := e.c.GameInfo("alice")
	require.NoError(t, err)
	require.NotNil(t, info.Gamer)
	assert.Equal(t, "p-alice", info.Gamer.Principal)

	req.Intent.InitiatorAddress = "bob"
	_, err = e.c.Execute(ctx, orch, req)
	var stale *core.StaleNonceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, uint64(1), stale.Current)

	committed := e.eventsOf(events.EventTxCommitted)
	require.Len(t, committed, 1)
	assert.Equal(t, txid("b"), committed[0].TxID)
}

func TestExecuteGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	addr, err := e.c.InitKey(ctx)
	require.NoError(t, err)
	e.address = addr

	req := e.register("alice", 0, txid("a")+":0", txid("b")+":1")
	_, err = e.c.Execute(ctx, orch, req)
	assert.True(t, errors.Is(err, core.ErrNotPlaying), "not funded yet")

	e.fund(t)
	_, err = e.c.Execute(ctx, "mallory", req)
	assert.True(t, errors.Is(err, core.ErrAccessDenied))

	bad := req
	bad.Intent.PoolAddress = "bcrt1pother"
	_, err = e.c.Execute(ctx, orch, bad)
	assert.True(t, errors.Is(err, core.ErrPoolAddressMismatch))

	bad = req
	bad.Intent.Action = core.IntentWithdraw
	_, err = e.c.Execute(ctx, orch, bad)
	assert.True(t, errors.Is(err, core.ErrUnsupportedIntent))

	assert.Equal(t, int32(0), e.signer.signCalls.Load(), "nothing reached the signer")
	assert.Len(t, e.states(t), 1)
}

func TestExecuteExternalFailureLeavesLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("signer", func(t *testing.T) {
		e := newEnv(t)
		e.fund(t)
		e.signer.sign = func(context.Context) (string, error) { return "", errors.New("hsm offline") }
		_, err := e.c.Execute(ctx, orch, e.register("alice", 0, txid("a")+":0", txid("b")+":1"))
		var ext *core.ExternalError
		require.ErrorAs(t, err, &ext)
		assert.Equal(t, "signer", ext.Service)
		assert.Len(t, e.states(t), 1)

		e.signer.sign = nil
		_, err = e.c.Execute(ctx, orch, e.register("alice", 0, txid("a")+":0", txid("b")+":1"))
		require.NoError(t, err, "admission released after failure")
	})

	t.Run("identity", func(t *testing.T) {
		e := newEnv(t)
		e.fund(t)
		_, err := e.c.Execute(ctx, orch, e.register("zed", 0, txid("a")+":0", txid("b")+":1"))
		assert.True(t, core.IsExternal(err))
		assert.True(t, errors.Is(err, identity.ErrUnknownAddress))
		assert.Len(t, e.states(t), 1)
		info, err := e.c.GameInfo("zed")
		require.NoError(t, err)
		assert.Nil(t, info.Gamer)
	})

	t.Run("timeout", func(t *testing.T) {
		e := newEnv(t, WithExternalTimeout(20*time.Millisecond))
		e.fund(t)
		e.signer.sign = func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		_, err := e.c.Execute(ctx, orch, e.register("alice", 0, txid("a")+":0", txid("b")+":1"))
		assert.True(t, core.IsExternal(err))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Len(t, e.states(t), 1)
	})

	t.Run("hung resolver", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		e := newEnv(t, WithExternalTimeout(20*time.Millisecond))
		e.c.identity = resolverFunc(func(context.Context, string) (string, error) {
			<-block
			return "late", nil
		})
		e.fund(t)
		_, err := e.c.Execute(ctx, orch, e.register("alice", 0, txid("a")+":0", txid("b")+":1"))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Len(t, e.states(t), 1)
	})
}

func TestConcurrentExecuteSingleCommit(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.signer.sign = func(context.Context) (string, error) {
		once.Do(func() { close(entered) })
		<-release
		return "signed", nil
	}

	var g errgroup.Group
	var mu sync.Mutex
	var errs []error
	for _, gamer := range []string{"alice", "bob"} {
		req := e.register(gamer, 0, txid("a")+":0", txid("b")+":1")
		g.Go(func() error {
			_, err := e.c.Execute(ctx, orch, req)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return nil
		})
		if gamer == "alice" {
			<-entered
		}
	}
	// bob was either turned away at admission or will validate after alice
	time.Sleep(10 * time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, core.ErrPoolBusy), errors.Is(err, core.ErrStaleNonce):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Len(t, e.states(t), 2)
}

func TestRollbackWhileSigningMakesCandidateStale(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()
	ids := e.chain(t, "alice")

	entered := make(chan struct{})
	release := make(chan struct{})
	e.signer.sign = func(context.Context) (string, error) {
		close(entered)
		<-release
		return "signed", nil
	}

	var g errgroup.Group
	var execErr error
	g.Go(func() error {
		_, execErr = e.c.Execute(ctx, orch, e.register("bob", 1, ids[0]+":1", txid("c")+":1"))
		return nil
	})
	<-entered
	require.NoError(t, e.c.Rollback(ctx, orch, e.poolKey(t), ids[0]))
	close(release)
	require.NoError(t, g.Wait())

	assert.True(t, errors.Is(execErr, core.ErrStaleNonce), "got %v", execErr)
	assert.Len(t, e.states(t), 1)
	for _, gamer := range []string{"alice", "bob"} {
		info, err := e.c.GameInfo(gamer)
		require.NoError(t, err)
		assert.Nil(t, info.Gamer, gamer)
	}
}

func TestEndGameWhileSigningRejectsCommit(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	e.signer.sign = func(context.Context) (string, error) {
		close(entered)
		<-release
		return "signed", nil
	}

	var g errgroup.Group
	var execErr error
	g.Go(func() error {
		_, execErr = e.c.Execute(ctx, orch, e.register("alice", 0, txid("a")+":0", txid("b")+":1"))
		return nil
	})
	<-entered
	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.c.EndGame(ctx, orch))
	close(release)
	require.NoError(t, g.Wait())

	assert.True(t, errors.Is(execErr, core.ErrNotPlaying), "got %v", execErr)
	assert.Len(t, e.states(t), 1)
	info, err := e.c.GameInfo("alice")
	require.NoError(t, err)
	assert.Nil(t, info.Gamer)
}

func TestRollbackRestoresSharedPrincipal(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()
	e.ids.Set("alice", "p-shared")
	e.ids.Set("alice2", "p-shared")
	ids := e.chain(t, "alice", "alice2")

	require.NoError(t, e.c.Rollback(ctx, orch, e.poolKey(t), ids[1]))
	info, err := e.c.GameInfo("alice")
	require.NoError(t, err)
	require.NotNil(t, info.Gamer)

	bal, err := e.c.Claim(ctx, "p-shared")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
	info, err = e.c.GameInfo("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), info.Gamer.Rewards)
}

func TestFinalizeAndRollback(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()
	ids := e.chain(t, "alice", "bob", "carol")
	key := e.poolKey(t)

	assert.True(t, errors.Is(e.c.Finalize(ctx, "mallory", key, ids[1]), core.ErrAccessDenied))
	assert.True(t, errors.Is(e.c.Finalize(ctx, orch, "02deadbeef", ids[1]), core.ErrPoolKeyMismatch))
	assert.True(t, errors.Is(e.c.Rollback(ctx, orch, "02deadbeef", ids[1]), core.ErrPoolKeyMismatch))
	assert.True(t, errors.Is(e.c.Finalize(ctx, orch, key, txid("7")), core.ErrUnknownTransaction))

	require.NoError(t, e.c.Finalize(ctx, orch, key, ids[1]))
	states := e.states(t)
	require.Len(t, states, 2)
	assert.True(t, states[0].HasID(ids[1]))

	fin := e.eventsOf(events.EventTxFinalized)
	require.Len(t, fin, 1)
	assert.Equal(t, []string{ids[0]}, fin[0].Data["pruned"])

	assert.True(t, errors.Is(e.c.Rollback(ctx, orch, key, ids[1]), core.ErrCannotRollbackRoot))

	require.NoError(t, e.c.Rollback(ctx, orch, key, ids[2]))
	assert.Len(t, e.states(t), 1)
	info, err := e.c.GameInfo("carol")
	require.NoError(t, err)
	assert.Nil(t, info.Gamer)
	info, err = e.c.GameInfo("bob")
	require.NoError(t, err)
	assert.NotNil(t, info.Gamer)

	rb := e.eventsOf(events.EventTxRolledBack)
	require.Len(t, rb, 1)
	assert.Equal(t, ids[2], rb[0].TxID)

	// carol may register again on top of the restored head
	_, err = e.c.Execute(ctx, orch, e.register("carol", 2, ids[1]+":1", txid("e")+":1"))
	require.NoError(t, err)
}

func TestFlushFailureRevertsCommit(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()
	req := e.register("alice", 0, txid("a")+":0", txid("b")+":1")

	e.db.Fail = true
	_, err := e.c.Execute(ctx, orch, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrInjected))

	e.db.Fail = false
	assert.Len(t, e.states(t), 1)
	info, err := e.c.GameInfo("alice")
	require.NoError(t, err)
	assert.Nil(t, info.Gamer)

	_, err = e.c.Execute(ctx, orch, req)
	require.NoError(t, err)
}

func TestClaim(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()
	e.chain(t, "alice")

	bal, err := e.c.Claim(ctx, "p-alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)

	_, err = e.c.Claim(ctx, "p-alice")
	var cd *core.CoolingDownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, uint64(startSec+60), cd.RetryAfter)

	e.clock.Advance(time.Minute)
	bal, err = e.c.Claim(ctx, "p-alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bal)

	_, err = e.c.Claim(ctx, "p-bob")
	assert.True(t, errors.Is(err, core.ErrGamerNotFound))

	info, err := e.c.GameInfo("")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), info.Game.ClaimedRewards)

	e.clock.Advance(2 * time.Hour)
	_, err = e.c.Claim(ctx, "p-alice")
	assert.True(t, errors.Is(err, core.ErrNotPlaying))
	assert.Len(t, e.eventsOf(events.EventRewardClaimed), 2)
}

func TestGameStatusTransitions(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()

	assert.True(t, errors.Is(e.c.EndGame(ctx, orch), core.ErrGameNotEnded))
	assert.Empty(t, e.violations)

	e.clock.Advance(3601 * time.Second)
	assert.True(t, errors.Is(e.c.EndGame(ctx, "mallory"), core.ErrAccessDenied))
	require.NoError(t, e.c.EndGame(ctx, orch))

	err := e.c.MarkLiquidityAdded(ctx, orch)
	assert.True(t, errors.Is(err, core.ErrIllegalTransition))
	require.Len(t, e.violations, 1)

	require.NoError(t, e.c.MarkRewardsMinted(ctx, orch))
	require.NoError(t, e.c.MarkLiquidityAdded(ctx, orch))
	st, err := e.c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.PhaseLiquidityAdded, st.Phase)

	assert.Error(t, e.c.OpenWithdrawals(ctx, orch))
	assert.Len(t, e.violations, 2)
	st, err = e.c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.PhaseLiquidityAdded, st.Phase, "failed transition leaves status")
}

func TestWithdrawalsOpenFromEnded(t *testing.T) {
	e := newEnv(t)
	e.fund(t)
	ctx := context.Background()
	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.c.EndGame(ctx, orch))
	require.NoError(t, e.c.OpenWithdrawals(ctx, orch))
	st, err := e.c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.PhaseWithdrawable, st.Phase)
}

func TestDefaultViolationHandlerPanics(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := New(testutil.NewStateDB(), &fakeSigner{key: priv.Key().PubKey()}, identity.NewStatic(nil))
	_, err = c.Init(Setup{RuneID: runeID, Orchestrator: orch})
	require.NoError(t, err)

	assert.Panics(t, func() { _ = c.MarkRewardsMinted(context.Background(), orch) })
}

func TestQueries(t *testing.T) {
	e := newEnv(t)

	_, err := e.c.RegisterInfo()
	assert.True(t, errors.Is(err, core.ErrPoolNotInitialised))

	e.fund(t)
	ids := e.chain(t, "alice")
	key := e.poolKey(t)

	info, err := e.c.PoolInfo(e.address)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, key, info.Key)
	assert.Equal(t, "COOKIE", info.Name)
	assert.Equal(t, uint64(1), info.Nonce)
	assert.Equal(t, uint64(110_000), info.BTCReserved)
	assert.Equal(t, []core.CoinBalance{{ID: runeID, Value: 1_000}}, info.CoinReserved)
	require.Len(t, info.Utxos, 2)
	assert.Equal(t, ids[0], info.Utxos[0].Txid)

	none, err := e.c.PoolInfo("bcrt1pother")
	require.NoError(t, err)
	assert.Nil(t, none)

	list, err := e.c.PoolList("", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = e.c.PoolList("03ffff", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	reg, err := e.c.RegisterInfo()
	require.NoError(t, err)
	assert.Equal(t, key, reg.UntweakedKey)
	assert.Len(t, reg.TweakedKey, 64)
	assert.Equal(t, uint64(1), reg.Nonce)
	assert.Equal(t, ids[0], reg.Utxo.Txid)
	assert.Equal(t, uint64(10_000), reg.RegisterFee)

	assert.Equal(t, uint64(10_000), e.c.MinimalTxValue())
}
