package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/exchange"
	"github.com/tolelom/cookiepool/indexer"
	"github.com/tolelom/cookiepool/metrics"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	coord   *exchange.Coordinator
	indexer *indexer.Indexer
	metrics *metrics.Metrics
}

// NewHandler creates an RPC Handler. m may be nil.
func NewHandler(coord *exchange.Coordinator, idx *indexer.Indexer, m *metrics.Metrics) *Handler {
	return &Handler{coord: coord, indexer: idx, metrics: m}
}

type method func(h *Handler, ctx context.Context, caller string, params json.RawMessage) (any, error)

var methods = map[string]method{
	// orchestrator
	"execute_tx":           (*Handler).executeTx,
	"finalize_tx":          (*Handler).finalizeTx,
	"rollback_tx":          (*Handler).rollbackTx,
	"init_key":             (*Handler).initKey,
	"deposit":              (*Handler).deposit,
	"end_game":             (*Handler).endGame,
	"mark_rewards_minted":  (*Handler).markRewardsMinted,
	"mark_liquidity_added": (*Handler).markLiquidityAdded,
	"open_withdrawals":     (*Handler).openWithdrawals,

	// gamers
	"claim": (*Handler).claim,

	// queries
	"get_pool_states":          (*Handler).getPoolStates,
	"get_pool_info":            (*Handler).getPoolInfo,
	"get_pool_list":            (*Handler).getPoolList,
	"get_game_and_gamer_infos": (*Handler).getGameAndGamer,
	"get_register_info":        (*Handler).getRegisterInfo,
	"get_minimal_tx_value":     (*Handler).getMinimalTxValue,
	"get_status":               (*Handler).getStatus,
	"get_tx_status":            (*Handler).getTxStatus,
	"get_gamer_txs":            (*Handler).getGamerTxs,
}

// Dispatch routes an RPC request from caller to the correct method.
// caller is the principal the request authenticated as, or empty.
func (h *Handler) Dispatch(ctx context.Context, caller string, req Request) Response {
	m, ok := methods[req.Method]
	var (
		result any
		err    error
	)
	if ok {
		result, err = m(h, ctx, caller, req.Params)
	} else {
		err = fmt.Errorf("%w: %q", errMethodNotFound, req.Method)
	}

	if h.metrics != nil {
		label := req.Method
		if !ok {
			label = "unknown"
		}
		h.metrics.RPCRequests.WithLabelValues(label, metrics.Result(err)).Inc()
	}
	if err != nil {
		rpcErr := toError(err)
		if rpcErr.Code == CodeInternalError {
			logger().WithField("method", req.Method).WithError(err).Error("request failed")
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return okResponse(req.ID, result)
}

// decode unmarshals params into v. Absent params leave v at its zero value.
func decode(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &paramsError{err}
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return &paramsError{fmt.Errorf("%s is required", name)}
	}
	return nil
}

type txParams struct {
	PoolKey string `json:"pool_key"`
	Txid    string `json:"txid"`
}

func (h *Handler) executeTx(ctx context.Context, caller string, params json.RawMessage) (any, error) {
	var req core.ExecuteRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if err := required("psbt_hex", req.TxHex); err != nil {
		return nil, err
	}
	signed, err := h.coord.Execute(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	return map[string]string{"signed_psbt": signed}, nil
}

func (h *Handler) finalizeTx(ctx context.Context, caller string, params json.RawMessage) (any, error) {
	var p txParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := required("txid", p.Txid); err != nil {
		return nil, err
	}
	if err := h.coord.Finalize(ctx, caller, p.PoolKey, p.Txid); err != nil {
		return nil, err
	}
	return map[string]string{"txid": p.Txid}, nil
}

func (h *Handler) rollbackTx(ctx context.Context, caller string, params json.RawMessage) (any, error) {
	var p txParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := required("txid", p.Txid); err != nil {
		return nil, err
	}
	if err := h.coord.Rollback(ctx, caller, p.PoolKey, p.Txid); err != nil {
		return nil, err
	}
	return map[string]string{"txid": p.Txid}, nil
}

func (h *Handler) initKey(ctx context.Context, caller string, _ json.RawMessage) (any, error) {
	ex, err := h.coord.Exchange()
	if err != nil {
		return nil, err
	}
	if caller != ex.Orchestrator {
		return nil, fmt.Errorf("%w: %q is not the orchestrator", core.ErrAccessDenied, caller)
	}
	addr, err := h.coord.InitKey(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"address": addr}, nil
}

func (h *Handler) deposit(ctx context.Context, caller string, params json.RawMessage) (any, error) {
	var p struct {
		RuneUtxo core.Utxo `json:"rune_utxo"`
		BTCUtxo  core.Utxo `json:"btc_utxo"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := h.coord.Deposit(ctx, caller, p.RuneUtxo, p.BTCUtxo); err != nil {
		return nil, err
	}
	return h.coord.Status()
}

func (h *Handler) claim(ctx context.Context, caller string, _ json.RawMessage) (any, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: anonymous caller", core.ErrAccessDenied)
	}
	balance, err := h.coord.Claim(ctx, caller)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"balance": balance}, nil
}

func (h *Handler) endGame(ctx context.Context, caller string, _ json.RawMessage) (any, error) {
	return h.statusAfter(h.coord.EndGame(ctx, caller))
}

func (h *Handler) markRewardsMinted(ctx context.Context, caller string, _ json.RawMessage) (any, error) {
	return h.statusAfter(h.coord.MarkRewardsMinted(ctx, caller))
}

func (h *Handler) markLiquidityAdded(ctx context.Context, caller string, _ json.RawMessage) (any, error) {
	return h.statusAfter(h.coord.MarkLiquidityAdded(ctx, caller))
}

func (h *Handler) openWithdrawals(ctx context.Context, caller string, _ json.RawMessage) (any, error) {
	return h.statusAfter(h.coord.OpenWithdrawals(ctx, caller))
}

func (h *Handler) statusAfter(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return h.coord.Status()
}

func (h *Handler) getPoolStates(context.Context, string, json.RawMessage) (any, error) {
	return h.coord.PoolStates()
}

func (h *Handler) getPoolInfo(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var p struct {
		Address string `json:"address"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := required("address", p.Address); err != nil {
		return nil, err
	}
	return h.coord.PoolInfo(p.Address)
}

func (h *Handler) getPoolList(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var p struct {
		From  string `json:"from"`
		Limit int    `json:"limit"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.Limit < 0 {
		return nil, &paramsError{errors.New("limit must not be negative")}
	}
	return h.coord.PoolList(p.From, p.Limit)
}

func (h *Handler) getGameAndGamer(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var p struct {
		Gamer string `json:"gamer"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return h.coord.GameInfo(p.Gamer)
}

func (h *Handler) getRegisterInfo(context.Context, string, json.RawMessage) (any, error) {
	return h.coord.RegisterInfo()
}

func (h *Handler) getMinimalTxValue(context.Context, string, json.RawMessage) (any, error) {
	return h.coord.MinimalTxValue(), nil
}

func (h *Handler) getStatus(context.Context, string, json.RawMessage) (any, error) {
	return h.coord.Status()
}

func (h *Handler) getTxStatus(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var p struct {
		Txid string `json:"txid"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := required("txid", p.Txid); err != nil {
		return nil, err
	}
	return h.indexer.GetTxStatus(p.Txid)
}

func (h *Handler) getGamerTxs(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var p struct {
		Gamer string `json:"gamer"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := required("gamer", p.Gamer); err != nil {
		return nil, err
	}
	return h.indexer.GetTxsByGamer(p.Gamer)
}
