// Package rpc exposes the exchange coordinator via a JSON-RPC 2.0 HTTP
// endpoint, a websocket event stream and a metrics endpoint.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/cookiepool/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
)

// Application error codes, one per error class.
const (
	CodeValidation = -32001
	CodeAccess     = -32002
	CodeBusy       = -32003
	CodeIntegrity  = -32004
	CodeGameRule   = -32005
	CodeExternal   = -32006
	CodeArithmetic = -32007
	CodeNotFound   = -32008
	CodeContract   = -32009
)

var errMethodNotFound = errors.New("method not found")

// paramsError marks a request whose params could not be decoded.
type paramsError struct{ err error }

func (e *paramsError) Error() string { return "params: " + e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// toError maps err onto a JSON-RPC error object. Retry hints travel in Data.
func toError(err error) *Error {
	e := &Error{Code: CodeInternalError, Message: err.Error()}

	var perr *paramsError
	var stale *core.StaleNonceError
	var cooling *core.CoolingDownError
	switch {
	case errors.Is(err, errMethodNotFound):
		e.Code = CodeMethodNotFound
	case errors.As(err, &perr):
		e.Code = CodeInvalidParams
	case errors.As(err, &stale):
		e.Code = CodeValidation
		e.Data = map[string]uint64{"current_nonce": stale.Current}
	case errors.As(err, &cooling):
		e.Code = CodeGameRule
		e.Data = map[string]uint64{"retry_after": cooling.RetryAfter}
	case core.IsExternal(err):
		e.Code = CodeExternal
	case core.IsValidation(err):
		e.Code = CodeValidation
	case core.IsAccess(err):
		e.Code = CodeAccess
	case core.IsConcurrency(err):
		e.Code = CodeBusy
	case core.IsIntegrity(err):
		e.Code = CodeIntegrity
	case core.IsGameRule(err):
		e.Code = CodeGameRule
	case core.IsArithmetic(err):
		e.Code = CodeArithmetic
	case errors.Is(err, core.ErrIllegalTransition):
		e.Code = CodeContract
	case errors.Is(err, core.ErrNotFound):
		e.Code = CodeNotFound
	}
	return e
}
