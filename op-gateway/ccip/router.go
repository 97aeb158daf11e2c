// Package ccip dispatches CCIP-Read (EIP-3668) lookups to typed function handlers by selector.
package ccip

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// Request is an inbound lookup: calldata for a function of the sender contract,
// answered against the L2 chain of the given portal.
type Request struct {
	Portal common.Address
	MinAge uint64
	Sender common.Address
	Data   []byte
}

// Response is the JSON answer of a lookup, with the HTTP status to serve it with.
type Response struct {
	Status int
	Body   ResponseBody
}

type ResponseBody struct {
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandlerFunc answers a decoded call with one value per function output.
type HandlerFunc func(ctx context.Context, args []Value, req *Request) ([]Value, error)

// Handler binds a function of a contract ABI, by method name or canonical signature, to its HandlerFunc.
type Handler struct {
	Function string
	Fn       HandlerFunc
}

type entry struct {
	method abi.Method
	fn     HandlerFunc
}

type Metricer interface {
	RecordDispatch(selector string, status int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordDispatch(string, int, time.Duration) {}

type RouterOption func(r *Router)

// WithOverwrite lets a registration replace the handler of an already registered selector.
func WithOverwrite() RouterOption {
	return func(r *Router) {
		r.overwrite = true
	}
}

func WithMetrics(m Metricer) RouterOption {
	return func(r *Router) {
		r.m = m
	}
}

// Router is a selector to handler table.
type Router struct {
	log       log.Logger
	m         Metricer
	overwrite bool

	mu       sync.RWMutex
	handlers map[[4]byte]*entry
}

func NewRouter(log log.Logger, opts ...RouterOption) *Router {
	r := &Router{
		log:      log,
		m:        noopMetrics{},
		handlers: make(map[[4]byte]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func findMethod(contract *abi.ABI, function string) (abi.Method, bool) {
	if m, ok := contract.Methods[function]; ok {
		return m, true
	}
	for _, m := range contract.Methods {
		if m.Sig == function {
			return m, true
		}
	}
	return abi.Method{}, false
}

// Register adds the handlers of functions of the given contract.
// Either all handlers are registered, or none when an error is returned.
func (r *Router) Register(contract abi.ABI, handlers ...Handler) error {
	entries := make(map[[4]byte]*entry, len(handlers))
	for _, h := range handlers {
		method, ok := findMethod(&contract, h.Function)
		if !ok {
			return &FunctionNotFoundError{Function: h.Function}
		}
		sel := [4]byte(method.ID)
		if _, dup := entries[sel]; dup && !r.overwrite {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicateSelector, hexutil.Encode(sel[:]), method.Sig)
		}
		entries[sel] = &entry{method: method, fn: h.Fn}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.overwrite {
		for sel, e := range entries {
			if _, dup := r.handlers[sel]; dup {
				return fmt.Errorf("%w: %s (%s)", ErrDuplicateSelector, hexutil.Encode(sel[:]), e.method.Sig)
			}
		}
	}
	for sel, e := range entries {
		r.handlers[sel] = e
		r.log.Debug("Registered function handler", "selector", hexutil.Encode(sel[:]), "function", e.method.Sig)
	}
	return nil
}

// selectorOf returns the lower-case hex of the first 4 bytes of the calldata, or all of it if shorter.
func selectorOf(data []byte) string {
	return "0x" + hex.EncodeToString(data[:min(4, len(data))])
}

func errorResponse(status int, msg string) Response {
	return Response{Status: status, Body: ResponseBody{Message: msg}}
}

// Dispatch answers the request with the handler registered for its selector.
// Caller mistakes map to 4xx statuses. Handler failures are logged and served as a plain 500.
func (r *Router) Dispatch(ctx context.Context, req *Request) Response {
	start := time.Now()
	sel := selectorOf(req.Data)
	resp, label := r.dispatch(ctx, sel, req)
	r.m.RecordDispatch(label, resp.Status, time.Since(start))
	r.log.Debug("Dispatched lookup", "selector", sel, "sender", req.Sender, "portal", req.Portal,
		"status", resp.Status, "duration", time.Since(start))
	return resp
}

func (r *Router) dispatch(ctx context.Context, sel string, req *Request) (resp Response, label string) {
	var h *entry
	if len(req.Data) >= 4 {
		r.mu.RLock()
		h = r.handlers[[4]byte(req.Data[:4])]
		r.mu.RUnlock()
	}
	if h == nil {
		// unregistered selectors are not used as metric label, anyone can make them up
		return errorResponse(http.StatusNotFound, "No implementation for function with selector "+sel), "unknown"
	}

	args, err := Decode(h.method.Inputs, req.Data[4:])
	if err != nil {
		r.log.Debug("Failed to decode calldata", "selector", sel, "err", err)
		return errorResponse(http.StatusBadRequest, http.StatusText(http.StatusBadRequest)), sel
	}

	outputs, err := r.invoke(ctx, h, args, req)
	if err != nil {
		r.log.Error("Function handler failed", "function", h.method.Sig, "sender", req.Sender, "portal", req.Portal, "err", err)
		return errorResponse(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)), sel
	}

	if len(h.method.Outputs) == 0 {
		return Response{Status: http.StatusOK, Body: ResponseBody{Data: "0x"}}, sel
	}
	data, err := Encode(h.method.Outputs, outputs)
	if err != nil {
		r.log.Error("Failed to encode handler outputs", "function", h.method.Sig, "err", err)
		return errorResponse(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)), sel
	}
	return Response{Status: http.StatusOK, Body: ResponseBody{Data: hexutil.Encode(data)}}, sel
}

func (r *Router) invoke(ctx context.Context, h *entry, args []Value, req *Request) (out []Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.fn(ctx, args, req)
}
