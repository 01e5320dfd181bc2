// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch implements the request→response state machine: the
// "hard part" of spec.md §1 — classifying an inbound JSON-RPC message,
// building a per-request Context, running it through the middleware
// onion, resolving the method handler, and mapping the outcome back to a
// well-formed JSON-RPC response (or suppressing it for notifications).
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	"github.com/fiberplane/mcpcore/internal/mcp/middleware"
	"github.com/fiberplane/mcpcore/internal/mcp/progress"
	"github.com/fiberplane/mcpcore/internal/mcp/registry"
)

// LatestProtocolVersion is the single MCP protocol revision this core
// negotiates, per spec.md §3.
const LatestProtocolVersion = "2025-06-18"

// ServerInfo is the immutable server identity set at construction
// (spec.md §3).
type ServerInfo struct {
	Name    string
	Version string
}

// ErrorHook may override the default error→response mapping (spec.md §4.4
// step 6, §7). Returning a nil *jsonrpc.Error falls through to the
// default policy.
type ErrorHook func(err error, ctx *Context) *jsonrpc.Error

// DispatchOptions carries the small context bag the transport supplies
// per spec.md §1: a session id and opaque auth info.
type DispatchOptions struct {
	SessionId string
	AuthInfo  any
}

// Server is the dispatch core: registry + middleware pipeline + the
// built-in method table. It is transport-neutral — nothing here touches
// a socket, a database, or a file.
type Server struct {
	info ServerInfo
	Reg  *registry.Registry

	mu          sync.Mutex
	mws         []middleware.Middleware
	onError     ErrorHook
	sender      progress.Sender
	initialized bool

	methods map[string]MethodHandler
}

// NewServer builds a Server. ServerInfo is fixed for the server's
// lifetime.
func NewServer(info ServerInfo) *Server {
	s := &Server{
		info: info,
		Reg:  registry.New(),
	}
	s.methods = s.builtinMethods()
	return s
}

// Use appends a middleware to the ordered pipeline (spec.md §4.5).
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mws = append(s.mws, mw)
}

// OnError replaces the single error hook (spec.md §4.5).
func (s *Server) OnError(hook ErrorHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = hook
}

// SetNotificationSender wires the transport-supplied progress sender.
// Lifetime equals the server's (spec.md §4.5, §9).
func (s *Server) SetNotificationSender(sender progress.Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

func (s *Server) snapshot() ([]middleware.Middleware, ErrorHook, progress.Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mws, s.onError, s.sender
}

// HandleRaw decodes one transport frame and dispatches it. Decode failures
// (malformed JSON, a batch array, a missing/wrong jsonrpc version) have no
// reliable request id to respond under, so they are reported as an error
// response with a null id rather than being silently dropped.
func (s *Server) HandleRaw(ctx context.Context, raw []byte, opts DispatchOptions) (*jsonrpc.Response, error) {
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return &jsonrpc.Response{Jsonrpc: jsonrpc.JSONRPC_VERSION, Id: nil, Error: jsonrpc.AsError(err)}, nil
	}
	return s.Dispatch(ctx, msg, opts)
}

// Dispatch turns one inbound JSON-RPC message into a response, or nil for
// a notification (spec.md §4.4, invariants in §8).
func (s *Server) Dispatch(ctx context.Context, msg jsonrpc.BaseMessage, opts DispatchOptions) (*jsonrpc.Response, error) {
	isRequest := msg.HasId()

	mws, onError, sender := s.snapshot()

	token := progress.ExtractToken(msg.Params)
	var requestId jsonrpc.Id
	if isRequest {
		requestId = msg.Id
	}

	rc := &Context{
		Context:   ctx,
		Request:   msg,
		RequestId: requestId,
		SessionId: opts.SessionId,
		AuthInfo:  opts.AuthInfo,
		State:     make(map[string]any),
	}
	rc.Progress = progress.Bind(ctx, sender, opts.SessionId, token, requestId)

	tail := func(c context.Context) error {
		handler, ok := s.lookupMethod(msg.Method)
		if !ok {
			if !isRequest {
				// Unknown method on a notification: null, no error surfaced.
				return nil
			}
			return jsonrpc.MethodNotFound(map[string]any{"method": msg.Method})
		}

		result, err := handler(rc, msg.Params)
		if err != nil {
			return err
		}
		if isRequest {
			rc.Response = jsonrpc.NewResult(requestId, result)
		}
		return nil
	}

	run := middleware.Chain(mws, tail)
	err := runRecovered(run, rc)

	if !isRequest {
		// Invariant (spec.md §8 #2): a notification never produces a
		// response, even when the handler or a middleware throws.
		return nil, nil
	}

	if err != nil {
		return s.mapError(err, rc, onError), nil
	}
	if rc.Response == nil {
		// A middleware returned without calling next, so the tail never
		// stored a response: spec.md §4.3's "No response generated" synthesis.
		return jsonrpc.NewError(requestId, jsonrpc.INTERNAL_ERROR, "No response generated", nil), nil
	}
	return rc.Response, nil
}

// runRecovered runs the middleware chain, converting a panicking handler or
// middleware into a plain error so it flows through the same mapError path
// as any other foreign error instead of crashing the process.
func runRecovered(run middleware.Next, rc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in dispatch chain: %v", r)
		}
	}()
	return run(rc)
}

func (s *Server) mapError(err error, rc *Context, onError ErrorHook) *jsonrpc.Response {
	if onError != nil {
		if rpcErr := func() (rpcErr *jsonrpc.Error) {
			defer func() {
				if r := recover(); r != nil {
					rpcErr = nil
				}
			}()
			return onError(err, rc)
		}(); rpcErr != nil {
			return &jsonrpc.Response{Jsonrpc: jsonrpc.JSONRPC_VERSION, Id: rc.RequestId, Error: rpcErr}
		}
	}
	return &jsonrpc.Response{Jsonrpc: jsonrpc.JSONRPC_VERSION, Id: rc.RequestId, Error: jsonrpc.AsError(err)}
}

// MethodHandler resolves one method's params into a result, or returns an
// error (ideally an *jsonrpc.RpcError; foreign errors are wrapped by the
// dispatcher per spec.md §7).
type MethodHandler func(ctx *Context, params []byte) (any, error)

func (s *Server) lookupMethod(method string) (MethodHandler, bool) {
	if strings.HasPrefix(method, "notifications/") {
		return notificationNoop, true
	}
	h, ok := s.methods[method]
	return h, ok
}

func notificationNoop(ctx *Context, params []byte) (any, error) {
	return map[string]any{}, nil
}
