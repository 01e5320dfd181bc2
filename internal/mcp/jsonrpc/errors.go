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

package jsonrpc

import (
	"fmt"
	"runtime/debug"
)

// RpcError is the only first-class error kind the dispatcher understands;
// it serializes to the JSON-RPC `error` object verbatim. Everything else
// crossing a handler boundary is foreign and gets coerced into
// INTERNAL_ERROR by the dispatcher.
type RpcError struct {
	Code    int
	Message string
	Data    any
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRpcError builds an *RpcError.
func NewRpcError(code int, message string, data any) *RpcError {
	return &RpcError{Code: code, Message: message, Data: data}
}

// MethodNotFound builds the standard METHOD_NOT_FOUND error for an unknown
// method, tool, prompt, or resource URI.
func MethodNotFound(data any) *RpcError {
	return NewRpcError(METHOD_NOT_FOUND, "Method not found", data)
}

// InvalidParams builds the standard INVALID_PARAMS error.
func InvalidParams(message string, data any) *RpcError {
	return NewRpcError(INVALID_PARAMS, message, data)
}

// InternalError builds the standard INTERNAL_ERROR error.
func InternalError(message string, data any) *RpcError {
	return NewRpcError(INTERNAL_ERROR, message, data)
}

// AsError converts err to the JSON-RPC Error object, wrapping foreign
// errors under INTERNAL_ERROR per the propagation policy in spec.md §7: a
// foreign error's data carries both `message` and a `stack` (the current
// goroutine's stack at the point the dispatcher caught it, not the
// original throw site — Go errors carry no stack of their own, unlike a
// caught exception, so this is the closest equivalent available without
// requiring every handler to capture one itself).
func AsError(err error) *Error {
	if rpcErr, ok := err.(*RpcError); ok {
		return &Error{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data}
	}
	return &Error{
		Code:    INTERNAL_ERROR,
		Message: "Internal error",
		Data: map[string]any{
			"message": err.Error(),
			"stack":   string(debug.Stack()),
		},
	}
}
