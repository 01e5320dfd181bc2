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

package dispatch

import (
	"context"

	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	"github.com/fiberplane/mcpcore/internal/mcp/progress"
	"github.com/fiberplane/mcpcore/internal/mcp/schema"
)

// Context is the per-request value built fresh for every Dispatch call
// (spec.md §3). Its lifetime equals one dispatch; it carries no shared
// buffers.
type Context struct {
	context.Context

	// Request is the raw decoded message this context was built for.
	Request jsonrpc.BaseMessage
	// RequestId is nil for notifications.
	RequestId jsonrpc.Id
	SessionId string
	AuthInfo  any

	// State is a freely mutable bag middlewares and handlers can use to
	// pass data down/up the chain.
	State map[string]any

	// Progress is present only when a progress token, session id and
	// transport sender were all available at dispatch time.
	Progress progress.Func

	// Response is filled in by the tail handler; the dispatcher reads it
	// back out once the middleware chain returns.
	Response *jsonrpc.Response
}

// Validate runs a resolved validator against value, per spec.md §3's
// `ctx.validate(validator, value)` closure. It is just a thin pass-through
// so handlers have one call-site regardless of how a validator suspends.
func (c *Context) Validate(validator schema.ValidatorFunc, value any) (any, error) {
	if validator == nil {
		return value, nil
	}
	return validator(value)
}

// Value implements registry.Context so handler signatures in that package
// can operate on a *Context without an import cycle.
func (c *Context) Value(key any) any {
	if v, ok := c.State[keyToString(key)]; ok {
		return v
	}
	return c.Context.Value(key)
}

func keyToString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return ""
}
