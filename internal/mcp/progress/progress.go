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

// Package progress binds out-of-band progress notifications back to the
// client request that requested them, per spec.md §4.4 step 2-3 and §9.
package progress

import (
	"context"
	"encoding/json"

	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
)

// Token is the client-supplied opaque progress token. Only strings and
// numbers are valid; anything else must be rejected at extraction time.
type Token = any

// ExtractToken reads params._meta.progressToken, returning nil (and no
// error) when absent. A present-but-invalid-typed token is rejected by
// returning nil, per design note §9: "Non-string/non-number tokens must be
// rejected at extraction".
func ExtractToken(params json.RawMessage) Token {
	if len(params) == 0 {
		return nil
	}
	var pm jsonrpc.ParamsMeta
	if err := json.Unmarshal(params, &pm); err != nil {
		return nil
	}
	switch pm.Meta.ProgressToken.(type) {
	case string, float64, int, int64:
		return pm.Meta.ProgressToken
	default:
		return nil
	}
}

// Update is the payload merged shallow-right over {progressToken} before
// being sent as a notifications/progress notification.
type Update map[string]any

// Sender is the transport-supplied capability used to deliver a
// notification to a specific session. It is a borrowed capability whose
// lifetime equals the server's (spec.md §5, §9).
type Sender func(ctx context.Context, sessionId string, notification Notification, opts SendOptions) error

// Notification is the shape sent for any out-of-band server notification.
type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// SendOptions carries metadata the sender attaches out of band.
type SendOptions struct {
	RelatedRequestId jsonrpc.Id
}

// Func is the bound, context-free progress callback exposed on a request's
// Context — `ctx.progress(update)` in spec.md §3.
type Func func(update Update) error

// Bind constructs a Func capturing {sessionId, token, requestId}, or nil
// if sender, sessionId and token are not all available (spec.md §4.4 step
// 3). The returned Func emits `notifications/progress` with
// `{progressToken, ...update}`.
func Bind(ctx context.Context, sender Sender, sessionId string, token Token, requestId jsonrpc.Id) Func {
	if sender == nil || sessionId == "" || token == nil {
		return nil
	}
	return func(update Update) error {
		params := Update{"progressToken": token}
		for k, v := range update {
			params[k] = v
		}
		return sender(ctx, sessionId, Notification{
			Method: "notifications/progress",
			Params: params,
		}, SendOptions{RelatedRequestId: requestId})
	}
}
