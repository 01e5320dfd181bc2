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
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeMessage parses one inbound transport frame into a BaseMessage.
// JSON-RPC batches (a top-level array) are explicitly rejected — this
// core dispatches exactly one message per call, matching the single
// request/notification model in spec.md §1 rather than the full JSON-RPC
// batch spec.
func DecodeMessage(raw []byte) (BaseMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return BaseMessage{}, NewRpcError(INVALID_REQUEST, "Batch requests are not supported", nil)
	}

	var msg BaseMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return BaseMessage{}, NewRpcError(PARSE_ERROR, "Parse error", map[string]any{"message": err.Error()})
	}
	if msg.Jsonrpc != JSONRPC_VERSION {
		return BaseMessage{}, NewRpcError(INVALID_REQUEST, "Invalid Request", map[string]any{
			"message": fmt.Sprintf("unsupported jsonrpc version %q", msg.Jsonrpc),
		})
	}
	if msg.Method == "" {
		return BaseMessage{}, NewRpcError(INVALID_REQUEST, "Invalid Request", map[string]any{"message": "missing method"})
	}
	return msg, nil
}
