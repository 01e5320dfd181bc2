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

// Package echotool registers the smallest possible tool and prompt pair —
// "echo" — demonstrating tool input validation, prompt argument
// extraction and progress-token plumbing without pulling in a real
// backend.
package echotool

import (
	"fmt"

	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	"github.com/fiberplane/mcpcore/internal/mcp/registry"
	"github.com/fiberplane/mcpcore/internal/mcp/schema"
)

var inputSchema = schema.JSON{
	"type": "object",
	"properties": map[string]any{
		"message": map[string]any{
			"type":        "string",
			"description": "Text to echo back",
		},
	},
	"required": []string{"message"},
}

func messageValidator(raw any) (any, error) {
	args, ok := raw.(map[string]any)
	if !ok {
		return nil, jsonrpc.InvalidParams("arguments must be an object", nil)
	}
	msg, ok := args["message"].(string)
	if !ok || msg == "" {
		return nil, jsonrpc.InvalidParams("message must be a non-empty string", nil)
	}
	return args, nil
}

type validatorAdapter struct{}

func (validatorAdapter) Validate(raw any) (any, []schema.Issue) {
	if value, err := messageValidator(raw); err == nil {
		return value, nil
	}
	return nil, []schema.Issue{{Path: "message", Message: "must be a non-empty string"}}
}

func adapt(schema.StandardSchemaValidator) schema.JSON { return inputSchema }

// Register wires the echo tool and echo prompt into reg. The tool reports
// progress twice through ctx.Progress when a progress token was supplied
// by the caller, purely to exercise that plumbing end to end.
func Register(reg *registry.Registry) error {
	if err := reg.Tool("echo", registry.ToolOptions{
		Description: "Echoes the given message back to the caller",
		InputSchema: validatorAdapter{},
		Adapter:     adapt,
		Handler:     invokeEcho,
	}); err != nil {
		return err
	}

	return reg.Prompt("echo", registry.PromptOptions{
		Description:   "Produces a prompt that asks the model to repeat a message",
		InputSchema:   inputSchema,
		PropertyOrder: []string{"message"},
		Handler:       promptEcho,
	})
}

func invokeEcho(ctx registry.Context, args map[string]any) (any, error) {
	message, _ := args["message"].(string)

	if rc, ok := ctx.(*dispatch.Context); ok && rc.Progress != nil {
		_ = rc.Progress(map[string]any{"progress": 0, "total": 1})
		_ = rc.Progress(map[string]any{"progress": 1, "total": 1})
	}

	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": message},
		},
	}, nil
}

func promptEcho(ctx registry.Context, args map[string]any) (any, error) {
	message, _ := args["message"].(string)
	return map[string]any{
		"messages": []map[string]any{
			{
				"role": "user",
				"content": map[string]any{
					"type": "text",
					"text": fmt.Sprintf("Please repeat back exactly: %s", message),
				},
			},
		},
	}, nil
}
