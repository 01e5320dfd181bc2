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
	"encoding/json"
	"fmt"

	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	"github.com/fiberplane/mcpcore/internal/mcp/registry"
)

// builtinMethods returns the fixed method table every Server starts with.
// Embedders add domain methods through Registry, not this table.
func (s *Server) builtinMethods() map[string]MethodHandler {
	return map[string]MethodHandler{
		"initialize":               s.handleInitialize,
		"ping":                     s.handlePing,
		"tools/list":               s.handleToolsList,
		"tools/call":               s.handleToolsCall,
		"prompts/list":             s.handlePromptsList,
		"prompts/get":              s.handlePromptsGet,
		"resources/list":           s.handleResourcesList,
		"resources/templates/list": s.handleResourceTemplatesList,
		"resources/read":           s.handleResourcesRead,
		"resources/subscribe":      notImplemented,
		"resources/unsubscribe":    notImplemented,
		"completion/complete":      notImplemented,
		"logging/setLevel":         s.handleLoggingSetLevel,
	}
}

func notImplemented(ctx *Context, params []byte) (any, error) {
	return nil, jsonrpc.InternalError("Not implemented", nil)
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	Capabilities    any    `json:"capabilities,omitempty"`
	ClientInfo      any    `json:"clientInfo,omitempty"`
}

// handleInitialize negotiates the protocol version and marks the server
// initialized, per spec.md §4.4's initialize handling and §7's
// PROTOCOL_VERSION_MISMATCH case.
func (s *Server) handleInitialize(ctx *Context, params []byte) (any, error) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams("Invalid initialize params", map[string]any{"message": err.Error()})
		}
	}

	if p.ProtocolVersion != "" && p.ProtocolVersion != LatestProtocolVersion {
		return nil, jsonrpc.NewRpcError(jsonrpc.PROTOCOL_VERSION_MISMATCH, "Unsupported protocol version", map[string]any{
			"supportedVersion": LatestProtocolVersion,
			"requestedVersion": p.ProtocolVersion,
		})
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	return map[string]any{
		"protocolVersion": LatestProtocolVersion,
		"serverInfo": map[string]any{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
		"capabilities": s.advertisedCapabilities(),
	}, nil
}

func (s *Server) advertisedCapabilities() map[string]any {
	caps := s.Reg.Capabilities()
	out := map[string]any{}
	if caps.ToolsListChanged {
		out["tools"] = map[string]any{"listChanged": true}
	}
	if caps.PromptsListChanged {
		out["prompts"] = map[string]any{"listChanged": true}
	}
	if caps.Resources {
		out["resources"] = map[string]any{}
	}
	return out
}

func (s *Server) handlePing(ctx *Context, params []byte) (any, error) {
	return map[string]any{}, nil
}

func (s *Server) handleToolsList(ctx *Context, params []byte) (any, error) {
	return map[string]any{"tools": s.Reg.ListTools()}, nil
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx *Context, params []byte) (any, error) {
	var p toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams("Invalid tools/call params", map[string]any{"message": err.Error()})
		}
	}

	entry, ok := s.Reg.LookupTool(p.Name)
	if !ok {
		return nil, jsonrpc.MethodNotFound(map[string]any{"name": p.Name})
	}

	args := p.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if entry.Validator != nil {
		validated, err := ctx.Validate(entry.Validator, args)
		if err != nil {
			return nil, err
		}
		if m, ok := validated.(map[string]any); ok {
			args = m
		}
	}

	return entry.Handler(ctx, args)
}

func (s *Server) handlePromptsList(ctx *Context, params []byte) (any, error) {
	return map[string]any{"prompts": s.Reg.ListPrompts()}, nil
}

type promptGetParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handlePromptsGet(ctx *Context, params []byte) (any, error) {
	var p promptGetParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams("Invalid prompts/get params", map[string]any{"message": err.Error()})
		}
	}

	entry, ok := s.Reg.LookupPrompt(p.Name)
	if !ok {
		return nil, jsonrpc.InvalidParams("Unknown prompt", map[string]any{"name": p.Name})
	}

	args := p.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if entry.Validator != nil {
		validated, err := ctx.Validate(entry.Validator, args)
		if err != nil {
			return nil, err
		}
		if m, ok := validated.(map[string]any); ok {
			args = m
		}
	}

	return entry.Handler(ctx, args)
}

func (s *Server) handleResourcesList(ctx *Context, params []byte) (any, error) {
	return map[string]any{"resources": s.Reg.ListResources()}, nil
}

func (s *Server) handleResourceTemplatesList(ctx *Context, params []byte) (any, error) {
	return map[string]any{"resourceTemplates": s.Reg.ListResourceTemplates()}, nil
}

type resourcesReadParams struct {
	Uri string `json:"uri"`
}

// handleResourcesRead matches a URI against the registry's static
// resources first, then resource_templates in registration order
// (spec.md §4.4, §9), validates any decoded template variables, and
// invokes the matched handler.
func (s *Server) handleResourcesRead(ctx *Context, params []byte) (any, error) {
	var p resourcesReadParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams("Invalid resources/read params", map[string]any{"message": err.Error()})
		}
	}

	entry, vars, ok := s.Reg.MatchResource(p.Uri)
	if !ok {
		return nil, jsonrpc.MethodNotFound(map[string]any{"uri": p.Uri})
	}

	validatedVars := vars
	if entry.Validators != nil && len(vars) > 0 {
		validatedVars = make(map[string]string, len(vars))
		for k, v := range vars {
			validatedVars[k] = v
		}
		for name, validator := range entry.Validators {
			raw, present := vars[name]
			if !present {
				continue
			}
			value, err := ctx.Validate(validator, raw)
			if err != nil {
				return nil, jsonrpc.InvalidParams(
					fmt.Sprintf("Validation failed for parameter '%s': %s", name, errMessage(err)),
					map[string]any{"parameter": name},
				)
			}
			if s, ok := value.(string); ok {
				validatedVars[name] = s
			}
		}
	}

	return entry.Handler(ctx, registry.ResourceRef{Href: p.Uri}, validatedVars)
}

func errMessage(err error) string {
	if rpcErr, ok := err.(*jsonrpc.RpcError); ok {
		return rpcErr.Message
	}
	return err.Error()
}

func (s *Server) handleLoggingSetLevel(ctx *Context, params []byte) (any, error) {
	return map[string]any{}, nil
}
