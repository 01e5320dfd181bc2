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

// Package schema unifies JSON Schema documents and Standard-Schema-style
// validators into a single resolved shape the registry can hand to the
// dispatcher, per spec.md §4.2.
package schema

import (
	"fmt"

	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
)

// JSON is a JSON Schema document. Represented as map[string]any so the
// resolver can advertise it to clients without re-marshaling a typed
// struct; property order within it is preserved by the caller's choice of
// an ordered map type when one is needed (see OrderedSchema).
type JSON = map[string]any

// Issue describes a single Standard-Schema validation failure.
type Issue struct {
	Path    string
	Message string
}

// StandardSchemaValidator mirrors the ecosystem-neutral Standard Schema
// `~standard` contract: validate a raw value, returning either the parsed
// value or a list of issues.
type StandardSchemaValidator interface {
	Validate(raw any) (value any, issues []Issue)
}

// Adapter converts a Standard-Schema validator into an advertisable JSON
// Schema document. Supplied by the embedder; the resolver never assumes
// one exists.
type Adapter func(v StandardSchemaValidator) JSON

// ValidatorFunc validates and coerces a raw value, returning INVALID_PARAMS
// on failure.
type ValidatorFunc func(raw any) (any, error)

// Resolved is the uniform shape produced by Resolve: a JSON Schema fit for
// advertising to clients, plus an optional validator to run against
// incoming arguments.
type Resolved struct {
	McpInputSchema JSON
	Validator      ValidatorFunc
}

// defaultSchema is advertised when registration supplied no schema at all.
func defaultSchema() JSON {
	return JSON{"type": "object"}
}

// Resolve implements the tagged-variant resolution of spec.md §4.2 and
// design note §9: JSON Schema input passes through unchanged (no
// validator); a Standard-Schema validator is wrapped into a ValidatorFunc
// and advertised via adapter (or the default object schema if no adapter
// was supplied); missing input defaults to `{type:"object"}` with no
// validator.
func Resolve(input any, adapter Adapter) (Resolved, error) {
	switch v := input.(type) {
	case nil:
		return Resolved{McpInputSchema: defaultSchema()}, nil
	case JSON:
		return Resolved{McpInputSchema: v}, nil
	case StandardSchemaValidator:
		validator := func(raw any) (any, error) {
			value, issues := v.Validate(raw)
			if len(issues) > 0 {
				return nil, jsonrpc.InvalidParams("validation failed", issuesToData(issues))
			}
			return value, nil
		}
		advertised := defaultSchema()
		if adapter != nil {
			advertised = adapter(v)
		}
		return Resolved{McpInputSchema: advertised, Validator: validator}, nil
	default:
		return Resolved{}, fmt.Errorf("schema: unsupported input schema type %T", input)
	}
}

func issuesToData(issues []Issue) any {
	data := make([]map[string]string, 0, len(issues))
	for _, issue := range issues {
		data = append(data, map[string]string{"path": issue.Path, "message": issue.Message})
	}
	return map[string]any{"issues": data}
}

// OrderedSchema pairs a JSON Schema object document with the declaration
// order of its top-level properties. Plain Go maps have no stable
// iteration order, so anything in this core that builds a schema (rather
// than receiving one already decoded from a client message) should track
// order alongside the map using this type, mirroring how the teacher's
// `tools.Parameters` slice preserves registration order end to end.
type OrderedSchema struct {
	Doc   JSON
	Order []string
}

// PromptArgument is a single declared prompt argument, derived from a JSON
// Schema's top-level properties.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ExtractArguments derives a prompt's argument list from a JSON Schema
// object of shape `{type:"object", properties, required?}`, ordered by
// the properties map's insertion order via propertyOrder (since a plain Go
// map has no stable order). Non-object schemas yield no arguments, per
// spec.md §4.2.
func ExtractArguments(doc JSON, propertyOrder []string) []PromptArgument {
	if doc == nil {
		return nil
	}
	if t, _ := doc["type"].(string); t != "object" {
		return nil
	}
	properties, _ := doc["properties"].(map[string]any)
	if properties == nil {
		return nil
	}

	required := make(map[string]bool)
	if reqList, ok := doc["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	} else if reqList, ok := doc["required"].([]string); ok {
		for _, s := range reqList {
			required[s] = true
		}
	}

	names := propertyOrder
	if names == nil {
		for name := range properties {
			names = append(names, name)
		}
	}

	args := make([]PromptArgument, 0, len(names))
	for _, name := range names {
		propAny, ok := properties[name]
		if !ok {
			continue
		}
		var description string
		if prop, ok := propAny.(map[string]any); ok {
			description, _ = prop["description"].(string)
		}
		args = append(args, PromptArgument{
			Name:        name,
			Description: description,
			Required:    required[name],
		})
	}
	return args
}
