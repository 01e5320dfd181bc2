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

// Package registry holds the server's tool/prompt/resource maps, keyed by
// name or URI template, preserving registration order for listings and for
// resource_template match iteration (spec.md §3, §9).
package registry

import (
	"fmt"
	"sync"

	"github.com/fiberplane/mcpcore/internal/mcp/schema"
	"github.com/fiberplane/mcpcore/internal/mcp/uritemplate"
)

// ToolMetadata is the advertised shape of a tool, returned verbatim by
// tools/list.
type ToolMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema schema.JSON `json:"inputSchema"`
}

// ToolHandler invokes a registered tool with validated arguments.
type ToolHandler func(ctx Context, args map[string]any) (any, error)

// ToolEntry is a single registered tool, per spec.md §3.
type ToolEntry struct {
	Metadata  ToolMetadata
	Handler   ToolHandler
	Validator schema.ValidatorFunc
}

// PromptMetadata is the advertised shape of a prompt.
type PromptMetadata struct {
	Name        string                  `json:"name"`
	Title       string                  `json:"title,omitempty"`
	Description string                  `json:"description,omitempty"`
	Arguments   []schema.PromptArgument `json:"arguments,omitempty"`
}

// PromptHandler invokes a registered prompt with validated arguments.
type PromptHandler func(ctx Context, args map[string]any) (any, error)

// PromptEntry is a single registered prompt.
type PromptEntry struct {
	Metadata  PromptMetadata
	Handler   PromptHandler
	Validator schema.ValidatorFunc
}

// ResourceMetadata is the advertised shape of a resource or
// resource_template. Exactly one of Uri/UriTemplate is set.
type ResourceMetadata struct {
	Uri         string `json:"uri,omitempty"`
	UriTemplate string `json:"uriTemplate,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceRef is the `{href}` argument passed to a resource handler.
type ResourceRef struct {
	Href string
}

// ResourceHandler reads a resource, given the matched/validated template
// variables (empty for a static resource).
type ResourceHandler func(ctx Context, ref ResourceRef, vars map[string]string) (any, error)

// ResourceKind distinguishes a static resource from a resource_template.
type ResourceKind string

const (
	KindResource         ResourceKind = "resource"
	KindResourceTemplate ResourceKind = "resource_template"
)

// ResourceEntry is a single registered resource or resource_template.
type ResourceEntry struct {
	Metadata   ResourceMetadata
	Handler    ResourceHandler
	Validators map[string]schema.ValidatorFunc
	Matcher    *uritemplate.Template // nil for a static resource
	Kind       ResourceKind
}

// Capabilities is the set of capabilities the server advertises in
// `initialize`, set lazily the first time each kind is registered.
type Capabilities struct {
	ToolsListChanged   bool
	PromptsListChanged bool
	Resources          bool
}

// Context is the minimal per-request carrier the registry's handler
// signatures depend on; dispatch.Context satisfies it.
type Context interface {
	Value(key any) any
}

// Registry owns the three insertion-ordered capability maps. It is
// written during setup and read during dispatch (spec.md §5): a host must
// ensure writes are not concurrent with reads of the same kind, though the
// mutex here makes individual operations memory-safe regardless.
type Registry struct {
	mu sync.RWMutex

	toolNames []string
	tools     map[string]ToolEntry

	promptNames []string
	prompts     map[string]PromptEntry

	resourceKeys []string
	resources    map[string]ResourceEntry

	caps Capabilities
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		tools:     make(map[string]ToolEntry),
		prompts:   make(map[string]PromptEntry),
		resources: make(map[string]ResourceEntry),
	}
}

// ToolOptions configures a tool registration.
type ToolOptions struct {
	Description string
	InputSchema any // schema.JSON, schema.StandardSchemaValidator, or nil
	Adapter     schema.Adapter
	Handler     ToolHandler
}

// Tool registers (or replaces) a tool, resolving its schema per spec.md
// §4.2 and enabling the tools capability. Name collisions are
// last-write-wins, per spec.md §4.5.
func (r *Registry) Tool(name string, opts ToolOptions) error {
	resolved, err := schema.Resolve(opts.InputSchema, opts.Adapter)
	if err != nil {
		return fmt.Errorf("registry: tool %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		r.toolNames = append(r.toolNames, name)
	}
	r.tools[name] = ToolEntry{
		Metadata: ToolMetadata{
			Name:        name,
			Description: opts.Description,
			InputSchema: resolved.McpInputSchema,
		},
		Handler:   opts.Handler,
		Validator: resolved.Validator,
	}
	r.caps.ToolsListChanged = true
	return nil
}

// PromptOptions configures a prompt registration.
type PromptOptions struct {
	Title         string
	Description   string
	Arguments     []schema.PromptArgument // pre-built, used verbatim if non-nil
	InputSchema   any                     // used to derive Arguments when Arguments is nil
	PropertyOrder []string
	Adapter       schema.Adapter
	Handler       PromptHandler
}

// Prompt registers (or replaces) a prompt and enables the prompts
// capability, per spec.md §4.5.
func (r *Registry) Prompt(name string, opts PromptOptions) error {
	args := opts.Arguments
	var validator schema.ValidatorFunc

	if args == nil && opts.InputSchema != nil {
		resolved, err := schema.Resolve(opts.InputSchema, opts.Adapter)
		if err != nil {
			return fmt.Errorf("registry: prompt %q: %w", name, err)
		}
		args = schema.ExtractArguments(resolved.McpInputSchema, opts.PropertyOrder)
		validator = resolved.Validator
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.prompts[name]; !exists {
		r.promptNames = append(r.promptNames, name)
	}
	r.prompts[name] = PromptEntry{
		Metadata: PromptMetadata{
			Name:        name,
			Title:       opts.Title,
			Description: opts.Description,
			Arguments:   args,
		},
		Handler:   opts.Handler,
		Validator: validator,
	}
	r.caps.PromptsListChanged = true
	return nil
}

// ResourceOptions configures a resource registration.
type ResourceOptions struct {
	Name        string
	Description string
	MimeType    string
	// Validators maps a template variable name to a validator run on its
	// decoded string value before the handler is invoked.
	Validators map[string]schema.ValidatorFunc
	Handler    ResourceHandler
}

// Resource registers (or replaces) a static resource or resource_template,
// deciding which by the presence of `{` in template (spec.md §4.5), and
// enables the resources capability.
func (r *Registry) Resource(template string, opts ResourceOptions) error {
	entry := ResourceEntry{
		Metadata: ResourceMetadata{
			Name:        opts.Name,
			Description: opts.Description,
			MimeType:    opts.MimeType,
		},
		Handler:    opts.Handler,
		Validators: opts.Validators,
	}

	if uritemplate.IsTemplate(template) {
		matcher, err := uritemplate.Compile(template)
		if err != nil {
			return fmt.Errorf("registry: resource %q: %w", template, err)
		}
		entry.Matcher = matcher
		entry.Kind = KindResourceTemplate
		entry.Metadata.UriTemplate = template
	} else {
		entry.Kind = KindResource
		entry.Metadata.Uri = template
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[template]; !exists {
		r.resourceKeys = append(r.resourceKeys, template)
	}
	r.resources[template] = entry
	r.caps.Resources = true
	return nil
}

// Capabilities returns a snapshot of the server's advertised capabilities.
func (r *Registry) Capabilities() Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps
}

// LookupTool looks up a tool by name.
func (r *Registry) LookupTool(name string) (ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// LookupPrompt looks up a prompt by name.
func (r *Registry) LookupPrompt(name string) (PromptEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.prompts[name]
	return e, ok
}

// ListTools returns tool metadata in insertion order.
func (r *Registry) ListTools() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolMetadata, 0, len(r.toolNames))
	for _, name := range r.toolNames {
		out = append(out, r.tools[name].Metadata)
	}
	return out
}

// ListPrompts returns prompt metadata in insertion order.
func (r *Registry) ListPrompts() []PromptMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptMetadata, 0, len(r.promptNames))
	for _, name := range r.promptNames {
		out = append(out, r.prompts[name].Metadata)
	}
	return out
}

// ListResources returns static resource metadata in insertion order.
func (r *Registry) ListResources() []ResourceMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceMetadata, 0)
	for _, key := range r.resourceKeys {
		e := r.resources[key]
		if e.Kind == KindResource {
			out = append(out, e.Metadata)
		}
	}
	return out
}

// ListResourceTemplates returns resource_template metadata in insertion
// order.
func (r *Registry) ListResourceTemplates() []ResourceMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceMetadata, 0)
	for _, key := range r.resourceKeys {
		e := r.resources[key]
		if e.Kind == KindResourceTemplate {
			out = append(out, e.Metadata)
		}
	}
	return out
}

// MatchResource resolves a URI to a resource entry per spec.md §4.4's
// `resources/read` rule and design note §9: try the exact static URI
// first, then templates in registration order. Returns the matched entry,
// the decoded template variables (nil for a static match), and whether a
// match was found.
func (r *Registry) MatchResource(uri string) (ResourceEntry, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.resources[uri]; ok && e.Kind == KindResource {
		return e, nil, true
	}

	for _, key := range r.resourceKeys {
		e := r.resources[key]
		if e.Kind != KindResourceTemplate {
			continue
		}
		if vars := e.Matcher.Match(uri); vars != nil {
			return e, vars, true
		}
	}
	return ResourceEntry{}, nil, false
}
