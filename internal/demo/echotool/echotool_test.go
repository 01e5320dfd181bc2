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

package echotool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiberplane/mcpcore/internal/demo/echotool"
	"github.com/fiberplane/mcpcore/internal/mcp/registry"
)

func TestRegister_EchoToolRoundTrip(t *testing.T) {
	reg := registry.New()
	require.NoError(t, echotool.Register(reg))

	entry, ok := reg.LookupTool("echo")
	require.True(t, ok)
	require.NotNil(t, entry.Validator)

	validated, err := entry.Validator(map[string]any{"message": "hi"})
	require.NoError(t, err)

	result, err := entry.Handler(nil, validated.(map[string]any))
	require.NoError(t, err)

	content := result.(map[string]any)["content"].([]map[string]any)
	require.Equal(t, "hi", content[0]["text"])
}

func TestRegister_EchoToolRejectsMissingMessage(t *testing.T) {
	reg := registry.New()
	require.NoError(t, echotool.Register(reg))

	entry, ok := reg.LookupTool("echo")
	require.True(t, ok)

	_, err := entry.Validator(map[string]any{})
	require.Error(t, err)
}

func TestRegister_EchoPromptProducesMessage(t *testing.T) {
	reg := registry.New()
	require.NoError(t, echotool.Register(reg))

	entry, ok := reg.LookupPrompt("echo")
	require.True(t, ok)
	require.Len(t, entry.Metadata.Arguments, 1)
	require.Equal(t, "message", entry.Metadata.Arguments[0].Name)
	require.True(t, entry.Metadata.Arguments[0].Required)

	result, err := entry.Handler(nil, map[string]any{"message": "hi"})
	require.NoError(t, err)

	messages := result.(map[string]any)["messages"].([]map[string]any)
	require.Len(t, messages, 1)
}
