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

package uritemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTemplate(t *testing.T) {
	assert.True(t, IsTemplate("github://repos/{owner}/{repo}"))
	assert.False(t, IsTemplate("github://repos/a/b"))
}

func TestCompileAndMatch(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		uri      string
		wantVars map[string]string
		wantNil  bool
	}{
		{
			name:     "two vars separated by literal",
			tmpl:     "github://repos/{owner}/{repo}",
			uri:      "github://repos/a/b",
			wantVars: map[string]string{"owner": "a", "repo": "b"},
		},
		{
			name:    "trailing slash is literal",
			tmpl:    "notes://db/{id}/",
			uri:     "notes://db/42",
			wantNil: true,
		},
		{
			name:     "trailing slash matches when present",
			tmpl:     "notes://db/{id}/",
			uri:      "notes://db/42/",
			wantVars: map[string]string{"id": "42"},
		},
		{
			name:    "variable does not span a path segment",
			tmpl:    "notes://db/{id}",
			uri:     "notes://db/42/extra",
			wantNil: true,
		},
		{
			name:     "percent-decoded value",
			tmpl:     "notes://db/{id}",
			uri:      "notes://db/a%2Fb",
			wantVars: map[string]string{"id": "a/b"},
		},
		{
			name:    "no match",
			tmpl:    "notes://db/{id}",
			uri:     "files://db/42",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Compile(tt.tmpl)
			require.NoError(t, err)
			got := tmpl.Match(tt.uri)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.wantVars, got)
		})
	}
}

func TestCompileRejectsDuplicateVars(t *testing.T) {
	_, err := Compile("github://repos/{owner}/{owner}")
	require.Error(t, err)
}

func TestCompileRejectsEmptyVarName(t *testing.T) {
	_, err := Compile("github://repos/{}/repo")
	require.Error(t, err)
}

func TestRenderMatchRoundTrip(t *testing.T) {
	tmpl, err := Compile("github://repos/{owner}/{repo}")
	require.NoError(t, err)

	vars := map[string]string{"owner": "a", "repo": "b"}
	uri, err := tmpl.Render(vars)
	require.NoError(t, err)

	got := tmpl.Match(uri)
	assert.Equal(t, vars, got)
}

func TestVariablesOrderPreserved(t *testing.T) {
	tmpl, err := Compile("x://{b}/{a}/{c}")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, tmpl.Variables())
}
