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

//go:build pgtool

package pgtool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_RequiresQueryString(t *testing.T) {
	_, err := validate(map[string]any{"params": []any{1}})
	require.Error(t, err)
}

func TestValidate_AcceptsQueryOnly(t *testing.T) {
	got, err := validate(map[string]any{"query": "select 1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"query": "select 1"}, got)
}

func TestValidate_RejectsNonObject(t *testing.T) {
	_, err := validate("not an object")
	require.Error(t, err)
}
