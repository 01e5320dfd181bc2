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

// Package pgtool registers a "query_rows" tool backed by a real Postgres
// connection pool: schema-validated SQL parameter binding over pgx,
// gated behind the pgtool build tag so the default mcpcore binary never
// requires a reachable Postgres instance at startup.
package pgtool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	"github.com/fiberplane/mcpcore/internal/mcp/registry"
	"github.com/fiberplane/mcpcore/internal/mcp/schema"
)

var inputSchema = schema.JSON{
	"type": "object",
	"properties": map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "SQL query to execute, with $1, $2, ... placeholders",
		},
		"params": map[string]any{
			"type":        "array",
			"description": "Positional values bound to the query's placeholders",
		},
	},
	"required": []string{"query"},
}

func validate(raw any) (any, error) {
	args, ok := raw.(map[string]any)
	if !ok {
		return nil, jsonrpc.InvalidParams("arguments must be an object", nil)
	}
	if _, ok := args["query"].(string); !ok {
		return nil, jsonrpc.InvalidParams("query must be a string", nil)
	}
	return args, nil
}

// Tool wraps a pgxpool.Pool as a registry-ready tool handler.
type Tool struct {
	Pool *pgxpool.Pool
}

// Register wires a "query_rows" tool backed by t.Pool into reg.
func (t *Tool) Register(reg *registry.Registry) error {
	return reg.Tool("query_rows", registry.ToolOptions{
		Description: "Runs a parameterized SQL query against Postgres and returns the matched rows",
		InputSchema: inputSchema,
		Handler:     t.invoke,
	})
}

func (t *Tool) invoke(ctx registry.Context, args map[string]any) (any, error) {
	if _, err := validate(args); err != nil {
		return nil, err
	}
	query, _ := args["query"].(string)
	params, _ := args["params"].([]any)

	rc, _ := ctx.(*dispatch.Context)
	dispatchCtx := context.Background()
	if rc != nil {
		dispatchCtx = rc.Context
	}

	rows, err := t.Pool.Query(dispatchCtx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("pgtool: query failed: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("pgtool: reading row: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, v := range values {
			row[string(fields[i].Name)] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgtool: iterating rows: %w", err)
	}

	return map[string]any{"rows": out}, nil
}

// Open dials a Postgres connection pool for the given DSN.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgtool: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgtool: ping: %w", err)
	}
	return pool, nil
}
