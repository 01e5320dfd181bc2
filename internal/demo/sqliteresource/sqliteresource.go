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

// Package sqliteresource wires a `notes://db/{id}` resource_template
// backed by a real SQLite table into a dispatch.Server's registry,
// demonstrating template matching and per-variable validation against an
// actual storage engine rather than an in-memory stub.
package sqliteresource

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	"github.com/fiberplane/mcpcore/internal/mcp/registry"
	"github.com/fiberplane/mcpcore/internal/mcp/schema"
)

// Store owns the SQLite connection backing the notes resource_template.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the notes database at path and
// ensures its schema exists. Pass ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqliteresource: open: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqliteresource: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notes (
			id   TEXT PRIMARY KEY,
			body TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqliteresource: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Seed inserts or replaces a note, for demo bootstrap and tests.
func (s *Store) Seed(ctx context.Context, id, body string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO notes (id, body) VALUES (?, ?)`, id, body)
	return err
}

// idValidator rejects empty ids before a query is ever issued.
func idValidator(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil, jsonrpc.InvalidParams("id must be a non-empty string", nil)
	}
	return s, nil
}

// Register wires the `notes://db/{id}` resource_template into reg,
// reading a single row per request from the backing SQLite table.
func (s *Store) Register(reg *registry.Registry) error {
	return reg.Resource("notes://db/{id}", registry.ResourceOptions{
		Name:        "note",
		Description: "A single note, addressed by id",
		MimeType:    "text/plain",
		Validators: map[string]schema.ValidatorFunc{
			"id": idValidator,
		},
		Handler: s.read,
	})
}

func (s *Store) read(ctx registry.Context, ref registry.ResourceRef, vars map[string]string) (any, error) {
	id := vars["id"]

	var body string
	err := s.db.QueryRow(`SELECT body FROM notes WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, jsonrpc.NewRpcError(jsonrpc.METHOD_NOT_FOUND, fmt.Sprintf("No note with id %q", id), map[string]any{"id": id})
	}
	if err != nil {
		return nil, jsonrpc.InternalError("Failed to read note", map[string]any{"message": err.Error()})
	}

	return map[string]any{
		"contents": []map[string]any{
			{
				"uri":      ref.Href,
				"mimeType": "text/plain",
				"text":     body,
			},
		},
	}, nil
}
