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

// Package transport carries the dispatch core across a stdio or HTTP/SSE
// boundary: reading newline-delimited JSON-RPC messages and routing
// responses and progress notifications back to whichever channel a given
// session arrived on.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fiberplane/mcpcore/internal/log"
	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/util"
)

// stdioSessionId is the fixed session id used for a stdio connection —
// there is only ever one client on the other end of stdin/stdout, so a
// generated id would add nothing a constant doesn't already give.
const stdioSessionId = "stdio"

// Stdio serves a Server over newline-delimited JSON-RPC messages read
// from in and written to out, per line, until in reaches EOF or ctx is
// canceled.
type Stdio struct {
	Server *dispatch.Server
	Logger log.Logger
}

// Serve reads one JSON-RPC message per line from in, dispatches it, and
// writes any response (never written for a notification) to out followed
// by a newline.
func (t *Stdio) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx = util.WithLogger(ctx, t.Logger)
	reader := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := readLine(ctx, reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}

		resp, err := t.Server.HandleRaw(ctx, line, dispatch.DispatchOptions{SessionId: stdioSessionId})
		if err != nil {
			t.Logger.Error("dispatch failed", "error", err)
			continue
		}
		if resp == nil {
			continue
		}

		encoded, err := json.Marshal(resp)
		if err != nil {
			t.Logger.Error("failed to encode response", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", encoded); err != nil {
			return err
		}
	}
}

// readLine reads one line, respecting ctx cancellation even mid-read
// (bufio.Reader.ReadString blocks with no cancellation hook of its own).
func readLine(ctx context.Context, reader *bufio.Reader) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		done <- result{line: []byte(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil && r.err != io.EOF {
			return nil, r.err
		}
		trimmed := trimNewline(r.line)
		if len(trimmed) == 0 && r.err == io.EOF {
			return nil, io.EOF
		}
		return trimmed, nil
	}
}

func trimNewline(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return b[:n]
}
