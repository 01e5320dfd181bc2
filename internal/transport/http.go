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

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/fiberplane/mcpcore/internal/log"
	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/mcp/progress"
	"github.com/fiberplane/mcpcore/internal/util"
)

// sseSession is one connected SSE client: events sent to it are queued
// and flushed by the handler goroutine that owns the http.ResponseWriter.
type sseSession struct {
	eventQueue chan string
	done       chan struct{}
}

// sseManager tracks live SSE sessions by id so HandleRaw's progress
// notifications (delivered out of band, from a different goroutine) can
// find the right connection to write to.
type sseManager struct {
	mu       sync.Mutex
	sessions map[string]*sseSession
}

func newSseManager() *sseManager {
	return &sseManager{sessions: make(map[string]*sseSession)}
}

func (m *sseManager) add(id string, s *sseSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
}

func (m *sseManager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *sseManager) get(id string) (*sseSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// HTTP serves a Server over a streamable-HTTP-with-SSE transport. Its
// router registers POST / and GET /sse and is meant to be mounted at /mcp,
// the path its SSE endpoint event advertises: POST /mcp dispatches one
// message and returns its response inline; GET /mcp/sse opens an event
// stream a session's progress notifications are delivered over.
type HTTP struct {
	Server *dispatch.Server
	Logger log.Logger

	// Metrics, if set, is mounted at GET /metrics — typically
	// (*telemetry.Instrumentation).MetricsHandler(). Left nil, no metrics
	// route is registered.
	Metrics http.Handler

	sseManager *sseManager
}

// Router builds the chi router for this transport and wires the
// dispatcher's notification sender to deliver over whichever SSE
// connection matches a dispatch's session id.
func (t *HTTP) Router() chi.Router {
	t.sseManager = newSseManager()
	t.Server.SetNotificationSender(t.send)

	r := chi.NewRouter()
	r.Use(chimiddleware.StripSlashes)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/sse", t.handleSSE)
	r.Post("/", t.handlePost)
	r.Delete("/", func(w http.ResponseWriter, r *http.Request) {})

	if t.Metrics != nil {
		r.Get("/metrics", t.Metrics.ServeHTTP)
	}

	return r
}

func (t *HTTP) send(ctx context.Context, sessionId string, notification progress.Notification, opts progress.SendOptions) error {
	session, ok := t.sseManager.get(sessionId)
	if !ok {
		return fmt.Errorf("transport: no sse session %q", sessionId)
	}
	encoded, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	event := fmt.Sprintf("event: message\ndata: %s\n\n", encoded)
	select {
	case session.eventQueue <- event:
		return nil
	case <-session.done:
		return fmt.Errorf("transport: sse session %q closed", sessionId)
	}
}

func (t *HTTP) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionId := uuid.New().String()
	session := &sseSession{
		eventQueue: make(chan string, 100),
		done:       make(chan struct{}),
	}
	t.sseManager.add(sessionId, session)
	defer t.sseManager.remove(sessionId)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp?sessionId=%s\n\n", sessionId)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case event := <-session.eventQueue:
			fmt.Fprint(w, event)
			flusher.Flush()
		case <-ctx.Done():
			close(session.done)
			return
		}
	}
}

func (t *HTTP) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionId := r.URL.Query().Get("sessionId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	ctx = util.WithLogger(ctx, t.Logger)

	resp, err := t.Server.HandleRaw(ctx, body, dispatch.DispatchOptions{SessionId: sessionId})
	if err != nil {
		t.Logger.Error("dispatch failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
