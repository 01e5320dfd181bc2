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

// Package ratelimit implements a Redis-backed fixed-window rate limiter as
// a dispatch middleware, one window per session id.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/mcp/jsonrpc"
	dispatchmw "github.com/fiberplane/mcpcore/internal/mcp/middleware"
	"github.com/fiberplane/mcpcore/internal/serverconfig"
)

// rateLimitExceededCode falls in JSON-RPC's implementation-defined
// server-error range (-32099..-32000); the dispatcher treats any
// *jsonrpc.RpcError as a first-class error regardless of its code.
const rateLimitExceededCode = -32029

// Limiter enforces RequestsPerSecond+Burst dispatches per session id, per
// one-second window, using a Redis INCR+EXPIRE fixed window keyed by
// session id.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// New constructs a Limiter from a standalone Redis connection per
// serverconfig.RateLimitConfig. A RequestsPerSecond of 0 means unlimited
// (the middleware becomes a no-op pass-through), matching the "disabled"
// default in serverconfig.
func New(cfg serverconfig.RateLimitConfig) *Limiter {
	limit := cfg.RequestsPerSecond + cfg.Burst
	if cfg.RequestsPerSecond <= 0 {
		limit = 0
	}
	return &Limiter{
		client: redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		}),
		limit:  limit,
		window: time.Second,
	}
}

// Ping verifies the Redis connection, surfaced so callers can fail fast at
// startup instead of on the first dispatched request.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (l *Limiter) Close() error {
	return l.client.Close()
}

// Middleware builds the onion-model middleware. It reads the session id
// off the dispatch context; requests with no session id are never rate
// limited, since there is nothing to key a per-session window on.
func (l *Limiter) Middleware() dispatchmw.Middleware {
	return func(ctx context.Context, next dispatchmw.Next) error {
		if l.limit <= 0 {
			return next(ctx)
		}

		rc, ok := ctx.(*dispatch.Context)
		sessionId := ""
		if ok {
			sessionId = rc.SessionId
		}
		if sessionId == "" {
			return next(ctx)
		}

		key := fmt.Sprintf("mcpcore:ratelimit:%s", sessionId)
		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: a Redis outage should not take the whole server
			// down with it.
			return next(ctx)
		}
		if count == 1 {
			l.client.Expire(ctx, key, l.window)
		}
		if int(count) > l.limit {
			return rateLimitExceeded(sessionId)
		}
		return next(ctx)
	}
}

func rateLimitExceeded(sessionId string) error {
	return jsonrpc.NewRpcError(rateLimitExceededCode, "Rate limit exceeded", map[string]any{"sessionId": sessionId})
}
