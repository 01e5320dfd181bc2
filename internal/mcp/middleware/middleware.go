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

// Package middleware implements the onion-model chain the dispatcher runs
// an inbound message through before (and after) the tail handler.
package middleware

import "context"

// Next is the continuation a Middleware calls to advance to the next
// middleware in the chain, or to the tail handler if it is last. Per
// spec.md §4.3, calling Next more than once per invocation is a contract
// error the runner does not guard against.
type Next func(ctx context.Context) error

// Middleware wraps a request. It must call next(ctx) to continue the
// chain; if it returns without calling next, the tail handler never runs.
type Middleware func(ctx context.Context, next Next) error

// Chain composes an ordered list of middlewares around a terminal tail,
// returning a single Next-shaped function that runs the whole pipeline
// starting at index 0. Within one Run, middlewares execute in registration
// order before the tail and, since each middleware's deferred code runs
// after its call to next returns, post-tail code unwinds in reverse
// registration order (the onion model).
func Chain(mws []Middleware, tail func(ctx context.Context) error) Next {
	var run Next
	run = func(ctx context.Context) error {
		return tail(ctx)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := run
		run = func(ctx context.Context) error {
			return mw(ctx, next)
		}
	}
	return run
}
