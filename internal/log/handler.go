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

package log

import (
	"fmt"
	"io"
	"log/slog"
)

// NewValueTextHandler builds a slog.Handler that renders attribute values
// with fmt's %v instead of slog's default %+v-ish struct dump, so a
// logged struct or slice reads as a single compact token rather than a
// multi-line value that breaks the one-line-per-record text format.
func NewValueTextHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	textOpts := *opts
	textOpts.ReplaceAttr = chainReplaceAttr(opts.ReplaceAttr, stringifyComplexValues)
	return slog.NewTextHandler(w, &textOpts)
}

func chainReplaceAttr(first, second func([]string, slog.Attr) slog.Attr) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if first != nil {
			a = first(groups, a)
		}
		return second(groups, a)
	}
}

func stringifyComplexValues(groups []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindAny:
		a.Value = slog.StringValue(fmt.Sprintf("%v", a.Value.Any()))
	}
	return a
}
