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

// Package uritemplate compiles resource URI templates of the form
// `scheme://segment/{var}/segment` into matchers that extract a variable
// map from a concrete URI, per spec.md §4.1.
package uritemplate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Template is a compiled URI template. A Template with no variables is
// "static" and should be registered as an exact resource rather than a
// resource_template.
type Template struct {
	raw     string
	re      *regexp.Regexp
	varsOrd []string
}

// Raw returns the original template string.
func (t *Template) Raw() string { return t.raw }

// IsStatic reports whether the template has no `{var}` placeholders.
func (t *Template) IsStatic() bool { return len(t.varsOrd) == 0 }

// placeholder finds each `{var}` in a template; Compile substitutes a
// pattern matching one path segment (no embedded `/`) for each of them.
var placeholder = regexp.MustCompile(`\{([^{}]*)\}`)

// Compile parses a template string into a matcher. It returns an error if
// a variable name is empty, malformed, or duplicated within the template.
func Compile(tmpl string) (*Template, error) {
	var varsOrd []string
	seen := make(map[string]bool)

	var b strings.Builder
	b.WriteString("^")

	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(tmpl, -1) {
		start, end := loc[0], loc[1]
		name := tmpl[loc[2]:loc[3]]
		if name == "" {
			return nil, fmt.Errorf("uritemplate: empty variable name in %q", tmpl)
		}
		if !isValidVarName(name) {
			return nil, fmt.Errorf("uritemplate: invalid variable name %q in %q", name, tmpl)
		}
		if seen[name] {
			return nil, fmt.Errorf("uritemplate: duplicate variable %q in %q", name, tmpl)
		}
		seen[name] = true
		varsOrd = append(varsOrd, name)

		b.WriteString(regexp.QuoteMeta(tmpl[last:start]))
		// One path segment: no '/'. Query and fragment delimiters are not
		// specially handled beyond this, matching spec.md §4.1.
		b.WriteString(`([^/]+)`)
		last = end
	}
	b.WriteString(regexp.QuoteMeta(tmpl[last:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("uritemplate: compiling %q: %w", tmpl, err)
	}

	return &Template{raw: tmpl, re: re, varsOrd: varsOrd}, nil
}

func isValidVarName(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// IsTemplate reports whether a registration string should be compiled as a
// template (contains `{`) rather than treated as a static URI.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{")
}

// Match attempts to match uri against the template, returning the
// percent-decoded variable map, or nil if uri does not match.
func (t *Template) Match(uri string) map[string]string {
	m := t.re.FindStringSubmatch(uri)
	if m == nil {
		return nil
	}
	vars := make(map[string]string, len(t.varsOrd))
	for i, name := range t.varsOrd {
		raw := m[i+1]
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			decoded = raw
		}
		vars[name] = decoded
	}
	return vars
}

// Render substitutes vars into the template, percent-encoding each value as
// a single path segment. It is the inverse of Match for values containing
// no '/', used by round-trip tests (spec.md §8).
func (t *Template) Render(vars map[string]string) (string, error) {
	var b strings.Builder
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(t.raw, -1) {
		start, end := loc[0], loc[1]
		name := t.raw[loc[2]:loc[3]]
		v, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("uritemplate: missing value for variable %q", name)
		}
		b.WriteString(t.raw[last:start])
		b.WriteString(url.PathEscape(v))
		last = end
	}
	b.WriteString(t.raw[last:])
	return b.String(), nil
}

// Variables returns the variable names in declaration order.
func (t *Template) Variables() []string {
	out := make([]string, len(t.varsOrd))
	copy(out, t.varsOrd)
	return out
}
