// Package router implements the URI-template router shared by inbound
// dispatch and outbound reverse-URL building. A route is registered once
// as a template such as "/users/{handle}/inbox"; the same compiled route
// answers both "does this path match, and with what variable values" and
// "build me the path for these variable values."
package router

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

const logPrefix = "router:router"

// RouterError reports a registration or reverse-build failure. It is the
// only error type this package returns: URL building either succeeds
// concretely or fails deterministically.
type RouterError struct {
	Message string
}

func (e *RouterError) Error() string {
	return e.Message
}

func newError(format string, args ...interface{}) *RouterError {
	return &RouterError{Message: fmt.Sprintf(format, args...)}
}

// Match is the result of a successful forward route.
type Match struct {
	Name   string
	Values map[string]string
}

// segment is one "/"-delimited piece of a compiled template.
type segment struct {
	literal  string
	variable string // non-empty if this segment is a {var}
}

type compiledRoute struct {
	name      string
	template  string
	variables []string
	segments  []segment
	pattern   *regexp.Regexp
}

// literalCount returns how many segments are literal (not a variable),
// used to break ties when several routes could match the same path.
func (r *compiledRoute) literalCount() int {
	n := 0
	for _, s := range r.segments {
		if s.variable == "" {
			n++
		}
	}
	return n
}

// Router holds named URI-template routes and provides forward matching and
// reverse building against the same compiled templates.
type Router struct {
	mu     sync.RWMutex
	byName map[string]*compiledRoute
	routes []*compiledRoute
}

// New creates an empty Router.
func New() *Router {
	return &Router{byName: make(map[string]*compiledRoute)}
}

var variablePattern = regexp.MustCompile(`^\{[A-Za-z_][A-Za-z0-9_]*\}$`)

// Add parses template and registers it under name, returning the set of
// variable names found. It fails with a *RouterError if name is already
// registered or the template is malformed (unbalanced braces, an empty
// segment, or a variable name that is not a simple identifier — this
// router only supports RFC 6570 simple {var} expansions).
func (r *Router) Add(template, name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, newError("%s - duplicate route name %q", logPrefix, name)
	}

	segs, err := parseTemplate(template)
	if err != nil {
		return nil, newError("%s - invalid template %q: %v", logPrefix, template, err)
	}

	var variables []string
	seen := make(map[string]bool)
	var patternBuilder strings.Builder
	patternBuilder.WriteString("^")
	for _, s := range segs {
		patternBuilder.WriteString("/")
		if s.variable != "" {
			if seen[s.variable] {
				return nil, newError("%s - template %q reuses variable %q", logPrefix, template, s.variable)
			}
			seen[s.variable] = true
			variables = append(variables, s.variable)
			patternBuilder.WriteString(fmt.Sprintf("(?P<%s>[^/]+)", s.variable))
		} else {
			patternBuilder.WriteString(regexp.QuoteMeta(s.literal))
		}
	}
	patternBuilder.WriteString("$")

	pattern, err := regexp.Compile(patternBuilder.String())
	if err != nil {
		return nil, newError("%s - failed to compile template %q: %v", logPrefix, template, err)
	}

	cr := &compiledRoute{
		name:      name,
		template:  template,
		variables: variables,
		segments:  segs,
		pattern:   pattern,
	}
	r.byName[name] = cr
	r.routes = append(r.routes, cr)

	return variables, nil
}

// Has reports whether name is registered.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Route matches path against every registered template, case-sensitively
// and with significant trailing slashes. When more than one template
// matches (only possible when variable positions overlap with literal
// ones across distinct routes), the route with the most literal segments
// wins, since a literal match is always the more specific one.
func (r *Router) Route(path string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *compiledRoute
	var bestValues map[string]string

	for _, cr := range r.routes {
		names := cr.pattern.SubexpNames()
		m := cr.pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		if best != nil && cr.literalCount() <= best.literalCount() {
			continue
		}
		values := make(map[string]string, len(cr.variables))
		for i, n := range names {
			if n == "" {
				continue
			}
			values[n] = m[i]
		}
		best = cr
		bestValues = values
	}

	if best == nil {
		return nil, false
	}
	return &Match{Name: best.name, Values: bestValues}, true
}

// Build substitutes every {var} in the named route's template with the
// percent-encoded value from values. It returns false if the route is
// unknown or a required variable is missing.
func (r *Router) Build(name string, values map[string]string) (string, bool) {
	r.mu.RLock()
	cr, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}

	var b strings.Builder
	for _, s := range cr.segments {
		b.WriteString("/")
		if s.variable == "" {
			b.WriteString(s.literal)
			continue
		}
		v, ok := values[s.variable]
		if !ok {
			return "", false
		}
		b.WriteString(url.PathEscape(v))
	}
	return b.String(), true
}

// parseTemplate splits a template like "/users/{handle}/inbox" into
// segments, validating that every "{...}" is a simple identifier and that
// there are no empty segments.
func parseTemplate(template string) ([]segment, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("template must start with '/'")
	}
	if template != "/" && strings.HasSuffix(template, "/") {
		return nil, fmt.Errorf("template must not end with '/' (except the root)")
	}

	parts := strings.Split(strings.TrimPrefix(template, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return []segment{}, nil
	}

	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty path segment")
		}
		if strings.HasPrefix(p, "{") || strings.HasSuffix(p, "}") {
			if !variablePattern.MatchString(p) {
				return nil, fmt.Errorf("malformed variable segment %q", p)
			}
			segs = append(segs, segment{variable: p[1 : len(p)-1]})
			continue
		}
		if strings.ContainsAny(p, "{}") {
			return nil, fmt.Errorf("malformed segment %q", p)
		}
		segs = append(segs, segment{literal: p})
	}
	return segs, nil
}
