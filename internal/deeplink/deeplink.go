// Package deeplink maps an alert's originating module to the route of the
// record that raised it.
//
// Producers are not consistent about module names ("incident", "Incidents",
// "incident_report", "crew-certificates"), so a module identifier is matched
// against the route table in three tiers, first hit wins:
//
//  1. exact: the normalized identifier equals a key
//  2. token: the key's tokens appear contiguously in the identifier's tokens,
//     rightmost occurrence first
//  3. prefix: some identifier token starts with a key (skipped when strict)
//
// Identifiers are lower-cased, split on anything that is not a letter or
// digit, and each token has a trailing plural stripped. Mid-word containment
// is never a match, so "platform" does not resolve to the "form" route.
package deeplink

import (
	"maps"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// DefaultFallback is returned when no route matches.
const DefaultFallback = "/alerts"

// DefaultRoutes returns the built-in module → route table.
func DefaultRoutes() map[string]string {
	return map[string]string{
		"incident":    "/incidents",
		"certificate": "/certificates",
		"maintenance": "/maintenance",
		"form":        "/forms",
		"checklist":   "/checklists",
		"risk":        "/risk-assessments",
		"document":    "/documents",
		"crew":        "/crew",
		"drill":       "/drills",
		"inspection":  "/inspections",
		"defect":      "/defects",
	}
}

type route struct {
	key    string   // normalized key
	tokens []string // key split into tokens
	path   string
}

// Resolver resolves alerts to navigable paths. Safe for concurrent use
// once constructed.
type Resolver struct {
	routes   []route
	fallback string
	strict   bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrict disables prefix matching; only exact and token matches resolve.
func WithStrict(strict bool) Option {
	return func(r *Resolver) { r.strict = strict }
}

// WithFallback overrides the path returned when nothing matches.
func WithFallback(path string) Option {
	return func(r *Resolver) {
		if path != "" {
			r.fallback = path
		}
	}
}

// New builds a Resolver over routes. A nil map uses DefaultRoutes.
func New(routes map[string]string, opts ...Option) *Resolver {
	if routes == nil {
		routes = DefaultRoutes()
	}
	r := &Resolver{fallback: DefaultFallback}
	seen := make(map[string]bool, len(routes))
	// sorted so keys that normalize to the same value resolve the same way every run
	for _, k := range slices.Sorted(maps.Keys(routes)) {
		p := routes[k]
		toks := tokens(k)
		if len(toks) == 0 || p == "" {
			continue
		}
		key := strings.Join(toks, "_")
		if seen[key] {
			continue
		}
		seen[key] = true
		r.routes = append(r.routes, route{key: key, tokens: toks, path: p})
	}
	// longer keys first so "risk_assessment" beats "risk"; key order breaks ties
	slices.SortFunc(r.routes, func(a, b route) int {
		if len(a.key) != len(b.key) {
			return len(b.key) - len(a.key)
		}
		return strings.Compare(a.key, b.key)
	})
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the route for a, with ?id=<related_entity_id> appended
// when the alert carries one. Unrecognized modules get the fallback path.
func (r *Resolver) Resolve(a *alert.Alert) string {
	base, ok := r.Match(a.SourceModule)
	if !ok {
		base, ok = r.Match(a.RelatedEntityType)
	}
	if !ok {
		return r.fallback
	}
	if a.RelatedEntityID == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + url.Values{"id": {a.RelatedEntityID}}.Encode()
}

// Match looks up the base route for a module identifier.
func (r *Resolver) Match(module string) (string, bool) {
	toks := tokens(module)
	if len(toks) == 0 {
		return "", false
	}
	norm := strings.Join(toks, "_")

	for _, rt := range r.routes {
		if rt.key == norm {
			return rt.path, true
		}
	}

	// the rightmost match wins ("crew_certificate" is a certificate), then the longer key
	best, bestPos := -1, -1
	for i, rt := range r.routes {
		if pos := lastIndexTokens(toks, rt.tokens); pos > bestPos {
			best, bestPos = i, pos
		}
	}
	if best >= 0 {
		return r.routes[best].path, true
	}

	if r.strict {
		return "", false
	}
	for _, rt := range r.routes {
		if len(rt.tokens) != 1 {
			continue
		}
		for _, t := range toks {
			if strings.HasPrefix(t, rt.key) {
				return rt.path, true
			}
		}
	}
	return "", false
}

// lastIndexTokens returns the index of the last occurrence of needle in hay, or -1.
func lastIndexTokens(hay, needle []string) int {
	for i := len(hay) - len(needle); i >= 0; i-- {
		if slices.Equal(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = singular(f)
	}
	return fields
}

func singular(tok string) string {
	switch {
	case len(tok) > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	default:
		return tok
	}
}
