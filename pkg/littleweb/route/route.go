// Package route implements the path-pattern compiler and matcher:
// literal, wildcard, doubly-wildcard and regex-constrained identifier
// segments, typed transforms and query-parameter predicates, ranked by
// specificity.
package route

import (
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
)

// SegmentKind discriminates a compiled path segment's matching strategy.
type SegmentKind int

const (
	SegmentLiteral SegmentKind = iota
	SegmentAny           // "*"
	SegmentAnyHereafter  // "**"
	SegmentIdentifier    // ":name" possibly with a regex/transform
)

// specificity ranks segment kinds for tie-break ordering (spec.md
// §4.3): literal > regex-constrained identifier > identifier > * > **.
func (k SegmentKind) specificity(hasRegex bool) int {
	switch k {
	case SegmentLiteral:
		return 4
	case SegmentIdentifier:
		if hasRegex {
			return 3
		}
		return 2
	case SegmentAny:
		return 1
	case SegmentAnyHereafter:
		return 0
	default:
		return 0
	}
}

// TransformFunc converts a captured string into a typed value, failing
// (not erroring) the match when it cannot (spec.md §4.3: "Failures in
// transforms are treated as non-matches").
type TransformFunc func(raw string) (interface{}, bool)

var builtinTransforms = map[string]TransformFunc{
	"Int":  func(raw string) (interface{}, bool) { v, err := cast.ToIntE(raw); return v, err == nil },
	"UInt": func(raw string) (interface{}, bool) { v, err := cast.ToUintE(raw); return v, err == nil },
}

// Register adds a user-supplied transform under name, reachable from
// path patterns via "<name>" (spec.md §4.3 "user-supplied" transform kind).
func Register(name string, fn TransformFunc) { builtinTransforms[name] = fn }

// ParamPredicate constrains a query item associated with a segment
// (spec.md §3 RoutePathConditions, §4.3 "Parameter predicates").
type ParamPredicate struct {
	Name      string
	Optional  bool
	Patterns  []*regexp.Regexp
	Transform TransformFunc
}

// Segment is one compiled "/"-delimited path element.
type Segment struct {
	Kind      SegmentKind
	Literal   string
	Regex     *regexp.Regexp
	Identity  string
	Transform TransformFunc
	Params    []ParamPredicate
}

func (s Segment) specificity() int { return s.Kind.specificity(s.Regex != nil) }

// PathPattern is a compiled route path (spec.md §3 RoutePathConditions).
type PathPattern struct {
	Raw      string
	Segments []Segment
}

// Compile parses a textual pattern per spec.md §4.3's EBNF.
func Compile(pattern string) (*PathPattern, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, lwerr.RouteError("pattern must start with '/': " + pattern)
	}
	trimmed := strings.TrimPrefix(pattern, "/")
	var rawSegments []string
	if trimmed != "" {
		rawSegments = strings.Split(trimmed, "/")
	}

	segs := make([]Segment, 0, len(rawSegments))
	for i, raw := range rawSegments {
		seg, err := compileSegment(raw)
		if err != nil {
			return nil, err
		}
		if seg.Kind == SegmentAnyHereafter && i != len(rawSegments)-1 {
			return nil, lwerr.RouteError("'**' must appear last: " + pattern)
		}
		segs = append(segs, seg)
	}
	return &PathPattern{Raw: pattern, Segments: segs}, nil
}

func compileSegment(raw string) (Segment, error) {
	switch raw {
	case "*":
		return Segment{Kind: SegmentAny}, nil
	case "**":
		return Segment{Kind: SegmentAnyHereafter}, nil
	}
	if !strings.HasPrefix(raw, ":") {
		return Segment{Kind: SegmentLiteral, Literal: raw}, nil
	}

	rest := strings.TrimPrefix(raw, ":")
	seg := Segment{Kind: SegmentIdentifier}

	// ident [ "{" regex "}" ] [ "<" transform ">" ] [ "{" params "}" ]
	seg.Identity, rest = takeToken(rest)

	if strings.HasPrefix(rest, "{") {
		body, remainder, ok := takeBraced(rest)
		if !ok {
			return Segment{}, lwerr.RouteError("unterminated '{' in segment: " + raw)
		}
		if looksLikeParamList(body) {
			params, err := compileParams(body)
			if err != nil {
				return Segment{}, err
			}
			seg.Params = params
			rest = remainder
		} else {
			re, err := regexp.Compile("^(?:" + body + ")$")
			if err != nil {
				return Segment{}, lwerr.RouteError("invalid regex in segment: " + raw)
			}
			seg.Regex = re
			rest = remainder
		}
	}
	if strings.HasPrefix(rest, "<") {
		name, remainder, ok := takeAngled(rest)
		if !ok {
			return Segment{}, lwerr.RouteError("unterminated '<' in segment: " + raw)
		}
		fn, ok := builtinTransforms[name]
		if !ok {
			return Segment{}, lwerr.RouteError("unknown transform: " + name)
		}
		seg.Transform = fn
		rest = remainder
	}
	if strings.HasPrefix(rest, "{") && len(seg.Params) == 0 {
		body, remainder, ok := takeBraced(rest)
		if !ok {
			return Segment{}, lwerr.RouteError("unterminated '{' in segment: " + raw)
		}
		params, err := compileParams(body)
		if err != nil {
			return Segment{}, err
		}
		seg.Params = params
		rest = remainder
	}
	return seg, nil
}

func looksLikeParamList(body string) bool { return strings.HasPrefix(body, "@") }

func takeToken(s string) (token, rest string) {
	for i, r := range s {
		if r == '{' || r == '<' {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func takeBraced(s string) (body, rest string, ok bool) {
	if len(s) == 0 || s[0] != '{' {
		return "", s, false
	}
	depth := 0
	for i, r := range s {
		if r == '{' {
			depth++
		} else if r == '}' {
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", s, false
}

func takeAngled(s string) (body, rest string, ok bool) {
	if len(s) == 0 || s[0] != '<' {
		return "", s, false
	}
	idx := strings.IndexByte(s, '>')
	if idx < 0 {
		return "", s, false
	}
	return s[1:idx], s[idx+1:], true
}

// compileParams parses "@name[?][ [{regex}] ][<transform>] (;...)" lists.
func compileParams(body string) ([]ParamPredicate, error) {
	var out []ParamPredicate
	for _, raw := range strings.Split(body, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.HasPrefix(raw, "@") {
			return nil, lwerr.RouteError("param must start with '@': " + raw)
		}
		rest := strings.TrimPrefix(raw, "@")
		p := ParamPredicate{}

		p.Name, rest = takeParamToken(rest)
		if strings.HasPrefix(rest, "?") {
			p.Optional = true
			rest = rest[1:]
		}
		if strings.HasPrefix(rest, "[") {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, lwerr.RouteError("unterminated '[' in param: " + raw)
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			body, _, ok := takeBraced(inner)
			if !ok {
				return nil, lwerr.RouteError("expected '{regex}' in param: " + raw)
			}
			for _, alt := range strings.Split(body, "|") {
				re, err := regexp.Compile("^(?:" + alt + ")$")
				if err != nil {
					return nil, lwerr.RouteError("invalid regex in param: " + raw)
				}
				p.Patterns = append(p.Patterns, re)
			}
		}
		if strings.HasPrefix(rest, "<") {
			name, _, ok := takeAngled(rest)
			if !ok {
				return nil, lwerr.RouteError("unterminated '<' in param: " + raw)
			}
			fn, ok := builtinTransforms[name]
			if !ok {
				return nil, lwerr.RouteError("unknown param transform: " + name)
			}
			p.Transform = fn
		}
		out = append(out, p)
	}
	return out, nil
}

func takeParamToken(s string) (token, rest string) {
	for i, r := range s {
		if r == '?' || r == '[' || r == '<' {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// Match attempts to match path against pattern, producing captured
// identities when successful (spec.md §4.3). queryItems are used to
// evaluate parameter predicates.
func (pp *PathPattern) Match(path string, queryItems []http11.QueryItem) (map[string]http11.Identity, bool) {
	parts := splitPath(path)
	identities := map[string]http11.Identity{}

	for i, seg := range pp.Segments {
		if seg.Kind == SegmentAnyHereafter {
			remainder := strings.Join(parts[min(i, len(parts)):], "/")
			if seg.Identity != "" {
				identities[seg.Identity] = http11.Identity{Raw: remainder}
			}
			return finishMatch(seg, identities, queryItems)
		}
		if i >= len(parts) {
			return nil, false
		}
		part := parts[i]
		switch seg.Kind {
		case SegmentLiteral:
			if part != seg.Literal {
				return nil, false
			}
		case SegmentAny:
			// matches unconditionally
		case SegmentIdentifier:
			if seg.Regex != nil && !seg.Regex.MatchString(part) {
				return nil, false
			}
			id := http11.Identity{Raw: part}
			if seg.Transform != nil {
				v, ok := seg.Transform(part)
				if !ok {
					return nil, false
				}
				id.Transformed = v
			}
			if seg.Identity != "" {
				identities[seg.Identity] = id
			}
			if ok, newIdentities := matchParams(seg.Params, queryItems); !ok {
				return nil, false
			} else {
				for k, v := range newIdentities {
					identities[k] = v
				}
			}
		}
	}
	if len(parts) != len(pp.Segments) {
		return nil, false
	}
	return identities, true
}

func finishMatch(seg Segment, identities map[string]http11.Identity, queryItems []http11.QueryItem) (map[string]http11.Identity, bool) {
	ok, newIdentities := matchParams(seg.Params, queryItems)
	if !ok {
		return nil, false
	}
	for k, v := range newIdentities {
		identities[k] = v
	}
	return identities, true
}

func matchParams(params []ParamPredicate, queryItems []http11.QueryItem) (bool, map[string]http11.Identity) {
	out := map[string]http11.Identity{}
	for _, p := range params {
		value, present := http11.Get(queryItems, p.Name)
		if !present {
			if p.Optional {
				continue
			}
			return false, nil
		}
		if len(p.Patterns) > 0 {
			matched := false
			for _, re := range p.Patterns {
				if re.MatchString(value) {
					matched = true
					break
				}
			}
			if !matched {
				return false, nil
			}
		}
		id := http11.Identity{Raw: value}
		if p.Transform != nil {
			v, ok := p.Transform(value)
			if !ok {
				return false, nil
			}
			id.Transformed = v
		}
		out[p.Name] = id
	}
	return true, out
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Specificity sums per-segment specificity scores for ranking
// (spec.md §4.3 tie-break rules).
func (pp *PathPattern) Specificity() int {
	total := 0
	for _, seg := range pp.Segments {
		total += seg.specificity()
	}
	return total
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
