// Package style decides whether OSM entities are relevant enough to
// materialize. Rules are a small closed set of variants evaluated by a pure
// function, and named style sets combine them into the predicate the reader
// uses to skip whole groups.
package style

import "strings"

// Tags is the tag lookup capability rules are evaluated against.
type Tags interface {
	Lookup(key string) (string, bool)
	Len() int
}

// MapTags adapts a plain map to Tags.
type MapTags map[string]string

func (m MapTags) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapTags) Len() int { return len(m) }

// RuleKind selects the variant of a Rule.
type RuleKind int

const (
	// RuleDefault matches every entity.
	RuleDefault RuleKind = iota
	// RuleAny matches when Key is present, whatever its value.
	RuleAny
	// RuleEquals matches when Key has exactly Value.
	RuleEquals
	// RuleOr matches when any child rule matches.
	RuleOr
	// RuleNot matches when its single child does not.
	RuleNot
)

func (k RuleKind) String() string {
	switch k {
	case RuleDefault:
		return "default"
	case RuleAny:
		return "any"
	case RuleEquals:
		return "equals"
	case RuleOr:
		return "or"
	case RuleNot:
		return "not"
	}
	return "unknown"
}

// Rule is one tag-matching rule.
type Rule struct {
	Kind  RuleKind
	Key   string
	Value string
	Rules []Rule
}

func Default() Rule                 { return Rule{Kind: RuleDefault} }
func Any(key string) Rule           { return Rule{Kind: RuleAny, Key: key} }
func Equals(key, value string) Rule { return Rule{Kind: RuleEquals, Key: key, Value: value} }
func Or(rules ...Rule) Rule         { return Rule{Kind: RuleOr, Rules: rules} }
func Not(rule Rule) Rule            { return Rule{Kind: RuleNot, Rules: []Rule{rule}} }

// Match evaluates r against tags.
func Match(r Rule, tags Tags) bool {
	switch r.Kind {
	case RuleDefault:
		return true
	case RuleAny:
		_, ok := tags.Lookup(r.Key)
		return ok
	case RuleEquals:
		v, ok := tags.Lookup(r.Key)
		return ok && v == r.Value
	case RuleOr:
		for _, c := range r.Rules {
			if Match(c, tags) {
				return true
			}
		}
		return false
	case RuleNot:
		return len(r.Rules) == 1 && !Match(r.Rules[0], tags)
	}
	return false
}

func (r Rule) String() string {
	switch r.Kind {
	case RuleAny:
		return r.Key + "=*"
	case RuleEquals:
		return r.Key + "=" + r.Value
	case RuleOr, RuleNot:
		parts := make([]string, len(r.Rules))
		for i, c := range r.Rules {
			parts[i] = c.String()
		}
		return r.Kind.String() + "(" + strings.Join(parts, ", ") + ")"
	}
	return r.Kind.String()
}
