package style

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// StyleSet is a named list of rules. An entity is relevant to the set when
// any of its rules matches.
type StyleSet struct {
	Name  string
	Rules []Rule
}

// Matches reports whether any rule of the set matches tags.
func (s StyleSet) Matches(tags Tags) bool {
	for _, r := range s.Rules {
		if Match(r, tags) {
			return true
		}
	}
	return false
}

// UnknownStyleSetError is returned when a predicate names a set that was
// never registered.
type UnknownStyleSetError struct {
	Name string
}

func (e *UnknownStyleSetError) Error() string {
	return fmt.Sprintf("style: unknown style set %q", e.Name)
}

// Predicate decides whether an entity's tags are relevant.
type Predicate func(Tags) bool

// HasTags is the predicate used when no style set is configured.
func HasTags(tags Tags) bool { return tags.Len() > 0 }

// Registry holds style sets by name.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]StyleSet
}

// NewRegistry returns a registry holding sets.
func NewRegistry(sets ...StyleSet) *Registry {
	r := &Registry{sets: make(map[string]StyleSet)}
	for _, s := range sets {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a style set.
func (r *Registry) Register(s StyleSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[s.Name] = s
}

// Get returns a set by name.
func (r *Registry) Get(name string) (StyleSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[name]
	return s, ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sets))
	for n := range r.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Predicate combines the named sets: an entity matches when any set
// matches it. With no names the predicate is HasTags.
func (r *Registry) Predicate(names ...string) (Predicate, error) {
	if len(names) == 0 {
		return HasTags, nil
	}
	sets := make([]StyleSet, 0, len(names))
	for _, n := range names {
		s, ok := r.Get(n)
		if !ok {
			return nil, &UnknownStyleSetError{Name: n}
		}
		sets = append(sets, s)
	}
	return func(tags Tags) bool {
		for _, s := range sets {
			if s.Matches(tags) {
				return true
			}
		}
		return false
	}, nil
}

// File is the YAML layout of a style file:
//
//	stylesets:
//	  buildings:
//	    - any: building
//	  food:
//	    - equals: {key: amenity, value: cafe}
//	    - or: [{equals: shop=bakery}, {equals: shop=butcher}]
//	  public:
//	    - not: {equals: access=private}
type File struct {
	StyleSets map[string][]Rule `yaml:"stylesets"`
}

// LoadFile reads style sets from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style file: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes style sets from YAML.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	reg := NewRegistry()
	for name, rules := range f.StyleSets {
		reg.Register(StyleSet{Name: name, Rules: rules})
	}
	return reg, nil
}

// UnmarshalYAML decodes a rule written as a single-key mapping.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: a rule is a mapping with exactly one of any, equals, or, not, default", node.Line)
	}
	key, val := node.Content[0].Value, node.Content[1]

	switch key {
	case "default":
		var on bool
		if err := val.Decode(&on); err != nil {
			return err
		}
		if !on {
			return fmt.Errorf("line %d: default must be true", val.Line)
		}
		*r = Default()

	case "any":
		var k string
		if err := val.Decode(&k); err != nil {
			return err
		}
		if k == "" {
			return fmt.Errorf("line %d: any needs a key", val.Line)
		}
		*r = Any(k)

	case "equals":
		if val.Kind == yaml.ScalarNode {
			k, v, ok := strings.Cut(val.Value, "=")
			if !ok || k == "" {
				return fmt.Errorf("line %d: equals shorthand is key=value", val.Line)
			}
			*r = Equals(k, v)
			return nil
		}
		var kv struct {
			Key   string `yaml:"key"`
			Value string `yaml:"value"`
		}
		if err := val.Decode(&kv); err != nil {
			return err
		}
		if kv.Key == "" {
			return fmt.Errorf("line %d: equals needs a key", val.Line)
		}
		*r = Equals(kv.Key, kv.Value)

	case "or":
		var rules []Rule
		if err := val.Decode(&rules); err != nil {
			return err
		}
		if len(rules) == 0 {
			return errors.New("or needs at least one rule")
		}
		*r = Or(rules...)

	case "not":
		var inner Rule
		if err := val.Decode(&inner); err != nil {
			return err
		}
		*r = Not(inner)

	default:
		return fmt.Errorf("line %d: unknown rule %q", node.Line, key)
	}
	return nil
}
