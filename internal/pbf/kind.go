package pbf

import (
	"fmt"
	"strings"
)

// EntityKind is the OSM primitive type held by a group.
type EntityKind int

const (
	Node EntityKind = iota
	Way
	Relation
)

var kindNames = [...]string{"node", "way", "relation"}

func (k EntityKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseEntityKind accepts the names written to .indexinfo files.
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "node", "n":
		return Node, nil
	case "way", "w":
		return Way, nil
	case "relation", "r":
		return Relation, nil
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}
