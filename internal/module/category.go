package module

import (
	"fmt"
	"strings"
)

// Category groups initialization functions that are dispatched together.
// Categories are ordered by declaration; the order is only a default for
// hosts that do not configure their own dispatch sequence.
type Category int

const (
	Migration Category = iota
	Block
	Opts
	TypeSystem
	Trace
	DisplayBackend
	TestHarness
	FuzzTarget

	numCategories
)

var categoryNames = [numCategories]string{
	Migration:      "migration",
	Block:          "block",
	Opts:           "opts",
	TypeSystem:     "types",
	Trace:          "trace",
	DisplayBackend: "display-backend",
	TestHarness:    "test-harness",
	FuzzTarget:     "fuzz-target",
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c >= 0 && c < numCategories
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory resolves a category by its name (case-insensitive).
func ParseCategory(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range categoryNames {
		if n == name {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("unknown init category %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid init category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Origin records where a registration came from.
type Origin string

const (
	Static  Origin = "static"
	Dynamic Origin = "dynamic"
)

// State is the dispatch state of a single category.
type State int

const (
	Pending State = iota
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
