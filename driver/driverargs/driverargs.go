// Package driverargs parses the --from-arg/--to-arg flags into a JSON
// object. Keys are dotted or bracketed paths: "a=b" sets a top-level
// key, "c.d=x" and "c[d]=x" set a nested key, and a trailing "[]"
// appends to an array. Conflicting paths within one invocation are
// rejected with an error showing both occurrences.
package driverargs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type (
	// Args is an ordered list of parsed driver arguments.
	Args struct {
		args []arg
	}

	arg struct {
		raw   string
		path  []component
		value string
	}

	component struct {
		// key is the member name, or "" for a final-array append.
		key string
	}
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*`)

// Parse parses a list of KEY=VALUE command-line arguments.
func Parse(raw []string) (Args, error) {
	var a Args
	for _, s := range raw {
		parsed, err := parseArg(s)
		if err != nil {
			return Args{}, err
		}
		a.args = append(a.args, parsed)
	}
	// Surface conflicts at parse time, not at first use.
	if _, err := a.ToJSON(); err != nil {
		return Args{}, err
	}
	return a, nil
}

func parseArg(s string) (arg, error) {
	rest := s
	fail := func(expected string) (arg, error) {
		return arg{}, fmt.Errorf("driverargs: error parsing %q at offset %d: expected %s",
			s, len(s)-len(rest), expected)
	}
	id := identRe.FindString(rest)
	if id == "" {
		return fail("identifier")
	}
	rest = rest[len(id):]
	path := []component{{key: id}}
	for {
		switch {
		case strings.HasPrefix(rest, "."):
			id := identRe.FindString(rest[1:])
			if id == "" {
				return fail("identifier")
			}
			rest = rest[1+len(id):]
			path = append(path, component{key: id})
		case strings.HasPrefix(rest, "[]"):
			rest = rest[2:]
			path = append(path, component{})
			if !strings.HasPrefix(rest, "=") {
				return fail(`"=" after "[]"`)
			}
		case strings.HasPrefix(rest, "["):
			id := identRe.FindString(rest[1:])
			if id == "" {
				return fail("identifier")
			}
			if !strings.HasPrefix(rest[1+len(id):], "]") {
				return fail(`"]"`)
			}
			rest = rest[2+len(id):]
			path = append(path, component{key: id})
		case strings.HasPrefix(rest, "="):
			return arg{raw: s, path: path, value: rest[1:]}, nil
		default:
			return fail(`".", "[" or "="`)
		}
	}
}

// IsEmpty reports whether no arguments were given.
func (a Args) IsEmpty() bool { return len(a.args) == 0 }

// ToJSON merges the arguments into one JSON object, treating dotted
// keys as nesting and "[]" as array append.
func (a Args) ToJSON() (map[string]any, error) {
	var root any = map[string]any{}
	for i, arg := range a.args {
		conflict := func(existing any) error {
			// Name the earlier argument whose path shares the longest
			// prefix with this one.
			other, best := "", -1
			for _, o := range a.args[:i] {
				n := 0
				for n < len(o.path) && n < len(arg.path) && o.path[n] == arg.path[n] {
					n++
				}
				if n >= best {
					other, best = o.raw, n
				}
			}
			ex, _ := json.Marshal(existing)
			return fmt.Errorf("driverargs: conflict in %q: earlier argument %q specified %s",
				arg.raw, other, ex)
		}
		if err := insertAt(&root, arg.path, arg.value, conflict); err != nil {
			return nil, err
		}
	}
	return root.(map[string]any), nil
}

// Decode unmarshals the merged arguments into v via JSON, so drivers
// can declare an option struct for the keys they recognize.
func (a Args) Decode(v any) error {
	obj, err := a.ToJSON()
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("driverargs: %w", err)
	}
	return nil
}

func insertAt(place *any, path []component, value string, conflict func(any) error) error {
	if len(path) == 0 {
		if *place != nil {
			return conflict(*place)
		}
		*place = value
		return nil
	}
	c := path[0]
	if c.key == "" {
		// "[]": append to an array.
		if *place == nil {
			*place = []any{}
		}
		arr, ok := (*place).([]any)
		if !ok {
			return conflict(*place)
		}
		var elem any
		if err := insertAt(&elem, path[1:], value, conflict); err != nil {
			return err
		}
		*place = append(arr, elem)
		return nil
	}
	if *place == nil {
		*place = map[string]any{}
	}
	obj, ok := (*place).(map[string]any)
	if !ok {
		return conflict(*place)
	}
	child := obj[c.key]
	if err := insertAt(&child, path[1:], value, conflict); err != nil {
		return err
	}
	obj[c.key] = child
	return nil
}
