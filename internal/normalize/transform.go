package normalize

import (
	"fmt"
	"sort"
)

type transformFunc func(value any) (any, error)

var transforms = map[string]transformFunc{
	"date":    stringTransform(func(s string) (string, error) { return Date(s, "") }),
	"decimal": stringTransform(Decimal),
	"email":   stringTransform(Email),
	"phone":   stringTransform(Phone),
	"text":    stringTransform(func(s string) (string, error) { return Text(s, 0) }),
	"boolean": func(value any) (any, error) { return Boolean(value) },
}

func stringTransform(fn func(string) (string, error)) transformFunc {
	return func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		return fn(s)
	}
}

// HasTransform reports whether name is a known value transform.
func HasTransform(name string) bool {
	_, ok := transforms[name]
	return ok
}

// Transforms lists the known transform names.
func Transforms() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named transform. nil values stay nil.
func Apply(name string, value any) (any, error) {
	fn, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	if value == nil {
		return nil, nil
	}
	return fn(value)
}
