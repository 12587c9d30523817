// Package config handles YAML config file loading for framesync.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
// Bare $VAR is left alone so dollar signs in secrets survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// ExpandEnv expands environment references using the process environment.
func ExpandEnv(input string) (string, error) {
	return expand(input, os.LookupEnv)
}

// expand resolves references in input. Unset or empty variables become the
// default when one is given, an error for the :? form, and "" otherwise.
func expand(input string, lookup func(string) (string, bool)) (string, error) {
	var errs []error
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]

		if v, ok := lookup(name); ok && v != "" {
			return v
		}
		switch op {
		case ":-":
			return arg
		case ":?":
			if arg == "" {
				arg = "required but not set"
			}
			errs = append(errs, fmt.Errorf("%s: %s", name, arg))
		}
		return ""
	})
	return out, errors.Join(errs...)
}
