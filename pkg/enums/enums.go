// Package enums defines the string-backed value sets persisted in the
// database and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

// parse returns raw as a T when it is one of valid.
func parse[T ~string](raw string, valid []T, label string) (T, error) {
	if value := T(raw); slices.Contains(valid, value) {
		return value, nil
	}
	return "", fmt.Errorf("invalid %s %q", label, raw)
}
